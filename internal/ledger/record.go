// Package ledger maintains the per-slide processing table that makes batch
// runs resumable: one row per slide, selection flag, final disposition, and
// every resolved parameter, checkpointed wholesale after each item.
package ledger

import (
	"path/filepath"
	"strings"

	"github.com/kaczmarj/CLAM/internal/params"
)

// Status is a slide's final disposition for a run.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAlreadyExist Status = "already_exist"
	StatusProcessed    Status = "processed"
	StatusFailedSeg    Status = "failed_seg"
)

// SlideRecord is one row of the processing table. Parameter columns mirror
// params.ParameterSet; resolved values are written back here so a resumed
// run replays them instead of recomputing.
type SlideRecord struct {
	SlideID string `parquet:"slide_id"`
	Process int    `parquet:"process"`
	Status  Status `parquet:"status"`

	SegLevel   int    `parquet:"seg_level"`
	SThresh    int    `parquet:"sthresh"`
	MThresh    int    `parquet:"mthresh"`
	Close      int    `parquet:"close"`
	UseOtsu    bool   `parquet:"use_otsu"`
	KeepIDs    string `parquet:"keep_ids"`
	ExcludeIDs string `parquet:"exclude_ids"`

	AT        int `parquet:"a_t"`
	AH        int `parquet:"a_h"`
	MaxNHoles int `parquet:"max_n_holes"`

	VisLevel      int `parquet:"vis_level"`
	LineThickness int `parquet:"line_thickness"`

	UsePadding bool   `parquet:"use_padding"`
	ContourFn  string `parquet:"contour_fn"`

	// LegacyArea is the absolute contour-area column of pre-migration
	// ledgers, meaningful only when the ledger's Legacy flag is set.
	LegacyArea int64 `parquet:"a,optional"`
}

// NewRecord returns a pending, selected record carrying the given defaults.
func NewRecord(slideID string, ps params.ParameterSet) SlideRecord {
	rec := SlideRecord{
		SlideID: slideID,
		Process: 1,
		Status:  StatusPending,
	}
	rec.SetParams(ps)
	return rec
}

// Stem returns the slide id without its file extension; artifact names are
// derived from it.
func (r *SlideRecord) Stem() string {
	return strings.TrimSuffix(r.SlideID, filepath.Ext(r.SlideID))
}

// ParamSet returns the record's stored parameter columns as a set.
func (r *SlideRecord) ParamSet() params.ParameterSet {
	return params.ParameterSet{
		Seg: params.SegParams{
			SegLevel:   r.SegLevel,
			SThresh:    r.SThresh,
			MThresh:    r.MThresh,
			Close:      r.Close,
			UseOtsu:    r.UseOtsu,
			KeepIDs:    r.KeepIDs,
			ExcludeIDs: r.ExcludeIDs,
		},
		Filter: params.FilterParams{
			AT:        r.AT,
			AH:        r.AH,
			MaxNHoles: r.MaxNHoles,
		},
		Vis: params.VisParams{
			VisLevel:      r.VisLevel,
			LineThickness: r.LineThickness,
		},
		Patch: params.PatchParams{
			UsePadding: r.UsePadding,
			ContourFn:  r.ContourFn,
		},
	}
}

// SetParams writes a parameter set into the record's columns.
func (r *SlideRecord) SetParams(ps params.ParameterSet) {
	r.SegLevel = ps.Seg.SegLevel
	r.SThresh = ps.Seg.SThresh
	r.MThresh = ps.Seg.MThresh
	r.Close = ps.Seg.Close
	r.UseOtsu = ps.Seg.UseOtsu
	r.KeepIDs = ps.Seg.KeepIDs
	r.ExcludeIDs = ps.Seg.ExcludeIDs
	r.AT = ps.Filter.AT
	r.AH = ps.Filter.AH
	r.MaxNHoles = ps.Filter.MaxNHoles
	r.VisLevel = ps.Vis.VisLevel
	r.LineThickness = ps.Vis.LineThickness
	r.UsePadding = ps.Patch.UsePadding
	r.ContourFn = ps.Patch.ContourFn
}

// ProcessingLedger is the ordered processing table plus its schema tag.
type ProcessingLedger struct {
	Records []SlideRecord

	// Legacy marks ledgers loaded from the pre-migration schema (absolute
	// contour-area column, no recorded levels).
	Legacy bool
}

// Selected returns the indexes of records still flagged for processing, in
// table order.
func (l *ProcessingLedger) Selected() []int {
	var idx []int
	for i := range l.Records {
		if l.Records[i].Process == 1 {
			idx = append(idx, i)
		}
	}
	return idx
}
