package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kaczmarj/CLAM/internal/wsi"
)

const (
	// levelTarget is the downsample factor used when auto-selecting a
	// pyramid level for segmentation and visualization.
	levelTarget = 64

	// maxSegPixels guards against segmenting a raster too large to hold in
	// memory.
	maxSegPixels = 100_000_000

	// legacyRefTile is the tile size legacy ledgers expressed absolute
	// contour areas against.
	legacyRefTile = 512
)

// Effective holds the fully resolved per-slide parameters handed to the
// slide collaborators. Patch geometry (level, size, step, destination) is
// filled in by the orchestrator.
type Effective struct {
	Seg    wsi.SegmentParams
	Filter wsi.FilterParams
	Vis    wsi.VisualizeParams
	Patch  wsi.PatchParams
}

// Resolver computes effective parameters for one slide at a time.
//
// In default mode every slide uses the shared Defaults set; in copy mode the
// record's stored set is used. Legacy ledgers carry an absolute contour-area
// column instead of per-level thresholds; resolution migrates it and forces
// level fields back to auto-selection, since legacy files never recorded an
// explicit level.
type Resolver struct {
	Defaults    ParameterSet
	UseDefaults bool
	Legacy      bool
}

// Resolve computes the effective parameters for a slide from its stored set.
// It returns both the collaborator-ready values and the parameter set to
// persist back onto the record, so a resumed run replays the exact same
// values without recomputing them. Neither input is mutated.
//
// A *wsi.SizeGuardError is returned when the chosen segmentation level's
// raster exceeds the area guard; segmentation must not be attempted. On any
// error the returned set carries the legacy migration (rescaled area, levels
// reset to auto) but not the concrete auto-selected levels, which are only
// recorded for slides that pass the guard.
func (r Resolver) Resolve(stored ParameterSet, legacyArea int64, slide wsi.Slide) (Effective, ParameterSet, error) {
	ps := stored
	if r.UseDefaults {
		ps = r.Defaults
	} else if r.Legacy {
		// Legacy areas are absolute pixel counts at the stored level,
		// normalized to a 512x512 reference tile. Rescale before the level
		// fields are reset to auto. Ledgers that stored no level at all
		// rescale against the lowest-resolution level.
		lvl := ps.Seg.SegLevel
		if lvl < 0 {
			lvl = slide.LevelCount() - 1
		}
		dsx, dsy := slide.LevelDownsample(lvl)
		ps.Filter.AT = int(math.Round(float64(legacyArea) * dsx * dsy / (legacyRefTile * legacyRefTile)))
		ps.Seg.SegLevel = AutoLevel
		ps.Vis.VisLevel = AutoLevel
	}

	persist := ps
	if ps.Vis.VisLevel < 0 {
		ps.Vis.VisLevel = bestLevel(slide)
	}
	if ps.Seg.SegLevel < 0 {
		ps.Seg.SegLevel = bestLevel(slide)
	}

	keep, err := ParseIDs(ps.Seg.KeepIDs)
	if err != nil {
		return Effective{}, persist, fmt.Errorf("invalid keep_ids: %w", err)
	}
	exclude, err := ParseIDs(ps.Seg.ExcludeIDs)
	if err != nil {
		return Effective{}, persist, fmt.Errorf("invalid exclude_ids: %w", err)
	}

	w, h := slide.LevelDimensions(ps.Seg.SegLevel)
	if w*h > maxSegPixels {
		return Effective{}, persist, &wsi.SizeGuardError{Width: w, Height: h}
	}

	eff := Effective{
		Seg: wsi.SegmentParams{
			Level:      ps.Seg.SegLevel,
			SThresh:    ps.Seg.SThresh,
			MThresh:    ps.Seg.MThresh,
			Close:      ps.Seg.Close,
			UseOtsu:    ps.Seg.UseOtsu,
			KeepIDs:    keep,
			ExcludeIDs: exclude,
		},
		Filter: wsi.FilterParams{
			ATissue:   ps.Filter.AT,
			AHole:     ps.Filter.AH,
			MaxNHoles: ps.Filter.MaxNHoles,
		},
		Vis: wsi.VisualizeParams{
			Level:         ps.Vis.VisLevel,
			LineThickness: ps.Vis.LineThickness,
		},
		Patch: wsi.PatchParams{
			UsePadding: ps.Patch.UsePadding,
			ContourFn:  ps.Patch.ContourFn,
		},
	}

	return eff, ps, nil
}

func bestLevel(slide wsi.Slide) int {
	if slide.LevelCount() == 1 {
		return 0
	}
	return slide.BestLevelForDownsample(levelTarget)
}

// ParseIDs parses a comma-separated contour id list. The literal token
// "none" and the empty string both mean no restriction.
func ParseIDs(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "none" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	ids := make([]int, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad contour id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
