package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kaczmarj/CLAM/internal/params"
	"github.com/parquet-go/parquet-go"
)

// Checkpoints are whole-table overwrites: the complete ledger is written to
// a temporary file and atomically renamed over the destination, so the path
// always holds the most advanced consistent state even across a crash.

// csvColumns is the stable checkpoint column order. The legacy "a" column,
// when present, is appended last.
var csvColumns = []string{
	"slide_id", "process", "status",
	"seg_level", "sthresh", "mthresh", "close", "use_otsu", "keep_ids", "exclude_ids",
	"a_t", "a_h", "max_n_holes",
	"vis_level", "line_thickness",
	"use_padding", "contour_fn",
}

// Load reads a ledger from a CSV or Parquet file, chosen by extension.
// Parameter columns missing from the file are filled from ps; stored values
// always win over defaults. A CSV carrying the legacy absolute-area column
// is tagged Legacy.
func Load(path string, ps params.ParameterSet) (*ProcessingLedger, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return loadCSV(path, ps)
	case ".parquet":
		return loadParquet(path)
	default:
		return nil, fmt.Errorf("unsupported ledger format: %s (supported: .csv, .parquet)", ext)
	}
}

// Save writes the complete ledger to path (CSV or Parquet by extension),
// replacing any previous checkpoint atomically.
func Save(path string, l *ProcessingLedger) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return saveCSV(path, l)
	case ".parquet":
		return saveParquet(path, l)
	default:
		return fmt.Errorf("unsupported ledger format: %s (supported: .csv, .parquet)", ext)
	}
}

func loadCSV(path string, ps params.ParameterSet) (*ProcessingLedger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("ledger %s has no header row", path)
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col["slide_id"]; !ok {
		return nil, fmt.Errorf("ledger %s has no slide_id column", path)
	}
	_, legacy := col["a"]

	l := &ProcessingLedger{Legacy: legacy}
	for n, row := range rows[1:] {
		cell := func(name string) (string, bool) {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return "", false
			}
			v := strings.TrimSpace(row[i])
			return v, v != ""
		}

		rec := NewRecord("", ps)
		var parseErr error
		setInt := func(dst *int, name string) {
			if v, ok := cell(name); ok && parseErr == nil {
				*dst, parseErr = parseInt(v)
				if parseErr != nil {
					parseErr = fmt.Errorf("row %d, column %s: %w", n+2, name, parseErr)
				}
			}
		}
		setBool := func(dst *bool, name string) {
			if v, ok := cell(name); ok && parseErr == nil {
				*dst, parseErr = strconv.ParseBool(v)
				if parseErr != nil {
					parseErr = fmt.Errorf("row %d, column %s: %w", n+2, name, parseErr)
				}
			}
		}
		setString := func(dst *string, name string) {
			if v, ok := cell(name); ok {
				*dst = v
			}
		}

		setString(&rec.SlideID, "slide_id")
		setInt(&rec.Process, "process")
		if v, ok := cell("status"); ok {
			rec.Status = Status(v)
		}
		setInt(&rec.SegLevel, "seg_level")
		setInt(&rec.SThresh, "sthresh")
		setInt(&rec.MThresh, "mthresh")
		setInt(&rec.Close, "close")
		setBool(&rec.UseOtsu, "use_otsu")
		setString(&rec.KeepIDs, "keep_ids")
		setString(&rec.ExcludeIDs, "exclude_ids")
		setInt(&rec.AT, "a_t")
		setInt(&rec.AH, "a_h")
		setInt(&rec.MaxNHoles, "max_n_holes")
		setInt(&rec.VisLevel, "vis_level")
		setInt(&rec.LineThickness, "line_thickness")
		setBool(&rec.UsePadding, "use_padding")
		setString(&rec.ContourFn, "contour_fn")
		if legacy {
			if v, ok := cell("a"); ok && parseErr == nil {
				a, err := parseInt(v)
				if err != nil {
					parseErr = fmt.Errorf("row %d, column a: %w", n+2, err)
				}
				rec.LegacyArea = int64(a)
			}
		}
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse ledger %s: %w", path, parseErr)
		}

		l.Records = append(l.Records, rec)
	}

	return l, nil
}

func saveCSV(path string, l *ProcessingLedger) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	header := csvColumns
	if l.Legacy {
		header = append(append([]string{}, csvColumns...), "a")
	}
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint header: %w", err)
	}

	for i := range l.Records {
		rec := &l.Records[i]
		row := []string{
			rec.SlideID,
			strconv.Itoa(rec.Process),
			string(rec.Status),
			strconv.Itoa(rec.SegLevel),
			strconv.Itoa(rec.SThresh),
			strconv.Itoa(rec.MThresh),
			strconv.Itoa(rec.Close),
			strconv.FormatBool(rec.UseOtsu),
			rec.KeepIDs,
			rec.ExcludeIDs,
			strconv.Itoa(rec.AT),
			strconv.Itoa(rec.AH),
			strconv.Itoa(rec.MaxNHoles),
			strconv.Itoa(rec.VisLevel),
			strconv.Itoa(rec.LineThickness),
			strconv.FormatBool(rec.UsePadding),
			rec.ContourFn,
		}
		if l.Legacy {
			row = append(row, strconv.FormatInt(rec.LegacyArea, 10))
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write checkpoint row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

func loadParquet(path string) (*ProcessingLedger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat ledger: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet ledger %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[SlideRecord](pf)
	defer reader.Close()

	// Legacy ledgers predate parquet support; only CSVs carry that schema.
	l := &ProcessingLedger{}
	rows := make([]SlideRecord, 128)
	for {
		n, err := reader.Read(rows)
		if n > 0 {
			l.Records = append(l.Records, rows[:n]...)
		}
		if err != nil {
			break
		}
	}

	return l, nil
}

func saveParquet(path string, l *ProcessingLedger) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	writer := parquet.NewGenericWriter[SlideRecord](tmp)
	if _, err := writer.Write(l.Records); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write parquet checkpoint: %w", err)
	}
	if err := writer.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to finalize parquet checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}

// parseInt accepts both plain integers and the float renderings pandas
// writes for integer columns containing missing values ("8.0").
func parseInt(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return int(fl), nil
}
