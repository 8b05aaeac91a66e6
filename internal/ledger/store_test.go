package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kaczmarj/CLAM/internal/params"
)

func TestCSVRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "process_list_autogen.csv")

	ps := params.Defaults()
	l := &ProcessingLedger{
		Records: []SlideRecord{
			NewRecord("tumor_001.svs", ps),
			NewRecord("tumor_002.svs", ps),
		},
	}
	l.Records[0].Process = 0
	l.Records[0].Status = StatusProcessed
	l.Records[0].SegLevel = 2
	l.Records[0].KeepIDs = "3,5,9"

	if err := Save(path, l); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, ps)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(loaded.Records))
	}
	if loaded.Legacy {
		t.Error("Expected non-legacy schema")
	}

	got := loaded.Records[0]
	if got.SlideID != "tumor_001.svs" {
		t.Errorf("Expected slide_id tumor_001.svs, got %s", got.SlideID)
	}
	if got.Process != 0 {
		t.Errorf("Expected process 0, got %d", got.Process)
	}
	if got.Status != StatusProcessed {
		t.Errorf("Expected status processed, got %s", got.Status)
	}
	if got.SegLevel != 2 {
		t.Errorf("Expected seg_level 2, got %d", got.SegLevel)
	}
	if got.KeepIDs != "3,5,9" {
		t.Errorf("Expected keep_ids 3,5,9, got %s", got.KeepIDs)
	}
	if got.Stem() != "tumor_001" {
		t.Errorf("Expected stem tumor_001, got %s", got.Stem())
	}

	if loaded.Records[1].Status != StatusPending {
		t.Errorf("Expected status pending, got %s", loaded.Records[1].Status)
	}
	if loaded.Records[1].Process != 1 {
		t.Errorf("Expected process 1, got %d", loaded.Records[1].Process)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "ledger.csv")

	l := &ProcessingLedger{Records: []SlideRecord{NewRecord("a.svs", params.Defaults())}}
	if err := Save(path, l); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "ledger.csv" {
			t.Errorf("Unexpected leftover file: %s", entry.Name())
		}
	}
}

func TestSaveOverwritesCheckpoint(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "ledger.csv")
	ps := params.Defaults()

	l := &ProcessingLedger{Records: []SlideRecord{NewRecord("a.svs", ps)}}
	if err := Save(path, l); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	l.Records[0].Status = StatusProcessed
	if err := Save(path, l); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := Load(path, ps)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Records[0].Status != StatusProcessed {
		t.Errorf("Expected latest checkpoint to win, got status %s", loaded.Records[0].Status)
	}
}

func TestSaveFailureKeepsPreviousCheckpoint(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not bind root")
	}

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "ledger.csv")
	ps := params.Defaults()

	l := &ProcessingLedger{Records: []SlideRecord{NewRecord("a.svs", ps)}}
	if err := Save(path, l); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// A read-only directory rejects the temp file, so the checkpoint write
	// fails before the previous file is touched.
	if err := os.Chmod(tmpDir, 0555); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	defer os.Chmod(tmpDir, 0755)

	l.Records[0].Status = StatusProcessed
	if err := Save(path, l); err == nil {
		t.Fatal("Expected save to fail in a read-only directory")
	}

	if err := os.Chmod(tmpDir, 0755); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}

	loaded, err := Load(path, ps)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Records[0].Status != StatusPending {
		t.Errorf("Expected previous checkpoint to survive, got status %s", loaded.Records[0].Status)
	}
	assertNoTempFiles(t, tmpDir)
}

func TestSaveRenameFailureLeavesNoTempFiles(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "ledger.csv")

	// A directory squatting on the destination makes the final rename fail
	// after the temp file was fully written.
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}

	l := &ProcessingLedger{Records: []SlideRecord{NewRecord("a.svs", params.Defaults())}}
	if err := Save(path, l); err == nil {
		t.Fatal("Expected save to fail when the destination is a directory")
	}
	assertNoTempFiles(t, tmpDir)
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp") {
			t.Errorf("Leftover temp file: %s", entry.Name())
		}
	}
}

func TestLoadLegacyCSV(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "legacy.csv")

	// Pre-migration schema: absolute area column "a", no per-level
	// thresholds, float renderings as pandas writes them.
	csv := strings.Join([]string{
		"slide_id,process,status,seg_level,sthresh,a",
		"old_1.svs,1,pending,0,8.0,400000",
		"old_2.svs,0,processed,1,8,275000",
	}, "\n") + "\n"

	if err := os.WriteFile(path, []byte(csv), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	ps := params.Defaults()
	loaded, err := Load(path, ps)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !loaded.Legacy {
		t.Fatal("Expected legacy schema detection from the a column")
	}
	if loaded.Records[0].LegacyArea != 400000 {
		t.Errorf("Expected legacy area 400000, got %d", loaded.Records[0].LegacyArea)
	}
	if loaded.Records[0].SThresh != 8 {
		t.Errorf("Expected sthresh 8 from float cell, got %d", loaded.Records[0].SThresh)
	}

	// Columns the file does not carry fall back to defaults.
	if loaded.Records[0].AT != ps.Filter.AT {
		t.Errorf("Expected default a_t %d, got %d", ps.Filter.AT, loaded.Records[0].AT)
	}
	if loaded.Records[0].ContourFn != "four_pt" {
		t.Errorf("Expected default contour_fn, got %s", loaded.Records[0].ContourFn)
	}

	// Stored selection and status survive.
	if loaded.Records[1].Process != 0 {
		t.Errorf("Expected process 0, got %d", loaded.Records[1].Process)
	}
	if loaded.Records[1].Status != StatusProcessed {
		t.Errorf("Expected status processed, got %s", loaded.Records[1].Status)
	}
}

func TestLegacyCSVRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "legacy.csv")
	ps := params.Defaults()

	l := &ProcessingLedger{Legacy: true}
	rec := NewRecord("old.svs", ps)
	rec.LegacyArea = 123456
	l.Records = append(l.Records, rec)

	if err := Save(path, l); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, ps)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.Legacy {
		t.Error("Expected legacy flag to survive a round trip")
	}
	if loaded.Records[0].LegacyArea != 123456 {
		t.Errorf("Expected legacy area 123456, got %d", loaded.Records[0].LegacyArea)
	}
}

func TestParquetRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "ledger.parquet")
	ps := params.Defaults()

	l := &ProcessingLedger{
		Records: []SlideRecord{
			NewRecord("tumor_001.svs", ps),
			NewRecord("tumor_002.svs", ps),
		},
	}
	l.Records[1].Status = StatusFailedSeg
	l.Records[1].Process = 0

	if err := Save(path, l); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path, ps)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(loaded.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(loaded.Records))
	}
	if loaded.Records[1].SlideID != "tumor_002.svs" {
		t.Errorf("Expected slide_id tumor_002.svs, got %s", loaded.Records[1].SlideID)
	}
	if loaded.Records[1].Status != StatusFailedSeg {
		t.Errorf("Expected status failed_seg, got %s", loaded.Records[1].Status)
	}
	if loaded.Records[0].SThresh != 8 {
		t.Errorf("Expected sthresh 8, got %d", loaded.Records[0].SThresh)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := Load("ledger.xlsx", params.Defaults()); err == nil {
		t.Error("Expected error for unsupported format")
	}
	if err := Save("ledger.xlsx", &ProcessingLedger{}); err == nil {
		t.Error("Expected error for unsupported format")
	}
}
