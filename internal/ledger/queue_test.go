package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kaczmarj/CLAM/internal/params"
)

func TestFromDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	// Deliberately created out of order; listing must be lexicographic.
	for _, name := range []string{"b_slide.svs", "a_slide.svs", "c_slide.tiff"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to create fixture: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "subdir.svs"), 0755); err != nil {
		t.Fatalf("Failed to create subdir: %v", err)
	}

	l, err := FromDirectory(tmpDir, params.Defaults())
	if err != nil {
		t.Fatalf("FromDirectory failed: %v", err)
	}

	want := []string{"a_slide.svs", "b_slide.svs", "c_slide.tiff"}
	if len(l.Records) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(l.Records))
	}
	for i, name := range want {
		rec := l.Records[i]
		if rec.SlideID != name {
			t.Errorf("Record %d: expected %s, got %s", i, name, rec.SlideID)
		}
		if rec.Process != 1 {
			t.Errorf("Record %d: expected process 1, got %d", i, rec.Process)
		}
		if rec.Status != StatusPending {
			t.Errorf("Record %d: expected status pending, got %s", i, rec.Status)
		}
		if rec.SThresh != 8 {
			t.Errorf("Record %d: expected default sthresh, got %d", i, rec.SThresh)
		}
	}

	if len(l.Selected()) != 3 {
		t.Errorf("Expected 3 selected records, got %d", len(l.Selected()))
	}
}

func TestFromDirectoryMissing(t *testing.T) {
	if _, err := FromDirectory(filepath.Join(t.TempDir(), "nope"), params.Defaults()); err == nil {
		t.Error("Expected error for missing source directory")
	}
}

func TestFromFilePreservesSelection(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "process_list.csv")
	ps := params.Defaults()

	l := &ProcessingLedger{
		Records: []SlideRecord{
			NewRecord("a.svs", ps),
			NewRecord("b.svs", ps),
			NewRecord("c.svs", ps),
		},
	}
	l.Records[1].Process = 0
	l.Records[1].Status = StatusProcessed

	if err := Save(path, l); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := FromFile(path, ps)
	if err != nil {
		t.Fatalf("FromFile failed: %v", err)
	}

	selected := loaded.Selected()
	if len(selected) != 2 {
		t.Fatalf("Expected 2 selected records, got %d", len(selected))
	}
	if loaded.Records[selected[0]].SlideID != "a.svs" || loaded.Records[selected[1]].SlideID != "c.svs" {
		t.Errorf("Expected a.svs and c.svs selected, got %s and %s",
			loaded.Records[selected[0]].SlideID, loaded.Records[selected[1]].SlideID)
	}
}
