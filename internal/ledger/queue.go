package ledger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kaczmarj/CLAM/internal/params"
)

// FromDirectory builds a fresh ledger from the regular files of a source
// directory, in lexicographic order, every record selected and pending.
func FromDirectory(source string, ps params.ParameterSet) (*ProcessingLedger, error) {
	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, fmt.Errorf("failed to list source directory: %w", err)
	}

	l := &ProcessingLedger{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		l.Records = append(l.Records, NewRecord(entry.Name(), ps))
	}

	slog.Info("built work queue from source directory", "source", source, "slides", len(l.Records))
	return l, nil
}

// FromFile loads a previously persisted process list, preserving its order,
// selection flags, and stored parameter values. Columns the file does not
// carry are filled from ps.
func FromFile(path string, ps params.ParameterSet) (*ProcessingLedger, error) {
	l, err := Load(path, ps)
	if err != nil {
		return nil, fmt.Errorf("failed to load process list: %w", err)
	}

	if l.Legacy {
		slog.Info("detected legacy segmentation ledger, legacy support enabled", "path", path)
	}
	slog.Info("loaded work queue from process list", "path", path, "slides", len(l.Records), "selected", len(l.Selected()))
	return l, nil
}
