package wsi

import (
	"fmt"
	"log/slog"
	"math"
)

// MPPProvider reads a slide's native microns-per-pixel from its metadata.
// Read returns ok=false when the file carries no spacing information.
type MPPProvider struct {
	Name string
	Read func(path string) (mpp float64, ok bool, err error)
}

// ResolveMPP queries providers in order and returns the first value found.
// A provider's error or panic is contained at its boundary and treated as
// absent; if every provider comes up empty, ErrResolutionUnavailable is
// returned.
func ResolveMPP(path string, providers []MPPProvider) (float64, error) {
	for _, p := range providers {
		mpp, ok := readMPP(p, path)
		if ok {
			return mpp, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrResolutionUnavailable, path)
}

func readMPP(p MPPProvider, path string) (mpp float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("metadata provider panicked", "provider", p.Name, "slide", path, "panic", r)
			ok = false
		}
	}()

	mpp, ok, err := p.Read(path)
	if err != nil {
		slog.Error("metadata provider failed", "provider", p.Name, "slide", path, "err", err)
		return 0, false
	}
	return mpp, ok
}

// NormalizeGeometry converts a physical-spacing patch request into pixel
// geometry. The step size always equals the patch size: spacing-based sizing
// produces non-overlapping tiles.
func NormalizeGeometry(basePatchSize int, spacing, mpp float64) (patchSize, stepSize int) {
	patchSize = int(math.Round(float64(basePatchSize) * spacing / mpp))
	return patchSize, patchSize
}
