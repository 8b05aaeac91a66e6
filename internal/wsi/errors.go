package wsi

import (
	"errors"
	"fmt"
)

// ErrResolutionUnavailable means no metadata provider reported a physical
// spacing for the slide. The slide is skipped; the batch continues.
var ErrResolutionUnavailable = errors.New("no metadata provider reported microns-per-pixel")

// OpenError wraps a failure to open a slide file.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open slide %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// SizeGuardError means the chosen segmentation level's raster exceeds the
// area guard and segmentation was not attempted.
type SizeGuardError struct {
	Width, Height int64
}

func (e *SizeGuardError) Error() string {
	return fmt.Sprintf("level dimensions %d x %d are likely too large for successful segmentation", e.Width, e.Height)
}
