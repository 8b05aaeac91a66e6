// Package wsi defines the collaborator interfaces the batch pipeline drives:
// slide backends, metadata providers, and the stitcher. The pixel-level
// algorithms themselves live behind these interfaces.
package wsi

import "image"

// SegmentParams are the resolved inputs to tissue segmentation.
type SegmentParams struct {
	Level      int
	SThresh    int
	MThresh    int
	Close      int
	UseOtsu    bool
	KeepIDs    []int
	ExcludeIDs []int
}

// FilterParams control contour and hole filtering after thresholding.
type FilterParams struct {
	ATissue   int // minimum tissue contour area
	AHole     int // minimum hole area
	MaxNHoles int
}

// VisualizeParams control the segmentation mask rendering.
type VisualizeParams struct {
	Level         int
	LineThickness int
}

// PatchParams are the resolved inputs to patch-coordinate generation.
type PatchParams struct {
	Level      int
	PatchSize  int
	StepSize   int
	SaveDir    string
	UsePadding bool
	ContourFn  string
}

// Slide is an open whole-slide image. Implementations are not assumed safe
// for concurrent use; the pipeline drives exactly one slide at a time.
type Slide interface {
	// LevelCount returns the number of pyramid levels.
	LevelCount() int

	// LevelDimensions returns the pixel width and height of a level.
	LevelDimensions(level int) (w, h int64)

	// LevelDownsample returns the per-axis downsample factors of a level
	// relative to level 0.
	LevelDownsample(level int) (x, y float64)

	// BestLevelForDownsample returns the level whose downsample factor best
	// approximates target.
	BestLevelForDownsample(target float64) int

	// SegmentTissue runs tissue segmentation, storing contours on the slide.
	SegmentTissue(seg SegmentParams, filter FilterParams) error

	// LoadSegmentation initializes segmentation state from a precomputed
	// mask artifact instead of running SegmentTissue.
	LoadSegmentation(maskPath string) error

	// Visualize renders the slide with its current segmentation state drawn
	// on top. Contours may be absent; the render is then the bare slide.
	Visualize(vis VisualizeParams) (image.Image, error)

	// GeneratePatchCoords tiles the segmented contours and persists the
	// coordinate artifact, returning its path.
	GeneratePatchCoords(p PatchParams) (string, error)

	Close() error
}

// Backend opens slides from disk.
type Backend interface {
	Open(path string) (Slide, error)
}

// Stitcher renders a downsampled composite of the patches referenced by a
// coordinate artifact, for visual QA.
type Stitcher interface {
	Stitch(coordsPath string, slide Slide, downscale int) (image.Image, error)
}
