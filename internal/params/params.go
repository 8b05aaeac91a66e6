// Package params holds the per-category processing parameters and resolves
// the effective value of each one for a given slide.
package params

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AutoLevel requests automatic pyramid-level selection.
const AutoLevel = -1

// SegParams configure tissue segmentation.
type SegParams struct {
	SegLevel   int    `yaml:"seg_level"`
	SThresh    int    `yaml:"sthresh"`
	MThresh    int    `yaml:"mthresh"`
	Close      int    `yaml:"close"`
	UseOtsu    bool   `yaml:"use_otsu"`
	KeepIDs    string `yaml:"keep_ids"`
	ExcludeIDs string `yaml:"exclude_ids"`
}

// FilterParams configure contour and hole filtering.
type FilterParams struct {
	AT        int `yaml:"a_t"`
	AH        int `yaml:"a_h"`
	MaxNHoles int `yaml:"max_n_holes"`
}

// VisParams configure mask visualization.
type VisParams struct {
	VisLevel      int `yaml:"vis_level"`
	LineThickness int `yaml:"line_thickness"`
}

// PatchParams configure patch-coordinate extraction.
type PatchParams struct {
	UsePadding bool   `yaml:"use_padding"`
	ContourFn  string `yaml:"contour_fn"`
}

// ParameterSet is one full set of processing parameters, either the shared
// run-wide defaults or a single record's stored values.
type ParameterSet struct {
	Seg    SegParams    `yaml:"segmentation"`
	Filter FilterParams `yaml:"filter"`
	Vis    VisParams    `yaml:"visualization"`
	Patch  PatchParams  `yaml:"patching"`
}

// Defaults returns the stock parameter set.
func Defaults() ParameterSet {
	return ParameterSet{
		Seg: SegParams{
			SegLevel:   AutoLevel,
			SThresh:    8,
			MThresh:    7,
			Close:      4,
			UseOtsu:    false,
			KeepIDs:    "none",
			ExcludeIDs: "none",
		},
		Filter: FilterParams{
			AT:        100,
			AH:        16,
			MaxNHoles: 8,
		},
		Vis: VisParams{
			VisLevel:      AutoLevel,
			LineThickness: 250,
		},
		Patch: PatchParams{
			UsePadding: true,
			ContourFn:  "four_pt",
		},
	}
}

// LoadPreset overlays a YAML preset file onto the stock defaults and returns
// the result. The defaults themselves are never mutated.
func LoadPreset(path string) (ParameterSet, error) {
	ps := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return ps, fmt.Errorf("failed to read preset: %w", err)
	}

	if err := yaml.Unmarshal(data, &ps); err != nil {
		return ps, fmt.Errorf("failed to parse preset %s: %w", path, err)
	}

	return ps, nil
}
