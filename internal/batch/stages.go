package batch

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kaczmarj/CLAM/internal/ledger"
	"github.com/kaczmarj/CLAM/internal/params"
	"github.com/kaczmarj/CLAM/internal/wsi"
)

// outcome is the typed result of processing one slide. An empty status
// leaves the record's stored status untouched, so a slide that failed
// mid-stage stays eligible for the next run.
type outcome struct {
	status ledger.Status
	times  stageTimes
	err    error
}

type stageTimes struct {
	seg    float64
	patch  float64
	stitch float64
}

// processOne runs every enabled stage for a single slide. All failures are
// isolated here; the caller only aggregates.
func processOne(opts Options, deps Deps, resolver params.Resolver, rec *ledger.SlideRecord) outcome {
	out := outcome{times: stageTimes{seg: sentinel, patch: sentinel, stitch: sentinel}}

	stem := rec.Stem()
	coordsPath := filepath.Join(opts.PatchDir, stem+coordsExt)

	if opts.AutoSkip && fileExists(coordsPath) {
		slog.Info("coordinate artifact already exists in destination, skipped", "slide", rec.SlideID)
		out.status = ledger.StatusAlreadyExist
		return out
	}

	fullPath := filepath.Join(opts.Source, rec.SlideID)
	slide, err := deps.Backend.Open(fullPath)
	if err != nil {
		out.err = &wsi.OpenError{Path: fullPath, Err: err}
		return out
	}
	defer slide.Close()

	eff, resolved, err := resolver.Resolve(rec.ParamSet(), rec.LegacyArea, slide)
	rec.SetParams(resolved)
	if err != nil {
		var guard *wsi.SizeGuardError
		if errors.As(err, &guard) {
			out.status = ledger.StatusFailedSeg
		}
		out.err = err
		return out
	}

	if opts.Seg {
		start := time.Now()
		if err := segment(slide, opts, stem, eff); err != nil {
			out.err = fmt.Errorf("segmentation failed: %w", err)
			return out
		}
		out.times.seg = time.Since(start).Seconds()
	}

	if opts.SaveMask {
		img, err := slide.Visualize(eff.Vis)
		if err != nil {
			out.err = fmt.Errorf("mask rendering failed: %w", err)
			return out
		}
		if err := saveJPEG(filepath.Join(opts.MaskDir, stem+imageExt), img); err != nil {
			out.err = err
			return out
		}
	}

	if opts.Patch {
		patchSize, stepSize := opts.PatchSize, opts.StepSize
		if opts.PatchSpacing > 0 {
			mpp, err := wsi.ResolveMPP(fullPath, deps.MPPProviders)
			if err != nil {
				slog.Warn("skipping slide, cannot determine spacing", "slide", rec.SlideID)
				out.err = err
				return out
			}
			patchSize, stepSize = wsi.NormalizeGeometry(opts.PatchSize, opts.PatchSpacing, mpp)
			slog.Info("using non-overlapping patches",
				"slide", rec.SlideID,
				"slide_mpp", mpp,
				"patch_size", patchSize,
				"step_size", stepSize)
		}

		p := eff.Patch
		p.Level = opts.PatchLevel
		p.PatchSize = patchSize
		p.StepSize = stepSize
		p.SaveDir = opts.PatchDir

		start := time.Now()
		if _, err := slide.GeneratePatchCoords(p); err != nil {
			out.err = fmt.Errorf("patching failed: %w", err)
			return out
		}
		out.times.patch = time.Since(start).Seconds()
	}

	if opts.Stitch && fileExists(coordsPath) {
		if deps.Stitcher == nil {
			out.err = fmt.Errorf("stitching requested but no stitcher wired")
			return out
		}
		start := time.Now()
		img, err := deps.Stitcher.Stitch(coordsPath, slide, stitchDownscale)
		if err != nil {
			out.err = fmt.Errorf("stitching failed: %w", err)
			return out
		}
		if err := saveJPEG(filepath.Join(opts.StitchDir, stem+imageExt), img); err != nil {
			out.err = err
			return out
		}
		out.times.stitch = time.Since(start).Seconds()
	}

	out.status = ledger.StatusProcessed
	return out
}

// segment either loads a precomputed mask artifact for the slide or runs
// tissue segmentation with the resolved parameters.
func segment(slide wsi.Slide, opts Options, stem string, eff params.Effective) error {
	if opts.SegMaskDir != "" {
		maskPath := filepath.Join(opts.SegMaskDir, stem+maskExt)
		if fileExists(maskPath) {
			return slide.LoadSegmentation(maskPath)
		}
	}
	return slide.SegmentTissue(eff.Seg, eff.Filter)
}

func saveJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, nil); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
