// Package patchcmd wires the create-patches command: flags, output
// locations, collaborator lookup, and the batch run itself.
package patchcmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kaczmarj/CLAM/internal/batch"
	"github.com/kaczmarj/CLAM/internal/params"
	"github.com/kaczmarj/CLAM/internal/wsi"
	"github.com/spf13/cobra"
)

// NewCreatePatchesCmd creates the create-patches command.
func NewCreatePatchesCmd() *cobra.Command {
	var source string
	var saveDir string
	var patchSize int
	var stepSize int
	var patchLevel int
	var patchSpacing float64
	var seg bool
	var patch bool
	var stitch bool
	var noSaveMask bool
	var noAutoSkip bool
	var preset string
	var processList string
	var segMaskDir string
	var useDefaults bool
	var backendName string

	cmd := &cobra.Command{
		Use:   "create-patches",
		Short: "Segment tissue and extract patch coordinates from whole-slide images",
		Long: `Batch-process a directory of whole-slide images.

Each slide is optionally segmented, tiled into patch coordinates, and stitched into
a downsampled QA composite. Progress is checkpointed to a per-slide ledger after
every image, so an interrupted run resumes where it left off.`,
		Example: `  # Segment and patch every slide in a directory
  clam create-patches --source /data/slides --save-dir /data/out --seg --patch --stitch

  # Extract 256px patches at 0.5 microns per pixel
  clam create-patches --source /data/slides --save-dir /data/out --patch --patch-spacing 0.5

  # Resume from an edited process list
  clam create-patches --source /data/slides --save-dir /data/out --patch --process-list process_list_edited.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if info, err := os.Stat(source); err != nil || !info.IsDir() {
				return fmt.Errorf("source is not a readable directory: %s", source)
			}

			return executeCreatePatches(runConfig{
				source:       source,
				saveDir:      saveDir,
				patchSize:    patchSize,
				stepSize:     stepSize,
				patchLevel:   patchLevel,
				patchSpacing: patchSpacing,
				seg:          seg,
				patch:        patch,
				stitch:       stitch,
				saveMask:     !noSaveMask,
				autoSkip:     !noAutoSkip,
				preset:       preset,
				processList:  processList,
				segMaskDir:   segMaskDir,
				useDefaults:  useDefaults,
				backendName:  backendName,
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Path to folder containing raw whole-slide image files (required)")
	cmd.Flags().StringVar(&saveDir, "save-dir", "", "Directory to save processed data (required)")
	cmd.Flags().IntVar(&patchSize, "patch-size", 256, "Patch size in pixels")
	cmd.Flags().IntVar(&stepSize, "step-size", 256, "Step size in pixels")
	cmd.Flags().IntVar(&patchLevel, "patch-level", 0, "Downsample level at which to patch")
	cmd.Flags().Float64Var(&patchSpacing, "patch-spacing", 0.25, "Target microns-per-pixel of patches (0 keeps the fixed pixel geometry)")
	cmd.Flags().BoolVar(&seg, "seg", false, "Run tissue segmentation")
	cmd.Flags().BoolVar(&patch, "patch", false, "Extract patch coordinates")
	cmd.Flags().BoolVar(&stitch, "stitch", false, "Render stitched QA composites")
	cmd.Flags().BoolVar(&noSaveMask, "no-save-mask", false, "Do not save segmentation mask visualizations")
	cmd.Flags().BoolVar(&noAutoSkip, "no-auto-skip", false, "Process slides even when their coordinate artifact already exists")
	cmd.Flags().StringVar(&preset, "preset", "", "YAML preset of default segmentation and filter parameters")
	cmd.Flags().StringVar(&processList, "process-list", "", "Name of a list of images to process with parameters, relative to save-dir")
	cmd.Flags().StringVar(&segMaskDir, "seg-masks", "", "Directory of precomputed segmentation masks to load instead of segmenting")
	cmd.Flags().BoolVar(&useDefaults, "use-default-params", false, "Ignore per-slide parameters in the process list and use the defaults for every slide")
	cmd.Flags().StringVar(&backendName, "slide-backend", "openslide", "Registered slide backend to open images with")

	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("save-dir")

	return cmd
}

type runConfig struct {
	source       string
	saveDir      string
	patchSize    int
	stepSize     int
	patchLevel   int
	patchSpacing float64
	seg          bool
	patch        bool
	stitch       bool
	saveMask     bool
	autoSkip     bool
	preset       string
	processList  string
	segMaskDir   string
	useDefaults  bool
	backendName  string
}

func executeCreatePatches(cfg runConfig) error {
	ps := params.Defaults()
	if cfg.preset != "" {
		var err error
		ps, err = params.LoadPreset(cfg.preset)
		if err != nil {
			return err
		}
		slog.Info("loaded preset", "path", cfg.preset)
	}

	patchDir := filepath.Join(cfg.saveDir, "patches")
	maskDir := filepath.Join(cfg.saveDir, "masks")
	stitchDir := filepath.Join(cfg.saveDir, "stitches")
	for _, dir := range []string{cfg.saveDir, patchDir, maskDir, stitchDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	slog.Info("output locations",
		"source", cfg.source,
		"patches", patchDir,
		"masks", maskDir,
		"stitches", stitchDir)

	processList := cfg.processList
	if processList != "" && !filepath.IsAbs(processList) {
		processList = filepath.Join(cfg.saveDir, processList)
	}

	backend, err := wsi.LookupBackend(cfg.backendName)
	if err != nil {
		return err
	}
	stitcher := wsi.RegisteredStitcher()
	if cfg.stitch && stitcher == nil {
		return fmt.Errorf("--stitch requested but no stitcher is registered")
	}

	summary, err := batch.Run(batch.Options{
		Source:       cfg.source,
		SaveDir:      cfg.saveDir,
		PatchDir:     patchDir,
		MaskDir:      maskDir,
		StitchDir:    stitchDir,
		ProcessList:  processList,
		PatchLevel:   cfg.patchLevel,
		PatchSize:    cfg.patchSize,
		StepSize:     cfg.stepSize,
		PatchSpacing: cfg.patchSpacing,
		Seg:          cfg.seg,
		Patch:        cfg.patch,
		Stitch:       cfg.stitch,
		SaveMask:     cfg.saveMask,
		AutoSkip:     cfg.autoSkip,
		SegMaskDir:   cfg.segMaskDir,
		UseDefaults:  cfg.useDefaults,
		Params:       ps,
	}, batch.Deps{
		Backend:      backend,
		Stitcher:     stitcher,
		MPPProviders: wsi.MPPProviders(),
	})
	if err != nil {
		return err
	}

	printSummary(summary)
	fmt.Printf("\nLedger saved to: %s\n", batch.CheckpointPath(cfg.saveDir, processList))

	return nil
}

func printSummary(summary *batch.Summary) {
	fmt.Println("\n========================================")
	fmt.Println("Batch Summary")
	fmt.Println("========================================")
	fmt.Printf("Selected Slides:    %d\n", summary.Total)
	fmt.Printf("Processed:          %d\n", summary.Processed)
	fmt.Printf("Already Exist:      %d\n", summary.AlreadyExist)
	fmt.Printf("Failed Seg:         %d\n", summary.FailedSeg)
	fmt.Println()
	fmt.Printf("Avg Seg Time:       %.2f s\n", summary.MeanSegTime)
	fmt.Printf("Avg Patch Time:     %.2f s\n", summary.MeanPatchTime)
	fmt.Printf("Avg Stitch Time:    %.2f s\n", summary.MeanStitchTime)
	fmt.Println("========================================")
}
