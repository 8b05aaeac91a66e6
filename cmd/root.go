package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clam",
		Short: "Whole-slide image preprocessing for computational pathology",
		Long: `CLAM preprocesses gigapixel whole-slide images for downstream analysis.

It segments tissue, extracts patch coordinates at a chosen resolution, and renders
stitched visualizations for QA, tracking per-slide progress in a resumable ledger.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Pull in a .env file when one exists.
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newCreatePatchesCmd())

	return cmd
}
