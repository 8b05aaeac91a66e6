package cmd

import (
	"github.com/kaczmarj/CLAM/internal/patchcmd"
	"github.com/spf13/cobra"
)

func newCreatePatchesCmd() *cobra.Command {
	return patchcmd.NewCreatePatchesCmd()
}
