package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comalice/commando/internal/core"
)

// Version is set at build time with -ldflags "-X .../internal/cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "commando %s (transition table %s)\n", Version, core.DefaultTable().Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
