package commands

import (
	"context"

	"dtfcollect/lib/telemetry"

	"github.com/spf13/cobra"
)

var verbose *bool

var rootCmd = &cobra.Command{
	Use:   "dtfcollect",
	Short: "dtfcollect is a resumable batch collector for the EPO Deep Tech Finder.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
	// errors are printed once, by main
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
