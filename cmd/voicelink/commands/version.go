package commands

import (
	"github.com/spf13/cobra"

	"voicelink/presentation/runners/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build and announced client versions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version.NewRunner(cmd.OutOrStdout()).Run(cmd.Context())
		},
	}
}
