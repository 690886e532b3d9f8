// Package commands is the voicelink command line.
package commands

import (
	"github.com/spf13/cobra"

	"voicelink/domain/app"
	"voicelink/presentation/configuration"
)

type globals struct {
	configPath string
}

func (g *globals) manager() *configuration.Manager {
	return configuration.NewManager(g.configPath)
}

func Execute() error {
	return NewRootCommand().Execute()
}

func NewRootCommand() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           app.Name,
		Short:         "Voice server client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "connection file (default <user config dir>/voicelink/connection.json)")

	root.AddCommand(initCmd(g), connectCmd(g), identityCmd(g), versionCmd())
	return root
}
