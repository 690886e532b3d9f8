package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"voicelink/cmd/handlers"
	"voicelink/infrastructure/settings"
)

func initCmd(g *globals) *cobra.Command {
	var (
		req   handlers.ConfRequest
		music bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a connection file with a new identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if music {
				req.Codec = settings.OpusMusic
			}
			m := g.manager()
			path, err := m.Path()
			if err != nil {
				return err
			}
			conf, err := handlers.GenerateNewConnectionConf(cmd.Context(), req, m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connection file written to %s\nServer: %s:%d\n", path, conf.Host, conf.Port)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Host, "host", "", "server host name or address")
	cmd.Flags().Uint16Var(&req.Port, "port", settings.DefaultPort, "server port")
	cmd.Flags().StringVarP(&req.Nickname, "nickname", "n", "", "nickname shown to other clients")
	cmd.Flags().StringVar(&req.DefaultChannel, "channel", "", "channel name or id to join after connecting")
	cmd.Flags().IntVar(&req.SecurityLevel, "level", settings.DefaultSecurityLevel, "identity security level")
	cmd.Flags().BoolVar(&music, "music", false, "announce the Opus music codec for outgoing voice")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("nickname")
	return cmd
}
