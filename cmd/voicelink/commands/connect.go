package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	infralogging "voicelink/infrastructure/logging"
	"voicelink/presentation/runners/client"
	"voicelink/presentation/signals"
	"voicelink/presentation/signals/shutdown"
)

func connectCmd(g *globals) *cobra.Command {
	var options client.Options
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to the configured server and stay connected",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, appCtxCancel := context.WithCancel(cmd.Context())
			defer appCtxCancel()

			logger := infralogging.NewWriterLogger(cmd.ErrOrStderr())
			shutdown.NewHandler(appCtx, appCtxCancel, signals.DefaultProvider{}, shutdown.NewOSNotifier(), logger).Handle()

			deps := client.NewDependencies(g.manager(), logger)
			if err := deps.Initialize(appCtx); err != nil {
				return err
			}

			err := client.NewRunner(deps.Client(), logger, options).Run(appCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&options.Verbose, "verbose", "v", false, "print protocol traces and incoming voice")
	cmd.Flags().StringVar(&options.Greeting, "say", "", "message sent to the server chat after connecting")
	return cmd
}
