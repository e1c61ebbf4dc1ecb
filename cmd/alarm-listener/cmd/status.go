package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-listener/internal/config"
	"github.com/oshokin/alarm-listener/internal/service/listener"
)

// statusTimeout bounds the health request.
const statusTimeout = 5 * time.Second

// newStatusCommand queries the health endpoint of a running listener.
func newStatusCommand() *cobra.Command {
	var statusConfigPath string

	command := &cobra.Command{
		Use:   "status",
		Short: "Print whether a running listener is connected to the broker.",
		Long: `Queries the gRPC health endpoint at status_addr from the configuration file.
SERVING means the listener is connected and subscribed; NOT_SERVING means it is
connecting, reconnecting or stopped.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
			defer cancel()

			return listener.PrintStatus(ctx, statusConfigPath, cmd.OutOrStdout())
		},
	}

	command.Flags().StringVarP(&statusConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")

	_ = command.MarkFlagRequired("config")

	return command
}
