package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-listener/internal/config"
	"github.com/oshokin/alarm-listener/internal/service/listener"
)

// newAuditCommand prints recent access decisions from the audit log.
func newAuditCommand() *cobra.Command {
	options := &listener.AuditOptions{}

	command := &cobra.Command{
		Use:   "audit",
		Short: "Print recent access decisions from the audit log.",
		Long: `Reads the SQLite audit log named by audit_db in the configuration file and prints
the most recent decisions, newest first, one tab-separated line per event:
time, access, reader hostname, token uid, holder name, action and denial reason.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listener.PrintAudit(cmd.Context(), options, cmd.OutOrStdout())
		},
	}

	command.Flags().StringVarP(&options.ConfigPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	command.Flags().StringVarP(&options.Name, "name", "n", "", "only events of this token holder")
	command.Flags().IntVar(&options.Limit, "limit", listener.DefaultAuditLimit, "maximum number of events")

	_ = command.MarkFlagRequired("config")

	return command
}
