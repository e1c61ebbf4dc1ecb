package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/alarm-listener/internal/config"
	"github.com/oshokin/alarm-listener/internal/logger"
	"github.com/oshokin/alarm-listener/internal/service/listener"
	"github.com/oshokin/alarm-listener/internal/version"
)

// defaultLogFile is where the log is written besides stdout.
const defaultLogFile = "/tmp/mqtt_alarm.log"

var (
	// configPath to the configuration YAML file.
	configPath string
	// verbosity is the number of -v flags.
	verbosity int
	// logFile receives a copy of the log; empty disables it.
	logFile string
	// logLevel overrides verbosity by name.
	logLevel string
	// pidDir holds the instance lock file.
	pidDir string

	// rootCmd represents the base command for running the listener.
	rootCmd = &cobra.Command{
		Use:   "alarm-listener",
		Short: "Authorize RFID tokens and relay alarm state over MQTT.",
		Long: `Connects to the MQTT broker and serves the alarm panel and the RFID readers.

State changes published by the panel are forwarded, retained, to the display topic.
Authorization requests from the readers are checked against the configured tokens
and their time windows; the decision is sent back to the reader and a granted
action's command is sent to the panel after a short delay.

SIGHUP reloads tokens and actions from the configuration file.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			level, err := resolveLevel(cmd)
			if err != nil {
				return err
			}

			closeLog, err := setupLogger(level)
			if err != nil {
				return err
			}

			defer closeLog()

			logger.InfoKV(ctx, "Starting alarm-listener", "version", version.Full())

			options := &listener.Options{
				ConfigPath: configPath,
				PIDDir:     pidDir,
			}

			return listener.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-listener CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(newAuditCommand(), newStatusCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveLevel picks the log level from --log-level or the -v count.
func resolveLevel(cmd *cobra.Command) (zapcore.Level, error) {
	if logLevel != "" {
		level, ok := logger.ParseLogLevel(logLevel)
		if !ok {
			return level, fmt.Errorf("unknown log level %q", logLevel)
		}

		return level, nil
	}

	if !cmd.Flags().Changed("verbosity") {
		return logger.VerbosityLevel(-1), nil
	}

	return logger.VerbosityLevel(verbosity), nil
}

// setupLogger installs the global logger, writing to stdout and logFile.
func setupLogger(level zapcore.Level) (func(), error) {
	logger.SetLevel(level)

	if logFile == "" {
		return func() {}, nil
	}

	l, closeFile, err := logger.NewWithFile(logger.AtomicLevel(), logFile)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger.SetLogger(l)

	return func() {
		_ = l.Sync()

		closeFile()
	}, nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().CountVarP(&verbosity, "verbosity", "v", "increase output verbosity")
	rootCmd.Flags().StringVarP(&logFile, "log", "l", defaultLogFile, "file to log to, empty to disable")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level name, overrides -v (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&pidDir, "pid-dir", listener.DefaultPIDDir, "directory of the instance lock file")

	_ = rootCmd.MarkFlagRequired("config")
}
