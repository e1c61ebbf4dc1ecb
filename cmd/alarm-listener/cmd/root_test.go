package cmd

import (
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// newFlagCommand returns a command carrying the verbosity flag only.
func newFlagCommand(target *int) *cobra.Command {
	command := &cobra.Command{Use: "test"}
	command.Flags().CountVarP(target, "verbosity", "v", "")

	return command
}

// TestResolveLevel maps -v counts to levels. Not parallel: the flags are package state.
func TestResolveLevel(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want zapcore.Level
	}{
		{name: "unset", args: nil, want: zapcore.WarnLevel},
		{name: "one", args: []string{"-v"}, want: zapcore.WarnLevel},
		{name: "two", args: []string{"-vv"}, want: zapcore.InfoLevel},
		{name: "three", args: []string{"-vvv"}, want: zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verbosity = 0
			logLevel = ""

			command := newFlagCommand(&verbosity)
			require.NoError(t, command.ParseFlags(tt.args))

			level, err := resolveLevel(command)
			require.NoError(t, err)
			require.Equal(t, tt.want, level)
		})
	}
}

// TestResolveLevel_Override prefers --log-level and rejects unknown names.
func TestResolveLevel_Override(t *testing.T) {
	verbosity = 0

	command := newFlagCommand(&verbosity)
	require.NoError(t, command.ParseFlags([]string{"-vvv"}))

	logLevel = "error"
	level, err := resolveLevel(command)
	require.NoError(t, err)
	require.Equal(t, zapcore.ErrorLevel, level)

	logLevel = "loud"
	_, err = resolveLevel(command)
	require.Error(t, err)

	logLevel = ""
}

// TestSubcommands_RequireConfig refuses to run audit and status without --config.
func TestSubcommands_RequireConfig(t *testing.T) {
	t.Parallel()

	for _, command := range []*cobra.Command{newAuditCommand(), newStatusCommand()} {
		command.SetArgs([]string{})
		command.SetOut(io.Discard)
		command.SetErr(io.Discard)

		err := command.Execute()
		require.ErrorContains(t, err, `required flag(s) "config" not set`)
	}
}
