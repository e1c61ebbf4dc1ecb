package integration

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-listener/internal/config"
	"github.com/oshokin/alarm-listener/internal/pidfile"
	"github.com/oshokin/alarm-listener/internal/service/listener"
)

// writeConfig stores a listener configuration pointing at broker.
func writeConfig(t *testing.T, broker *testBroker) string {
	t.Helper()

	ssl := false
	cfgPath := filepath.Join(t.TempDir(), "listener.yaml")

	require.NoError(t, config.Save(cfgPath, &config.Config{
		MQTTHost:      broker.host,
		MQTTPort:      broker.port,
		MQTTSSL:       &ssl,
		MQTTClientID:  "integration-listener",
		StateTopic:    "alarm/state",
		CommandTopic:  "alarm/command",
		RFIDAuthTopic: "alarm/rfid",
		DisplayTopic:  "display",
		Tokens: []config.Token{
			{Name: "Alice", UID: "U1", AlarmCode: "1234", TimeSlot: "always", DateSlot: "always"},
		},
		Actions:       map[string]string{"open": "DISARM"},
		CommandDelay:  200 * time.Millisecond,
		AuditDatabase: filepath.Join(t.TempDir(), "audit.db"),
	}))

	return cfgPath
}

// TestListener_EndToEnd relays state and authorizes a token through a live broker.
func TestListener_EndToEnd(t *testing.T) {
	t.Parallel()

	broker := startBroker(t)
	presence := broker.watch(t, 1, listener.PresenceTopic)
	display := broker.watch(t, 2, "display/#")
	commands := broker.watch(t, 3, "alarm/command")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- listener.Run(ctx, &listener.Options{
			ConfigPath: writeConfig(t, broker),
			PIDDir:     t.TempDir(),
		})
	}()

	require.Equal(t, listener.PresencePayload, next(t, presence).payload)

	// Wait for the subscriptions that follow the presence announcement.
	time.Sleep(200 * time.Millisecond)

	broker.publish(t, "alarm/state", `armed\naway`)
	state := next(t, display)
	require.Equal(t, "display", state.topic)
	require.Equal(t, "armed\naway", state.payload)

	broker.publish(t, "alarm/rfid", `{"code":"1234","hostname":"h1","uid":"U1","action":"open"}`)
	granted := next(t, display)
	require.Equal(t, "display/h1", granted.topic)
	require.JSONEq(t, `{"access":"GRANTED","uid":"U1","name":"Alice"}`, granted.payload)
	require.Equal(t, "DISARM", next(t, commands).payload)

	broker.publish(t, "alarm/rfid", `{"code":"0000","hostname":"h2","uid":"U1","action":"open"}`)
	require.Equal(t, `{"access":"DENIED","uid":"U1","name":"Alice"}`, next(t, display).payload)

	cancel()

	require.ErrorIs(t, <-done, listener.ErrInterrupted)
}

// TestListener_SecondInstanceRefused keeps a single listener per lock directory.
func TestListener_SecondInstanceRefused(t *testing.T) {
	t.Parallel()

	pidDir := t.TempDir()

	// The parent process (the test runner) stands in for a live listener.
	owner := strconv.Itoa(os.Getppid())
	require.NoError(t, os.WriteFile(filepath.Join(pidDir, listener.PIDName+".pid"), []byte(owner), 0o600))

	err := listener.Run(context.Background(), &listener.Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		PIDDir:     pidDir,
	})
	require.ErrorIs(t, err, pidfile.ErrAlreadyLocked)
}

// TestListener_InvalidConfig fails before connecting and releases the lock.
func TestListener_InvalidConfig(t *testing.T) {
	t.Parallel()

	pidDir := t.TempDir()

	err := listener.Run(context.Background(), &listener.Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		PIDDir:     pidDir,
	})
	require.Error(t, err)
	require.NoFileExists(t, filepath.Join(pidDir, listener.PIDName+".pid"))
}
