package mqtt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestNew_ValidatesSettings verifies host and CA bundle checks.
func TestNew_ValidatesSettings(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), Settings{})
	require.Error(t, err)
	require.Nil(t, c)

	badCA := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(badCA, []byte("not a certificate"), 0o600))

	_, err = New(context.Background(), Settings{Host: "broker.local", Port: 8883, TLS: true, CACertFile: badCA})
	require.ErrorIs(t, err, errInvalidCACert)

	_, err = New(context.Background(), Settings{
		Host:       "broker.local",
		Port:       8883,
		TLS:        true,
		CACertFile: filepath.Join(t.TempDir(), "missing.pem"),
	})
	require.Error(t, err)

	c, err = New(context.Background(), Settings{Host: "broker.local", Port: 8883, TLS: true})
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

// TestNew_Defaults checks generated identifiers and options.
func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	c, err := New(
		context.Background(),
		Settings{Host: "127.0.0.1", Port: 1883},
		WithCallTimeout(time.Second),
		WithEventBuffer(2),
		WithQoS(1),
	)
	require.NoError(t, err)

	defer func() {
		_ = c.Close()
	}()

	require.True(t, strings.HasPrefix(c.ClientID(), clientIDPrefix))
	require.Equal(t, time.Second, c.callTimeout)
	require.Equal(t, 2, cap(c.events))
	require.Equal(t, byte(1), c.qos)

	named, err := New(context.Background(), Settings{Host: "127.0.0.1", Port: 1883, ClientID: "door-1"})
	require.NoError(t, err)
	require.Equal(t, "door-1", named.ClientID())
	require.NoError(t, named.Close())
}

// TestBrokerURL covers plain and TLS schemes including IPv6 hosts.
func TestBrokerURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "tcp://broker.local:1883", BrokerURL(Settings{Host: "broker.local", Port: 1883}))
	require.Equal(t, "ssl://broker.local:8883", BrokerURL(Settings{Host: "broker.local", Port: 8883, TLS: true}))
	require.Equal(t, "tcp://[::1]:1883", BrokerURL(Settings{Host: "::1", Port: 1883}))
}

// TestClient_EventsAfterClose ensures callbacks never block once the client is closed.
func TestClient_EventsAfterClose(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), Settings{Host: "127.0.0.1", Port: 1883}, WithEventBuffer(1))
	require.NoError(t, err)

	c.onConnectionLost(nil, errors.New("broken pipe"))

	event := <-c.Events()
	require.Equal(t, EventConnectionLost, event.Kind)
	require.EqualError(t, event.Err, "broken pipe")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	done := make(chan struct{})

	go func() {
		c.push(Event{Kind: EventMessage})
		c.push(Event{Kind: EventMessage})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push blocked after Close")
	}
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

func TestGrantedQoS(t *testing.T) {
	t.Parallel()

	granted, err := grantedQoS("hass/status", map[string]byte{"hass/status": 1})
	require.NoError(t, err)
	require.Equal(t, byte(1), granted)

	_, err = grantedQoS("hass/status", map[string]byte{"hass/status": 0x80})
	require.ErrorIs(t, err, errSubscriptionRejected)

	_, err = grantedQoS("hass/status", map[string]byte{"other": 0})
	require.ErrorIs(t, err, errSubscriptionRejected)
}
