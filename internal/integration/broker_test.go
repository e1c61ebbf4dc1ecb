package integration

import (
	"net"
	"strconv"
	"testing"
	"time"

	mqttserver "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/require"
)

// received is a message seen by the broker's inline client.
type received struct {
	topic   string
	payload string
}

// testBroker is an in-process MQTT broker.
type testBroker struct {
	server *mqttserver.Server
	host   string
	port   int
}

// startBroker runs a broker on a free local port and stops it with the test.
func startBroker(t *testing.T) *testBroker {
	t.Helper()

	addr := reservePort(t)

	host, portValue, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	port, err := strconv.Atoi(portValue)
	require.NoError(t, err)

	server := mqttserver.New(&mqttserver.Options{InlineClient: true})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})))
	require.NoError(t, server.Serve())

	t.Cleanup(func() {
		_ = server.Close()
	})

	return &testBroker{server: server, host: host, port: port}
}

// watch collects the messages published on filter.
func (b *testBroker) watch(t *testing.T, id int, filter string) <-chan received {
	t.Helper()

	messages := make(chan received, 16)

	err := b.server.Subscribe(filter, id, func(_ *mqttserver.Client, _ packets.Subscription, pk packets.Packet) {
		messages <- received{
			topic:   pk.TopicName,
			payload: string(pk.Payload),
		}
	})
	require.NoError(t, err)

	return messages
}

// publish injects a message as if sent by a device.
func (b *testBroker) publish(t *testing.T, topic, payload string) {
	t.Helper()

	require.NoError(t, b.server.Publish(topic, []byte(payload), false, 0))
}

// next waits for one message.
func next(t *testing.T, messages <-chan received) received {
	t.Helper()

	select {
	case message := <-messages:
		return message
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for a message")
	}

	return received{}
}

// reservePort returns a free local TCP address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}
