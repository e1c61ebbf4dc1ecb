package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/oshokin/alarm-listener/internal/logger"
)

// EventKind tells what happened on the connection.
type EventKind int

const (
	// EventMessage is a message received on a subscribed topic.
	EventMessage EventKind = iota
	// EventConnectionLost reports an unexpected disconnect.
	EventConnectionLost
)

// Event is a message or connection notification produced by the client.
type Event struct {
	// Kind is the event type.
	Kind EventKind
	// Topic is the topic of an EventMessage.
	Topic string
	// Payload is the body of an EventMessage.
	Payload []byte
	// Err is the cause of an EventConnectionLost.
	Err error
}

// Settings describes the broker connection.
type Settings struct {
	// Host is the broker host name or address.
	Host string
	// Port is the broker TCP port.
	Port int
	// TLS enables an ssl:// connection.
	TLS bool
	// CACertFile is an optional PEM bundle used to verify the broker.
	CACertFile string
	// Username is the optional broker user.
	Username string
	// Password is the optional broker password.
	Password string
	// ClientID identifies the session; generated when empty.
	ClientID string
	// KeepAlive is the MQTT keepalive interval.
	KeepAlive time.Duration
}

// Client wraps the paho client with context-aware helpers.
type Client struct {
	// client is the underlying paho client.
	client paho.Client
	// events delivers messages and connection notifications to the owner.
	events chan Event
	// done is closed by Close to release callbacks blocked on events.
	done chan struct{}
	// closeOnce guards done.
	closeOnce sync.Once

	// callTimeout is the default timeout for individual broker operations.
	callTimeout time.Duration
	// eventBuffer is the capacity of the events channel.
	eventBuffer int
	// qos is the quality of service used for subscriptions and publications.
	qos byte
	// clientID is the effective client identifier.
	clientID string
	// broker is the broker URL.
	broker string
}

// Option configures client behaviour.
type Option func(*Client)

const (
	// DefaultCallTimeout bounds connect, subscribe and publish calls.
	DefaultCallTimeout = 10 * time.Second
	// defaultEventBuffer is the default capacity of the events channel.
	defaultEventBuffer = 64
	// clientIDPrefix prefixes generated client identifiers.
	clientIDPrefix = "alarm-listener-"
)

// WithCallTimeout sets a default timeout for broker calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithEventBuffer sets the capacity of the events channel.
func WithEventBuffer(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.eventBuffer = size
		}
	}
}

// WithQoS sets the quality of service for subscriptions and publications.
func WithQoS(qos byte) Option {
	return func(c *Client) {
		c.qos = qos
	}
}

var (
	// errHostRequired is returned when the broker host is missing.
	errHostRequired = errors.New("broker host must be provided")
	// errInvalidCACert is returned when the CA bundle holds no usable certificate.
	errInvalidCACert = errors.New("no certificates found in CA bundle")
	// errUnexpectedToken is returned when paho hands back an unexpected token type.
	errUnexpectedToken = errors.New("unexpected token type")
	// errSubscriptionRejected is returned when the SUBACK carries the failure code.
	errSubscriptionRejected = errors.New("subscription rejected by broker")
)

// subscribeFailure is the SUBACK return code for a refused subscription.
const subscribeFailure = 0x80

// installLogBridge routes paho's internal loggers into zap once per process.
//
//nolint:gochecknoglobals // paho exposes its loggers as package variables.
var installLogBridge sync.Once

// New creates a client for the broker described by settings. It does not connect.
func New(ctx context.Context, settings Settings, opts ...Option) (*Client, error) {
	if settings.Host == "" {
		return nil, errHostRequired
	}

	c := &Client{
		done:        make(chan struct{}),
		callTimeout: DefaultCallTimeout,
		eventBuffer: defaultEventBuffer,
		clientID:    settings.ClientID,
		broker:      BrokerURL(settings),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.clientID == "" {
		c.clientID = clientIDPrefix + uuid.NewString()
	}

	c.events = make(chan Event, c.eventBuffer)

	clientOptions := paho.NewClientOptions().
		AddBroker(c.broker).
		SetClientID(c.clientID).
		SetKeepAlive(settings.KeepAlive).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetDefaultPublishHandler(c.onMessage).
		SetConnectionLostHandler(c.onConnectionLost)

	if settings.Username != "" && settings.Password != "" {
		clientOptions.SetUsername(settings.Username)
		clientOptions.SetPassword(settings.Password)
	}

	if settings.TLS {
		tlsConfig, err := newTLSConfig(settings.CACertFile)
		if err != nil {
			return nil, err
		}

		clientOptions.SetTLSConfig(tlsConfig)
	}

	installLogBridge.Do(func() {
		bridge(logger.FromContext(ctx))
	})

	c.client = paho.NewClient(clientOptions)

	return c, nil
}

// BrokerURL returns the paho broker URL for the settings.
func BrokerURL(settings Settings) string {
	scheme := "tcp"
	if settings.TLS {
		scheme = "ssl"
	}

	return scheme + "://" + net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))
}

// ClientID returns the effective client identifier.
func (c *Client) ClientID() string {
	return c.clientID
}

// Events returns the channel of messages and connection notifications.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Connect opens the session and blocks until the broker acknowledges it.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.wait(ctx, c.client.Connect()); err != nil {
		return fmt.Errorf("connect to %s: %w", c.broker, err)
	}

	return nil
}

// Subscribe subscribes to topic; messages arrive on Events.
// It returns the QoS granted by the broker.
func (c *Client) Subscribe(ctx context.Context, topic string) (byte, error) {
	token := c.client.Subscribe(topic, c.qos, nil)
	if err := c.wait(ctx, token); err != nil {
		return 0, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	subscribeToken, ok := token.(*paho.SubscribeToken)
	if !ok {
		return 0, fmt.Errorf("subscribe to %s: %w", topic, errUnexpectedToken)
	}

	granted, err := grantedQoS(topic, subscribeToken.Result())
	if err != nil {
		return 0, fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	return granted, nil
}

// grantedQoS picks topic's return code out of a SUBACK result.
func grantedQoS(topic string, result map[string]byte) (byte, error) {
	code, ok := result[topic]
	if !ok || code == subscribeFailure {
		return 0, errSubscriptionRejected
	}

	return code, nil
}

// Publish sends payload to topic.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	if err := c.wait(ctx, c.client.Publish(topic, c.qos, retain, payload)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	return nil
}

// Disconnect closes the session, giving in-flight work a short grace period.
// It also aborts a pending connect, so the next Connect starts from a clean
// disconnected status; on an idle client it does nothing.
func (c *Client) Disconnect() {
	const quiesceMillis = 250

	c.client.Disconnect(quiesceMillis)
}

// Close disconnects and releases callbacks waiting to deliver events.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	c.Disconnect()
	c.closeOnce.Do(func() {
		close(c.done)
	})

	return nil
}

// onMessage forwards a received message to the events channel.
func (c *Client) onMessage(_ paho.Client, message paho.Message) {
	payload := append([]byte(nil), message.Payload()...)

	c.push(Event{
		Kind:    EventMessage,
		Topic:   message.Topic(),
		Payload: payload,
	})
}

// onConnectionLost forwards an unexpected disconnect to the events channel.
func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.push(Event{
		Kind: EventConnectionLost,
		Err:  err,
	})
}

// push delivers an event unless the client is closed.
func (c *Client) push(event Event) {
	select {
	case c.events <- event:
	case <-c.done:
	}
}

// wait blocks until the token completes, the call times out or ctx is canceled.
func (c *Client) wait(ctx context.Context, token paho.Token) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	select {
	case <-token.Done():
		return token.Error()
	case <-callCtx.Done():
		return callCtx.Err()
	}
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// newTLSConfig trusts the CA bundle at path, or the system roots when path is empty.
func newTLSConfig(path string) (*tls.Config, error) {
	//nolint:exhaustruct // Defaults are fine apart from the minimum version and roots.
	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if path == "" {
		return config, nil
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(contents) {
		return nil, fmt.Errorf("%s: %w", path, errInvalidCACert)
	}

	config.RootCAs = pool

	return config, nil
}
