package listener

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oshokin/alarm-listener/internal/logger"
	"github.com/oshokin/alarm-listener/internal/transport/mqtt"
)

const (
	// PresenceTopic receives the online announcement after every connect.
	PresenceTopic = "hass/status"
	// PresencePayload is the online announcement.
	PresencePayload = "Alarm MQTT Listener Online"

	// MinReconnectDelay is the first reconnect delay.
	MinReconnectDelay = time.Second
	// MaxReconnectDelay caps the reconnect delay.
	MaxReconnectDelay = 30 * time.Second
	// DefaultTransportRetryDelay is the pause after a failed on-connect sequence.
	DefaultTransportRetryDelay = 5 * time.Second
)

var (
	// ErrInterrupted is returned by Run when the context is canceled.
	ErrInterrupted = errors.New("interrupted")

	errConnect        = errors.New("connect to broker")
	errConnectionLost = errors.New("connection lost")
)

// Broker is the transport used by the lifecycle.
type Broker interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, topic string) (byte, error)
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
	Disconnect()
	Events() <-chan mqtt.Event
}

// Lifecycle keeps the broker session alive and feeds inbound messages to the router.
type Lifecycle struct {
	// broker is the transport.
	broker Broker
	// router owns the subscribed topics and their handlers.
	router *Router
	// reconnect computes delays after connection failures.
	reconnect backoff.BackOff
	// transportRetryDelay is the pause after a failed on-connect sequence.
	transportRetryDelay time.Duration
	// observers are told about every transition.
	observers []StateObserver
	// reloadSignals trigger reload inside the event loop.
	reloadSignals <-chan os.Signal
	reload        func(ctx context.Context) error

	state State
}

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithBackOff replaces the reconnect backoff policy.
func WithBackOff(b backoff.BackOff) LifecycleOption {
	return func(l *Lifecycle) {
		l.reconnect = b
	}
}

// WithTransportRetryDelay replaces DefaultTransportRetryDelay.
func WithTransportRetryDelay(delay time.Duration) LifecycleOption {
	return func(l *Lifecycle) {
		l.transportRetryDelay = delay
	}
}

// WithObservers adds state observers.
func WithObservers(observers ...StateObserver) LifecycleOption {
	return func(l *Lifecycle) {
		l.observers = append(l.observers, observers...)
	}
}

// WithReload runs reload in the event loop whenever signals delivers.
func WithReload(signals <-chan os.Signal, reload func(ctx context.Context) error) LifecycleOption {
	return func(l *Lifecycle) {
		l.reloadSignals = signals
		l.reload = reload
	}
}

// NewReconnectBackOff returns the exponential policy 1s, 2s, 4s, ... capped at 30s,
// without jitter and without a total time limit.
func NewReconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = MinReconnectDelay
	b.MaxInterval = MaxReconnectDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}

// NewLifecycle creates a lifecycle for broker and router.
func NewLifecycle(broker Broker, router *Router, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		broker:              broker,
		router:              router,
		reconnect:           NewReconnectBackOff(),
		transportRetryDelay: DefaultTransportRetryDelay,
		state:               StateDisconnected,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// State returns the current state. It is meant for the goroutine running Run.
func (l *Lifecycle) State() State {
	return l.state
}

// Run connects, subscribes and handles messages until ctx is canceled, in
// which case it returns ErrInterrupted. Connection failures never end Run.
func (l *Lifecycle) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "lifecycle")

	l.reconnect.Reset()

	next := StateConnecting

	for {
		l.setState(ctx, next)
		l.drain(ctx)

		err := l.establish(ctx)
		if err == nil {
			l.reconnect.Reset()
			l.setState(ctx, StateConnected)

			err = l.loop(ctx)
		}

		if ctx.Err() != nil {
			return l.interrupt(ctx)
		}

		delay := l.retryDelay(ctx, err)

		l.setState(ctx, StateDisconnected)

		if !sleep(ctx, delay) {
			return l.interrupt(ctx)
		}

		next = StateReconnecting
	}
}

// establish connects, announces presence and subscribes to the routed topics.
func (l *Lifecycle) establish(ctx context.Context) error {
	if err := l.broker.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %w", errConnect, err)
	}

	logger.Info(ctx, "Connected to broker")

	if err := l.broker.Publish(ctx, PresenceTopic, []byte(PresencePayload), false); err != nil {
		return fmt.Errorf("announce presence: %w", err)
	}

	for _, topic := range l.router.Topics() {
		qos, err := l.broker.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}

		logger.InfoKV(ctx, "Subscribed", "topic", topic, "granted_qos", qos)
	}

	return nil
}

// loop handles events until the connection is lost or ctx is canceled.
func (l *Lifecycle) loop(ctx context.Context) error {
	events := l.broker.Events()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.reloadSignals:
			l.runReload(ctx)
		case event, ok := <-events:
			if !ok {
				return errConnectionLost
			}

			switch event.Kind {
			case mqtt.EventMessage:
				if !l.router.Dispatch(ctx, event.Topic, event.Payload) {
					logger.DebugKV(ctx, "Ignoring message on unrouted topic", "topic", event.Topic)
				}
			case mqtt.EventConnectionLost:
				if event.Err == nil {
					return errConnectionLost
				}

				return fmt.Errorf("%w: %w", errConnectionLost, event.Err)
			}
		}
	}
}

// retryDelay closes what is left of the session, logs err and returns how
// long to wait before the next attempt.
func (l *Lifecycle) retryDelay(ctx context.Context, err error) time.Duration {
	// The transport does not reconnect by itself; a session left half open
	// would make every later Connect fail.
	l.broker.Disconnect()

	if errors.Is(err, errConnect) || errors.Is(err, errConnectionLost) {
		delay := l.reconnect.NextBackOff()
		if delay == backoff.Stop {
			delay = MaxReconnectDelay
		}

		logger.ErrorKV(ctx, "Connection to broker failed, reconnecting", "error", err, "delay", delay)

		return delay
	}

	logger.ErrorKV(ctx, "Transport error, retrying", "error", err, "delay", l.transportRetryDelay)

	return l.transportRetryDelay
}

// drain discards events left over from an earlier session, so a stale
// connection-lost notification cannot end the session about to start.
func (l *Lifecycle) drain(ctx context.Context) {
	events := l.broker.Events()

	for {
		select {
		case event := <-events:
			logger.DebugKV(ctx, "Discarding event of a previous session", "kind", event.Kind, "topic", event.Topic)
		default:
			return
		}
	}
}

func (l *Lifecycle) runReload(ctx context.Context) {
	if l.reload == nil {
		return
	}

	if err := l.reload(ctx); err != nil {
		logger.ErrorKV(ctx, "Failed to reload configuration, keeping the previous one", "error", err)
		return
	}

	logger.Warn(ctx, "Configuration reloaded")
}

func (l *Lifecycle) interrupt(ctx context.Context) error {
	logger.Warn(ctx, "Interrupt received, stopping listener")

	l.broker.Disconnect()
	l.setState(ctx, StateDisconnected)

	return ErrInterrupted
}

func (l *Lifecycle) setState(ctx context.Context, state State) {
	if l.state == state {
		return
	}

	logger.DebugKV(ctx, "Connection state changed", "from", l.state.String(), "to", state.String())

	l.state = state

	for _, observer := range l.observers {
		observer.ObserveState(state.String(), state == StateConnected)
	}
}

// sleep waits for delay and reports false if ctx ended first.
func sleep(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
