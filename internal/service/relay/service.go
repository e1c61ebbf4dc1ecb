package relay

import (
	"context"

	"github.com/oshokin/alarm-listener/internal/domain/alarm"
	"github.com/oshokin/alarm-listener/internal/logger"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

// Recorder counts relayed state changes.
type Recorder interface {
	StateChanged()
}

// Service relays state changes from the panel to the displays.
type Service struct {
	// store is the single owner of the current alarm state.
	store *alarm.StateStore
	// publisher sends the retained state.
	publisher Publisher
	// displayTopic receives the state.
	displayTopic string
	// recorder is optional.
	recorder Recorder
}

// Option configures the relay.
type Option func(*Service)

// WithRecorder counts every relayed change.
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// NewService creates a relay writing into store and publishing to displayTopic.
func NewService(store *alarm.StateStore, publisher Publisher, displayTopic string, opts ...Option) *Service {
	s := &Service{
		store:        store,
		publisher:    publisher,
		displayTopic: displayTopic,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handle stores the payload and republishes the decoded state with retain set.
// Publish failures are logged and absorbed.
func (s *Service) Handle(ctx context.Context, payload []byte) {
	logger.InfoKV(ctx, "Incoming state change, sending forward", "payload", string(payload))

	s.store.Set(payload)

	state := s.store.Get()
	if err := s.publisher.Publish(ctx, s.displayTopic, []byte(state), true); err != nil {
		logger.ErrorKV(ctx, "Failed to forward alarm state", "topic", s.displayTopic, "error", err)
		return
	}

	if s.recorder != nil {
		s.recorder.StateChanged()
	}

	logger.DebugKV(ctx, "Alarm state forwarded", "topic", s.displayTopic, "state", state)
}
