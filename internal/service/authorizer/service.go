package authorizer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/oshokin/alarm-listener/internal/domain/access"
	"github.com/oshokin/alarm-listener/internal/logger"
	"github.com/oshokin/alarm-listener/internal/repository/audit"
)

// Reasons attached to denials and dropped requests.
const (
	ReasonUnknownToken = "unknown token"
	ReasonRejected     = "invalid code or outside window"

	dropEncoding   = "encoding"
	dropMalformed  = "malformed"
	dropIncomplete = "incomplete"
)

// Publisher sends a payload to a topic. It must be safe for concurrent use
// because delayed commands publish from their own goroutines.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

// TokenFinder looks tokens up by uid.
type TokenFinder interface {
	FindByUID(uid string) (access.Token, bool)
}

// Recorder counts decisions, dropped requests and sent commands.
type Recorder interface {
	Decision(access string)
	Dropped(reason string)
	CommandSent(action string)
}

// Settings holds the topics and the action table of the dispatcher.
type Settings struct {
	// DisplayTopic is the prefix of the per-reader response topics.
	DisplayTopic string
	// CommandTopic receives the command payloads.
	CommandTopic string
	// Actions maps an action name to its command payload.
	Actions map[string]string
	// CommandDelay is the pause before a command is published.
	CommandDelay time.Duration
}

// Service decides authorization requests and dispatches granted commands.
type Service struct {
	// publisher sends responses and commands.
	publisher Publisher
	// settings are fixed for the lifetime of the service, except for actions.
	settings Settings

	// mu guards tokens and actions, which Reload replaces.
	mu      sync.RWMutex
	tokens  TokenFinder
	actions map[string]string

	// audit and recorder are optional.
	audit    audit.Repository
	recorder Recorder
	// now is the clock used for window checks.
	now func() time.Time

	// closing stops pending commands.
	closing   chan struct{}
	closeOnce sync.Once
	pending   sync.WaitGroup
}

// Option configures the dispatcher.
type Option func(*Service)

// WithAudit records every decision in repo.
func WithAudit(repo audit.Repository) Option {
	return func(s *Service) {
		s.audit = repo
	}
}

// WithRecorder counts decisions in recorder.
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a dispatcher using tokens for lookups.
func NewService(tokens TokenFinder, publisher Publisher, settings Settings, opts ...Option) *Service {
	s := &Service{
		publisher: publisher,
		settings:  settings,
		tokens:    tokens,
		actions:   settings.Actions,
		now:       time.Now,
		closing:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Reload swaps the token lookup and the action table.
func (s *Service) Reload(tokens TokenFinder, actions map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = tokens
	s.actions = actions
}

// Handle decides one authorization request. Malformed requests are logged and
// dropped; no error escapes.
func (s *Service) Handle(ctx context.Context, payload []byte) {
	request, err := DecodeRequest(payload)
	if err != nil {
		logger.ErrorKV(ctx, "Dropping authorization request", "payload", string(payload), "error", err)
		s.dropped(err)

		return
	}

	ctx = logger.WithKV(ctx, "hostname", request.Hostname, "uid", request.UID)

	tokens, actions := s.snapshot()
	token, found := tokens.FindByUID(request.UID)

	response := Response{
		Access: AccessDenied,
		UID:    request.UID,
		Name:   UnknownName,
	}

	var reason string

	switch {
	case !found:
		reason = ReasonUnknownToken
	case token.IsValid(request.Code, s.now()):
		response.Access = AccessGranted
		response.Name = token.Name()
	default:
		response.Name = token.Name()
		reason = ReasonRejected
	}

	if response.Access == AccessGranted {
		logger.WarnKV(ctx, "Accepted token", "name", response.Name, "action", request.Action)
	} else {
		logger.WarnKV(ctx, "Denied token", "name", response.Name, "reason", reason)
	}

	s.respond(ctx, request.Hostname, response)
	s.record(ctx, request, response, reason)

	if response.Access != AccessGranted {
		return
	}

	command, ok := actions[request.Action]
	if !ok || command == "" {
		logger.DebugKV(ctx, "No command configured for action", "action", request.Action)
		return
	}

	s.schedule(ctx, request.Action, command)
}

// Close cancels the pending commands and waits for their goroutines.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
	})

	s.pending.Wait()
}

func (s *Service) snapshot() (TokenFinder, map[string]string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tokens, s.actions
}

// respond publishes the decision to the reader's display topic.
func (s *Service) respond(ctx context.Context, hostname string, response Response) {
	body, err := json.Marshal(response)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to encode authorization response", "error", err)
		return
	}

	topic := s.settings.DisplayTopic + "/" + hostname
	if err = s.publisher.Publish(ctx, topic, body, false); err != nil {
		logger.ErrorKV(ctx, "Failed to publish authorization response", "topic", topic, "error", err)
		return
	}

	logger.DebugKV(ctx, "Authorization response sent", "topic", topic, "access", response.Access)
}

// record stores the decision in the audit log and the metrics.
func (s *Service) record(ctx context.Context, request Request, response Response, reason string) {
	if s.recorder != nil {
		s.recorder.Decision(response.Access)
	}

	if s.audit == nil {
		return
	}

	event := audit.Event{
		DecidedAt: s.now(),
		Hostname:  request.Hostname,
		UID:       request.UID,
		Name:      response.Name,
		Action:    request.Action,
		Granted:   response.Access == AccessGranted,
		Reason:    reason,
	}

	if err := s.audit.RecordEvent(ctx, event); err != nil {
		logger.ErrorKV(ctx, "Failed to record access event", "error", err)
	}
}

// schedule publishes command to the command topic once the delay has passed,
// unless the service is closed first.
func (s *Service) schedule(ctx context.Context, action, command string) {
	// The request context ends with the event loop; the command must outlive it.
	ctx = context.WithoutCancel(ctx)
	delay := s.settings.CommandDelay

	logger.InfoKV(ctx, "Command scheduled", "action", action, "delay", delay)

	s.pending.Add(1)

	go func() {
		defer s.pending.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.closing:
			logger.WarnKV(ctx, "Pending command cancelled", "action", action)
			return
		case <-timer.C:
		}

		if err := s.publisher.Publish(ctx, s.settings.CommandTopic, []byte(command), false); err != nil {
			logger.ErrorKV(ctx, "Failed to send command", "action", action, "error", err)
			return
		}

		if s.recorder != nil {
			s.recorder.CommandSent(action)
		}

		logger.InfoKV(ctx, "Command sent", "action", action, "topic", s.settings.CommandTopic)
	}()
}

func (s *Service) dropped(err error) {
	if s.recorder == nil {
		return
	}

	switch {
	case errors.Is(err, ErrInvalidEncoding):
		s.recorder.Dropped(dropEncoding)
	case errors.Is(err, ErrIncompleteRequest):
		s.recorder.Dropped(dropIncomplete)
	default:
		s.recorder.Dropped(dropMalformed)
	}
}
