package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-listener/internal/domain/alarm"
)

// publication is one recorded Publish call.
type publication struct {
	topic   string
	payload string
	retain  bool
}

// recordingPublisher records publications and can be told to fail.
type recordingPublisher struct {
	published []publication
	err       error
}

// Publish records the call and returns the configured error.
func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	if p.err != nil {
		return p.err
	}

	p.published = append(p.published, publication{topic: topic, payload: string(payload), retain: retain})

	return nil
}

// countingRecorder counts state changes.
type countingRecorder struct {
	changes int
}

// StateChanged increments the counter.
func (r *countingRecorder) StateChanged() {
	r.changes++
}

// TestService_Handle stores the decoded state and publishes it retained.
func TestService_Handle(t *testing.T) {
	t.Parallel()

	store := alarm.NewStateStore()
	publisher := new(recordingPublisher)
	recorder := new(countingRecorder)
	s := NewService(store, publisher, "home/alarm/display", WithRecorder(recorder))

	s.Handle(context.Background(), []byte(`armed\taway`))

	require.Equal(t, "armed\taway", store.Get())
	require.Equal(t, []publication{
		{topic: "home/alarm/display", payload: "armed\taway", retain: true},
	}, publisher.published)
	require.Equal(t, 1, recorder.changes)
}

// TestService_HandleIsIdempotent processes the same payload twice.
func TestService_HandleIsIdempotent(t *testing.T) {
	t.Parallel()

	store := alarm.NewStateStore()
	publisher := new(recordingPublisher)
	s := NewService(store, publisher, "display")

	s.Handle(context.Background(), []byte("disarmed"))
	first := store.Get()

	s.Handle(context.Background(), []byte("disarmed"))

	require.Equal(t, first, store.Get())
	require.Len(t, publisher.published, 2)
	require.Equal(t, publisher.published[0], publisher.published[1])
	require.True(t, publisher.published[1].retain)
}

// TestService_HandlePublishFailure keeps the stored state when forwarding fails.
func TestService_HandlePublishFailure(t *testing.T) {
	t.Parallel()

	store := alarm.NewStateStore()
	recorder := new(countingRecorder)
	s := NewService(store, &recordingPublisher{err: errors.New("not connected")}, "display", WithRecorder(recorder))

	require.NotPanics(t, func() {
		s.Handle(context.Background(), []byte("triggered"))
	})
	require.Equal(t, "triggered", store.Get())
	require.Zero(t, recorder.changes)
}
