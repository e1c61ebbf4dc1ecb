package listener

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRouter_Dispatch routes by exact topic only.
func TestRouter_Dispatch(t *testing.T) {
	t.Parallel()

	var got []string

	router := NewRouter()
	router.Handle("a/b", HandlerFunc(func(_ context.Context, payload []byte) {
		got = append(got, "ab:"+string(payload))
	}))
	router.Handle("a/c", HandlerFunc(func(_ context.Context, payload []byte) {
		got = append(got, "ac:"+string(payload))
	}))

	require.True(t, router.Dispatch(context.Background(), "a/b", []byte("1")))
	require.True(t, router.Dispatch(context.Background(), "a/c", []byte("2")))
	require.False(t, router.Dispatch(context.Background(), "a/#", []byte("3")))
	require.False(t, router.Dispatch(context.Background(), "a/b/c", []byte("4")))

	require.Equal(t, []string{"ab:1", "ac:2"}, got)
}

// TestRouter_Topics keeps registration order and ignores re-registration.
func TestRouter_Topics(t *testing.T) {
	t.Parallel()

	noop := HandlerFunc(func(context.Context, []byte) {})

	router := NewRouter()
	router.Handle("state", noop)
	router.Handle("auth", noop)
	router.Handle("state", noop)

	require.Equal(t, []string{"state", "auth"}, router.Topics())
}
