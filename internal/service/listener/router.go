package listener

import (
	"context"
)

// Handler processes the payload of one inbound message.
type Handler interface {
	Handle(ctx context.Context, payload []byte)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload []byte)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, payload []byte) {
	f(ctx, payload)
}

// Router dispatches messages to handlers by exact topic.
type Router struct {
	// routes maps a topic to its handler.
	routes map[string]Handler
	// topics keeps registration order for subscriptions.
	topics []string
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		routes: make(map[string]Handler),
	}
}

// Handle registers h for topic, replacing any previous handler.
func (r *Router) Handle(topic string, h Handler) {
	if _, ok := r.routes[topic]; !ok {
		r.topics = append(r.topics, topic)
	}

	r.routes[topic] = h
}

// Topics returns the registered topics in registration order.
func (r *Router) Topics() []string {
	return append([]string(nil), r.topics...)
}

// Dispatch hands payload to the handler of topic. It reports false when no
// handler matches.
func (r *Router) Dispatch(ctx context.Context, topic string, payload []byte) bool {
	h, ok := r.routes[topic]
	if !ok {
		return false
	}

	h.Handle(ctx, payload)

	return true
}
