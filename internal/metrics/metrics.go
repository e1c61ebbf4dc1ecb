package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/alarm-listener/internal/logger"
)

const namespace = "alarm_listener"

// Metrics groups the listener's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	decisions       *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	commands        *prometheus.CounterVec
	stateChanges    prometheus.Counter
	reconnects      prometheus.Counter
	connected       prometheus.Gauge
	connectionState *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New registers the listener's collectors with registry.
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Total number of access decisions by outcome",
		}, []string{"access"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_requests_total",
			Help:      "Total number of malformed authorization requests",
		}, []string{"reason"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Total number of commands published after granted decisions",
		}, []string{"action"}),
		stateChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_changes_total",
			Help:      "Total number of relayed alarm state changes",
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total number of reconnect attempts",
		}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "Whether the listener is connected to the broker",
		}),
		connectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current connection lifecycle state",
		}, []string{"state"}),
		gatherer: registry,
	}
}

// Decision counts an access decision ("GRANTED" or "DENIED").
func (m *Metrics) Decision(access string) {
	if m == nil {
		return
	}

	m.decisions.WithLabelValues(access).Inc()
}

// Dropped counts a discarded authorization request.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}

	m.dropped.WithLabelValues(reason).Inc()
}

// CommandSent counts a published command.
func (m *Metrics) CommandSent(action string) {
	if m == nil {
		return
	}

	m.commands.WithLabelValues(action).Inc()
}

// StateChanged counts a relayed state change.
func (m *Metrics) StateChanged() {
	if m == nil {
		return
	}

	m.stateChanges.Inc()
}

// ObserveState records a connection lifecycle transition.
func (m *Metrics) ObserveState(state string, connected bool) {
	if m == nil {
		return
	}

	m.connectionState.Reset()
	m.connectionState.WithLabelValues(state).Set(1)

	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}

	if state == "reconnecting" {
		m.reconnects.Inc()
	}
}

// Handler returns the HTTP handler serving /metrics.
func (m *Metrics) Handler() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return router
}

// Serve exposes /metrics on address until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	const readHeaderTimeout = 5 * time.Second

	ctx = logger.WithName(ctx, "metrics")

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	//nolint:exhaustruct // Defaults are fine for the remaining fields.
	server := &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readHeaderTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	logger.InfoKV(ctx, "Metrics endpoint listening", "listen_address", listener.Addr().String())

	if err = server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	return nil
}
