package listener

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/alarm-listener/internal/api/grpc/health"
	"github.com/oshokin/alarm-listener/internal/config"
	"github.com/oshokin/alarm-listener/internal/domain/alarm"
	"github.com/oshokin/alarm-listener/internal/logger"
	"github.com/oshokin/alarm-listener/internal/metrics"
	"github.com/oshokin/alarm-listener/internal/pidfile"
	"github.com/oshokin/alarm-listener/internal/repository/audit"
	"github.com/oshokin/alarm-listener/internal/service/authorizer"
	"github.com/oshokin/alarm-listener/internal/service/relay"
	"github.com/oshokin/alarm-listener/internal/transport/mqtt"
)

// Options controls the alarm-listener process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// PIDDir is the directory holding the instance lock file.
	PIDDir string
}

const (
	// DefaultPIDDir is the default directory of the lock file.
	DefaultPIDDir = "/var/tmp"
	// PIDName is the lock file name without extension.
	PIDName = "mqtt_listener"
)

// Run loads the configuration, connects to the broker and serves until ctx is
// canceled, in which case it returns ErrInterrupted.
//
//nolint:funlen // Process wiring reads best top to bottom.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-listener")

	pidDir := opts.PIDDir
	if pidDir == "" {
		pidDir = DefaultPIDDir
	}

	// Refuse to run next to another live instance.
	lock, err := pidfile.Acquire(pidDir, PIDName)
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}

	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			logger.ErrorKV(ctx, "Failed to release instance lock", "path", lock.Path(), "error", releaseErr)
		}
	}()

	logger.InfoKV(ctx, "Reading configuration file", "path", opts.ConfigPath)

	// Load configuration and build the token registry from it.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	registry, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}

	logger.InfoKV(ctx, "Configuration loaded", "tokens", registry.Len(), "actions", len(cfg.Actions))

	// Metrics and health mirror the connection state.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	recorder := metrics.New(promRegistry)
	healthServer := health.NewServer()

	authorizerOptions := []authorizer.Option{authorizer.WithRecorder(recorder)}

	// Open the optional access audit log.
	if cfg.AuditDatabase != "" {
		repo, repoErr := audit.NewSQLiteRepository(ctx, cfg.AuditDatabase)
		if repoErr != nil {
			return fmt.Errorf("open audit log: %w", repoErr)
		}

		defer func() {
			_ = repo.Close()
		}()

		authorizerOptions = append(authorizerOptions, authorizer.WithAudit(repo))
	}

	settings := mqtt.Settings{
		Host:       cfg.MQTTHost,
		Port:       cfg.MQTTPort,
		TLS:        cfg.TLSEnabled(),
		CACertFile: cfg.MQTTCACerts,
		Username:   cfg.MQTTUsername,
		Password:   cfg.MQTTPassword,
		ClientID:   cfg.MQTTClientID,
		KeepAlive:  config.KeepAlive,
	}

	client, err := mqtt.New(ctx, settings)
	if err != nil {
		return fmt.Errorf("create mqtt client: %w", err)
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	// The relay and the authorizer are the only message handlers.
	store := alarm.NewStateStore()
	stateRelay := relay.NewService(store, client, cfg.DisplayTopic, relay.WithRecorder(recorder))
	dispatcher := authorizer.NewService(registry, client, authorizer.Settings{
		DisplayTopic: cfg.DisplayTopic,
		CommandTopic: cfg.CommandTopic,
		Actions:      cfg.Actions,
		CommandDelay: cfg.CommandDelay,
	}, authorizerOptions...)

	// Pending commands are dropped on shutdown.
	defer dispatcher.Close()

	router := NewRouter()
	router.Handle(cfg.StateTopic, stateRelay)
	router.Handle(cfg.RFIDAuthTopic, dispatcher)

	// SIGHUP reloads tokens and actions.
	reloadSignals := make(chan os.Signal, 1)
	signal.Notify(reloadSignals, syscall.SIGHUP)

	defer signal.Stop(reloadSignals)

	lifecycle := NewLifecycle(client, router,
		WithObservers(recorder, healthServer),
		WithReload(reloadSignals, func(ctx context.Context) error {
			return reloadTokens(ctx, opts.ConfigPath, dispatcher)
		}),
	)

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.MetricsAddress != "" {
		group.Go(func() error {
			return recorder.Serve(groupCtx, cfg.MetricsAddress)
		})
	}

	if cfg.StatusAddress != "" {
		group.Go(func() error {
			return healthServer.ListenAndServe(groupCtx, cfg.StatusAddress)
		})
	}

	group.Go(func() error {
		logger.InfoKV(groupCtx, "Connecting to broker",
			"broker", mqtt.BrokerURL(settings),
			"client_id", client.ClientID(),
		)

		return lifecycle.Run(groupCtx)
	})

	// A failing side server cancels the lifecycle and its error is returned.
	return group.Wait()
}

// reloadTokens reloads the token records and the action table into dispatcher.
// Broker and topic settings are not reloaded.
func reloadTokens(ctx context.Context, path string, dispatcher *authorizer.Service) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	registry, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("load tokens: %w", err)
	}

	dispatcher.Reload(registry, cfg.Actions)

	logger.InfoKV(ctx, "Tokens reloaded", "tokens", registry.Len(), "actions", len(cfg.Actions))

	return nil
}
