package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oshokin/alarm-listener/internal/api/grpc/health"
	"github.com/oshokin/alarm-listener/internal/config"
	"github.com/oshokin/alarm-listener/internal/repository/audit"
	"github.com/oshokin/alarm-listener/internal/service/authorizer"
)

// AuditOptions selects the access events printed by PrintAudit.
type AuditOptions struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Name limits the output to one token holder when set.
	Name string
	// Limit is the maximum number of events.
	Limit int
}

// DefaultAuditLimit is the number of events printed when no limit is given.
const DefaultAuditLimit = 20

var (
	// ErrNoAuditDatabase is returned when audit_db is not configured.
	ErrNoAuditDatabase = errors.New("audit_db is not configured")
	// ErrNoStatusAddress is returned when status_addr is not configured.
	ErrNoStatusAddress = errors.New("status_addr is not configured")
	// ErrUnknownToken is returned when a name matches no configured token.
	ErrUnknownToken = errors.New("no token with this name")
)

// PrintAudit writes the most recent access decisions to w, newest first,
// one tab-separated line per event.
func PrintAudit(ctx context.Context, opts *AuditOptions, w io.Writer) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if cfg.AuditDatabase == "" {
		return ErrNoAuditDatabase
	}

	limit := opts.Limit
	if limit == 0 {
		limit = DefaultAuditLimit
	}

	// Resolve the name before touching the database so typos fail fast.
	var name string

	if opts.Name != "" {
		registry, registryErr := cfg.Registry()
		if registryErr != nil {
			return fmt.Errorf("load tokens: %w", registryErr)
		}

		token, found := registry.FindByName(opts.Name)
		if !found {
			return fmt.Errorf("%q: %w", opts.Name, ErrUnknownToken)
		}

		name = token.Name()
	}

	repo, err := audit.NewSQLiteRepository(ctx, cfg.AuditDatabase)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	defer func() {
		_ = repo.Close()
	}()

	var events []audit.Event

	if name != "" {
		events, err = repo.RecentByName(ctx, name, limit)
	} else {
		events, err = repo.Recent(ctx, limit)
	}

	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	for _, event := range events {
		decision := authorizer.AccessDenied
		if event.Granted {
			decision = authorizer.AccessGranted
		}

		if _, err = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			event.DecidedAt.Local().Format(time.RFC3339),
			decision,
			event.Hostname,
			event.UID,
			event.Name,
			event.Action,
			event.Reason,
		); err != nil {
			return fmt.Errorf("write audit line: %w", err)
		}
	}

	return nil
}

// PrintStatus asks the health endpoint of a running listener for its status
// and writes it to w.
func PrintStatus(ctx context.Context, configPath string, w io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if cfg.StatusAddress == "" {
		return ErrNoStatusAddress
	}

	status, err := health.Probe(ctx, cfg.StatusAddress)
	if err != nil {
		return err
	}

	if _, err = fmt.Fprintln(w, status.String()); err != nil {
		return fmt.Errorf("write status: %w", err)
	}

	return nil
}
