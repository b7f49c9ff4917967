// Package relay assembles a dispatcher and its collaborators from configuration.
package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/timechildgames/cloudrelay/internal/config"
	"github.com/timechildgames/cloudrelay/internal/connectivity"
	"github.com/timechildgames/cloudrelay/internal/dispatch"
	"github.com/timechildgames/cloudrelay/internal/events"
	"github.com/timechildgames/cloudrelay/internal/log"
	"github.com/timechildgames/cloudrelay/internal/protocol"
	"github.com/timechildgames/cloudrelay/internal/storage"
	"github.com/timechildgames/cloudrelay/internal/transport"
)

const pruneInterval = time.Hour

// Relay owns one dispatcher session and everything it needs.
type Relay struct {
	Dispatcher *dispatch.Dispatcher
	Hub        *events.Hub
	Monitor    *connectivity.Monitor
	Journal    *storage.Journal // nil when the journal is disabled

	cfg     *config.Config
	db      *sql.DB
	closers []func()
	logger  *slog.Logger
	once    sync.Once
}

// Open builds a Relay from cfg. Nothing runs in the background until Run.
func Open(ctx context.Context, cfg *config.Config) (*Relay, error) {
	r := &Relay{
		Hub:    events.NewHub(256),
		cfg:    cfg,
		logger: log.WithComponent("relay"),
	}

	builder, err := protocol.NewBuilder(cfg.Backend.BaseURL, cfg.Backend.FunctionPrefix, protocol.Credentials{
		ApplicationID:  cfg.Backend.ApplicationID,
		RESTAPIKey:     cfg.Backend.RESTAPIKey,
		InstallationID: cfg.EnsureInstallationID(),
	})
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}

	precedence, err := dispatch.ParsePrecedence(cfg.Transport.ErrorPrecedence)
	if err != nil {
		return nil, err
	}

	t, err := r.openTransport(builder)
	if err != nil {
		r.Close()
		return nil, err
	}

	opts := []dispatch.Option{
		dispatch.WithPrecedence(precedence),
		dispatch.WithObserver(events.NewObserver(r.Hub)),
	}

	r.Monitor = connectivity.NewMonitor(cfg.ProbeURL(), cfg.Connectivity.Interval, cfg.Connectivity.Timeout)
	if cfg.Connectivity.FailFast {
		opts = append(opts, dispatch.WithProbe(r.Monitor))
	}

	if cfg.Journal.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("journal: %w", err)
		}
		r.db = db
		r.Journal = storage.NewJournal(db)
		opts = append(opts, dispatch.WithObserver(r.Journal))
	}

	r.Dispatcher = dispatch.New(builder, t, opts...)
	r.logger.Info("relay ready",
		"transport", cfg.Transport.Kind,
		"base_url", cfg.Backend.BaseURL,
		"precedence", precedence.String(),
		"journal", cfg.Journal.Enabled,
	)
	return r, nil
}

func (r *Relay) openTransport(builder *protocol.Builder) (dispatch.Transport, error) {
	rest, err := transport.NewREST(transport.RESTConfig{
		Timeout: r.cfg.Backend.Timeout,
		Workers: r.cfg.Transport.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	r.closers = append(r.closers, rest.Close)

	switch r.cfg.Transport.Kind {
	case "sdk":
		sdk, err := transport.NewSDK(transport.NewFunctions(rest, builder), r.cfg.Transport.Workers, r.cfg.Backend.Timeout)
		if err != nil {
			return nil, fmt.Errorf("transport: %w", err)
		}
		// Close the SDK first so its in-flight calls can still use rest.
		r.closers = append([]func(){sdk.Close}, r.closers...)
		return sdk, nil
	default:
		return rest, nil
	}
}

// Run drives the connectivity monitor and journal pruning until ctx ends.
// Until Run is called the monitor keeps reporting the network as reachable.
func (r *Relay) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	// The monitor also feeds NetworkAvailable and /healthz, so it runs even
	// when the dispatcher does not fail fast.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.Monitor.Run(ctx)
	}()
	if r.Journal != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Journal.RunPruner(ctx, r.cfg.Journal.Retention, pruneInterval)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// Close waits for in-flight calls and releases the transport and database.
func (r *Relay) Close() {
	r.once.Do(func() {
		for _, c := range r.closers {
			c()
		}
		// Transports are closed, so no more completions reach the journal.
		if r.Journal != nil {
			r.Journal.Close()
		}
		if r.db != nil {
			if err := r.db.Close(); err != nil {
				r.logger.Warn("failed to close journal", "error", err)
			}
		}
	})
}
