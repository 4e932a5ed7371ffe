package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kon-rad/lsp-log-store/internal/config"
	"github.com/kon-rad/lsp-log-store/internal/db"
	"github.com/kon-rad/lsp-log-store/internal/server"
)

type Runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	version    string
	startedAt  time.Time
	dbm        *db.Manager
	httpServer *http.Server
	bgCancel   context.CancelFunc
	bgWG       sync.WaitGroup
}

func New(cfg *config.Config, logger *slog.Logger, version string) *Runtime {
	return &Runtime{
		cfg:       cfg,
		logger:    logger,
		version:   version,
		startedAt: time.Now(),
	}
}

// OpenStore opens the configured backend. Opening applies pending migrations
// and re-seeds the enumerations.
func OpenStore(ctx context.Context, cfg *config.Config) (*db.Manager, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return db.OpenPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBReadyTimeout)
	case config.DriverSQLite:
		return db.Open(cfg.DBPath)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

// Migrate brings the schema up to date and exits without serving.
func (r *Runtime) Migrate(ctx context.Context) error {
	dbm, err := OpenStore(ctx, r.cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		_ = dbm.Close()
	}()

	version, err := dbm.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("Schema migrated", "driver", dbm.Dialect(), "schema_version", version)
	return nil
}

func (r *Runtime) Run(ctx context.Context) error {
	dbm, err := OpenStore(ctx, r.cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	r.dbm = dbm

	if err := r.logOpened(ctx); err != nil {
		_ = r.dbm.Close()
		return err
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	r.bgCancel = bgCancel
	r.startBackgroundLoops(bgCtx)

	r.httpServer = server.New(":"+r.cfg.Port,
		server.NewHealthHandler(r.dbm, r.startedAt, r.version),
		server.NewVocabularyHandler(r.dbm),
	)

	serverErr := make(chan error, 1)
	go func() {
		r.logger.Info("Listening", "addr", ":"+r.cfg.Port)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		shutdownErr := r.shutdown(context.Background())
		if err != nil {
			return errors.Join(fmt.Errorf("http server failed: %w", err), shutdownErr)
		}
		return shutdownErr
	case <-ctx.Done():
		r.logger.Info("Signal received, shutting down...")
		return r.shutdown(context.Background())
	}
}

func (r *Runtime) logOpened(ctx context.Context) error {
	version, err := r.dbm.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if r.dbm.Dialect() != db.DialectSQLite {
		r.logger.Info("Postgres opened",
			"max_conns", r.cfg.DBMaxConns,
			"schema_version", version,
		)
		return nil
	}

	journalMode, busyTimeout, foreignKeys, err := r.dbm.Pragmas(ctx)
	if err != nil {
		return fmt.Errorf("query sqlite pragmas: %w", err)
	}
	r.logger.Info("SQLite opened",
		"path", r.cfg.DBPath,
		"journal_mode", journalMode,
		"busy_timeout", busyTimeout,
		"foreign_keys", foreignKeys,
		"schema_version", version,
	)
	return nil
}

func (r *Runtime) shutdown(ctx context.Context) error {
	var joined error

	if r.httpServer != nil {
		httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := r.httpServer.Shutdown(httpCtx); err != nil {
			joined = errors.Join(joined, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if r.bgCancel != nil {
		r.bgCancel()
		done := make(chan struct{})
		go func() {
			r.bgWG.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			joined = errors.Join(joined, errors.New("background loop shutdown timeout"))
		}
	}

	if r.dbm != nil {
		cpCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := r.dbm.Checkpoint(cpCtx); err != nil {
			r.logger.Warn("WAL checkpoint failed", "error", err)
			joined = errors.Join(joined, fmt.Errorf("wal checkpoint: %w", err))
		}
		if err := r.dbm.Close(); err != nil {
			joined = errors.Join(joined, fmt.Errorf("db close: %w", err))
		}
	}

	r.logger.Info("Shutdown complete", "uptime", time.Since(r.startedAt).String())
	return joined
}

func (r *Runtime) startBackgroundLoops(ctx context.Context) {
	if r.dbm.Dialect() != db.DialectSQLite {
		return
	}

	r.bgWG.Add(1)
	go func() {
		defer r.bgWG.Done()
		ticker := time.NewTicker(r.cfg.WALCheckpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.checkpointOnce(ctx)
			}
		}
	}()
}

func (r *Runtime) checkpointOnce(ctx context.Context) {
	cpCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	did, err := r.dbm.CheckpointIfWALExceeds(cpCtx, r.cfg.WALRestartThresholdB)
	if err != nil {
		r.logger.Warn("wal checkpoint loop failed", "error", err)
		return
	}
	if did {
		r.logger.Info("WAL restarted", "threshold_bytes", r.cfg.WALRestartThresholdB, "db_size_bytes", r.dbm.DBSizeBytes())
	}
}
