package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port                  string        `env:"LLS_PORT,default=8080"`
	DBDriver              string        `env:"LLS_DB_DRIVER,default=sqlite"`
	DBPath                string        `env:"LLS_DB_PATH,default=/data/lsp-log-store.db"`
	DatabaseURL           string        `env:"DATABASE_URL"`
	DBMaxConns            int           `env:"LLS_DB_MAX_CONNS,default=10"`
	DBReadyTimeout        time.Duration `env:"LLS_DB_READY_TIMEOUT,default=30s"`
	LogLevel              string        `env:"LLS_LOG_LEVEL,default=info"`
	WALCheckpointInterval time.Duration `env:"LLS_WAL_CHECKPOINT_INTERVAL,default=10m"`
	WALRestartThresholdB  int64         `env:"LLS_WAL_RESTART_THRESHOLD_BYTES,default=52428800"`
}

func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

// LoadFrom reads the configuration from vars instead of the process
// environment.
func LoadFrom(ctx context.Context, vars map[string]string) (*Config, error) {
	return load(ctx, envconfig.MapLookuper(vars))
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("LLS_DB_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("LLS_DB_DRIVER %q is not one of sqlite, postgres", c.DBDriver))
	}
	if c.DBMaxConns <= 0 {
		errs = append(errs, fmt.Errorf("LLS_DB_MAX_CONNS must be positive, got %d", c.DBMaxConns))
	}
	if c.WALCheckpointInterval <= 0 {
		errs = append(errs, fmt.Errorf("LLS_WAL_CHECKPOINT_INTERVAL must be positive, got %s", c.WALCheckpointInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func WriteHelp(w io.Writer, version string) {
	fmt.Fprintf(w, "lsp-log-store %s\n\n", version)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintln(w, "  LLS_PORT=8080")
	fmt.Fprintln(w, "  LLS_DB_DRIVER=sqlite            (sqlite or postgres)")
	fmt.Fprintln(w, "  LLS_DB_PATH=/data/lsp-log-store.db")
	fmt.Fprintln(w, "  DATABASE_URL=                   (required for postgres)")
	fmt.Fprintln(w, "  LLS_DB_MAX_CONNS=10")
	fmt.Fprintln(w, "  LLS_DB_READY_TIMEOUT=30s")
	fmt.Fprintln(w, "  LLS_LOG_LEVEL=info")
	fmt.Fprintln(w, "  LLS_WAL_CHECKPOINT_INTERVAL=10m")
	fmt.Fprintln(w, "  LLS_WAL_RESTART_THRESHOLD_BYTES=52428800")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  --help")
	fmt.Fprintln(w, "  --version")
	fmt.Fprintln(w, "  --migrate-only")
}
