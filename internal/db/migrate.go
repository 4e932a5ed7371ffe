package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const migrationsTable = "schema_migrations"

// migrationLockKey is the postgres advisory lock held while migrating, so
// replicas starting together apply migrations and seeds one at a time.
const migrationLockKey int64 = 0x6c73705f6c6f67

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

type migration struct {
	version string
	name    string
	file    string
}

// Migrate creates every missing table, applies unrecorded migrations in
// version order and then re-runs the enumeration seeds. It is safe to call on
// every start, including from several processes at once.
func (m *Manager) Migrate(ctx context.Context) error {
	runID := uuid.NewString()

	conn, err := m.writer.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration conn: %w", err)
	}
	defer conn.Close()

	if m.dialect == DialectPostgres {
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
		}()
	}

	if _, err := conn.ExecContext(ctx, m.trackingDDL()); err != nil {
		return fmt.Errorf("create %s: %w", migrationsTable, err)
	}

	applied, err := m.appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	pending, err := m.migrations()
	if err != nil {
		return err
	}

	for _, mig := range pending {
		if _, ok := applied[mig.version]; ok {
			continue
		}
		if err := m.applyMigration(ctx, conn, mig, runID); err != nil {
			return err
		}
	}

	if err := m.seed(ctx, conn); err != nil {
		return err
	}
	return nil
}

// SchemaVersion returns the highest applied migration version, or "" when the
// tracking table is empty.
func (m *Manager) SchemaVersion(ctx context.Context) (string, error) {
	var version sql.NullString
	if err := m.reader.QueryRowContext(ctx, "SELECT MAX(version) FROM "+migrationsTable).Scan(&version); err != nil {
		return "", fmt.Errorf("query schema version: %w", err)
	}
	return version.String, nil
}

func (m *Manager) trackingDDL() string {
	if m.dialect == DialectPostgres {
		return `CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
  version TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  run_id TEXT NOT NULL,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	}
	return `CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
  version TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  run_id TEXT NOT NULL,
  applied_at TEXT NOT NULL
)`
}

func (m *Manager) appliedVersions(ctx context.Context, conn *sql.Conn) (map[string]struct{}, error) {
	rows, err := conn.QueryContext(ctx, "SELECT version FROM "+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("list applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return applied, nil
}

func (m *Manager) migrations() ([]migration, error) {
	dir := path.Join("migrations", string(m.dialect))
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}

	out := make([]migration, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		out = append(out, migration{
			version: migrationVersion(name),
			name:    strings.TrimSuffix(name, ".up.sql"),
			file:    path.Join(dir, name),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func (m *Manager) applyMigration(ctx context.Context, conn *sql.Conn, mig migration, runID string) error {
	content, err := migrationsFS.ReadFile(mig.file)
	if err != nil {
		return fmt.Errorf("read %s: %w", mig.file, err)
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", mig.name, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for idx, stmt := range splitSQLStatements(string(content)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %s: statement %d failed: %w", mig.name, idx+1, err)
		}
	}

	record := m.rebind("INSERT INTO " + migrationsTable + " (version, name, run_id, applied_at) VALUES (?, ?, ?, ?)")
	if _, err := tx.ExecContext(ctx, record, mig.version, mig.name, runID, m.timeArg(time.Now())); err != nil {
		return fmt.Errorf("record migration %s: %w", mig.name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", mig.name, err)
	}
	return nil
}

func (m *Manager) seed(ctx context.Context, conn *sql.Conn) error {
	file := path.Join("migrations", string(m.dialect), "seed.sql")
	content, err := migrationsFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for idx, stmt := range splitSQLStatements(string(content)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("seed statement %d failed: %w", idx+1, classify("seed", m.dialect, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

func migrationVersion(filename string) string {
	version, _, _ := strings.Cut(filename, "_")
	return version
}
