package db

import (
	"context"
	"reflect"
	"testing"
)

var wantLevels = []LogLevelRow{
	{ID: LevelTrace, Name: "Trace"},
	{ID: LevelDebug, Name: "Debug"},
	{ID: LevelInfo, Name: "Info"},
	{ID: LevelWarn, Name: "Warn"},
	{ID: LevelError, Name: "Error"},
}

var wantSources = []SourceRow{
	{ID: SourceClient, Value: "client"},
	{ID: SourceServer, Value: "server"},
}

func TestMigrateTwiceKeepsVocabularyExact(t *testing.T) {
	t.Parallel()

	dbm := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := dbm.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}

	levels, err := dbm.LogLevels(ctx)
	if err != nil {
		t.Fatalf("log levels: %v", err)
	}
	if !reflect.DeepEqual(levels, wantLevels) {
		t.Fatalf("log levels = %+v, want %+v", levels, wantLevels)
	}

	sources, err := dbm.Sources(ctx)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if !reflect.DeepEqual(sources, wantSources) {
		t.Fatalf("sources = %+v, want %+v", sources, wantSources)
	}
}

func TestMigrationsRecordedOncePerVersion(t *testing.T) {
	t.Parallel()

	dbm := openTestDB(t)
	ctx := context.Background()

	if err := dbm.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var rows, runs int
	if err := dbm.reader.QueryRowContext(ctx, "SELECT COUNT(*), COUNT(DISTINCT run_id) FROM schema_migrations").Scan(&rows, &runs); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if rows != 3 {
		t.Fatalf("schema_migrations rows = %d, want 3", rows)
	}
	if runs != 1 {
		t.Fatalf("distinct run ids = %d, want 1 (all versions applied by the first run)", runs)
	}
}

func TestSeedRestoresMissingRowsWithoutOverwriting(t *testing.T) {
	t.Parallel()

	dbm := openTestDB(t)
	ctx := context.Background()

	if _, err := dbm.writer.ExecContext(ctx, "DELETE FROM log_levels WHERE id = 4"); err != nil {
		t.Fatalf("delete level: %v", err)
	}
	if _, err := dbm.writer.ExecContext(ctx, "UPDATE sources SET value = 'editor' WHERE id = 0"); err != nil {
		t.Fatalf("rename source: %v", err)
	}

	if err := dbm.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	levels, err := dbm.LogLevels(ctx)
	if err != nil {
		t.Fatalf("log levels: %v", err)
	}
	if !reflect.DeepEqual(levels, wantLevels) {
		t.Fatalf("log levels after reseed = %+v, want %+v", levels, wantLevels)
	}

	sources, err := dbm.Sources(ctx)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 2 || sources[0].Value != "editor" {
		t.Fatalf("sources after reseed = %+v, want renamed row kept", sources)
	}
}

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	t.Parallel()

	for _, dialect := range []Dialect{DialectSQLite, DialectPostgres} {
		m := &Manager{dialect: dialect}
		migs, err := m.migrations()
		if err != nil {
			t.Fatalf("%s migrations: %v", dialect, err)
		}
		var versions []string
		for _, mig := range migs {
			versions = append(versions, mig.version)
		}
		want := []string{"0001", "0002", "0003"}
		if !reflect.DeepEqual(versions, want) {
			t.Fatalf("%s versions = %v, want %v", dialect, versions, want)
		}
	}
}
