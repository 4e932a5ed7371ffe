package db

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// openPostgresTestDB connects to LLS_TEST_POSTGRES_DSN. The database is
// expected to be disposable; tests only add rows.
func openPostgresTestDB(t *testing.T) *Manager {
	t.Helper()

	dsn := os.Getenv("LLS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LLS_TEST_POSTGRES_DSN not set")
	}
	dbm, err := OpenPostgres(context.Background(), dsn, 4, 10*time.Second)
	if err != nil {
		t.Fatalf("OpenPostgres() error = %v", err)
	}
	t.Cleanup(func() {
		_ = dbm.Close()
	})
	return dbm
}

func TestPostgresMigrateAndConstraints(t *testing.T) {
	dbm := openPostgresTestDB(t)
	ctx := context.Background()

	if err := dbm.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	version, err := dbm.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != "0003" {
		t.Fatalf("schema version = %q, want 0003", version)
	}

	levels, err := dbm.LogLevels(ctx)
	if err != nil {
		t.Fatalf("LogLevels() error = %v", err)
	}
	if len(levels) < len(wantLevels) {
		t.Fatalf("log levels = %+v, want at least %d rows", levels, len(wantLevels))
	}

	sessionID, err := dbm.OpenSession(ctx, fixedTime)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	requestID, err := dbm.InsertRequest(ctx, RequestInsert{
		RequestID: "7",
		SessionID: sessionID,
		Method:    "textDocument/completion",
		Params:    json.RawMessage(`{}`),
		TimeStamp: fixedTime,
	})
	if err != nil {
		t.Fatalf("insert request: %v", err)
	}

	if err := dbm.InsertResponse(ctx, ResponseInsert{ID: requestID, SessionID: sessionID}); !errors.Is(err, ErrCheckViolation) {
		t.Fatalf("success response without result error = %v, want check violation", err)
	}
	if err := dbm.InsertResponse(ctx, ResponseInsert{
		ID:        requestID,
		SessionID: sessionID,
		Result:    json.RawMessage(`{"items":[]}`),
	}); err != nil {
		t.Fatalf("insert response: %v", err)
	}
	if err := dbm.InsertResponse(ctx, ResponseInsert{
		ID:        requestID,
		SessionID: sessionID,
		Result:    json.RawMessage(`{"items":[]}`),
	}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("duplicate response error = %v, want duplicate key", err)
	}

	_, err = dbm.InsertNotification(ctx, NotificationInsert{
		SessionID: sessionID,
		Method:    "initialized",
		Params:    json.RawMessage(`"scalar"`),
		Source:    SourceClient,
	})
	if !errors.Is(err, ErrCheckViolation) {
		t.Fatalf("scalar params error = %v, want check violation", err)
	}

	if _, err := dbm.InsertSpan(ctx, SpanInsert{Name: "x", Level: LogLevel(9)}); !errors.Is(err, ErrForeignKeyViolation) {
		t.Fatalf("span level 9 error = %v, want foreign key violation", err)
	}

	if err := dbm.EndSession(ctx, sessionID, fixedTime.Add(time.Minute)); err != nil {
		t.Fatalf("end session: %v", err)
	}
	sess, err := dbm.GetSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	// TIMESTAMPTZ keeps microseconds.
	want := fixedTime.Truncate(time.Microsecond)
	if sess.StartedAt == nil || !sess.StartedAt.Equal(want) || sess.EndedAt == nil {
		t.Fatalf("session = %+v, want started at %s and ended", sess, want)
	}
}

func TestPostgresConcurrentMigrate(t *testing.T) {
	first := openPostgresTestDB(t)
	second := openPostgresTestDB(t)
	ctx := context.Background()

	var g errgroup.Group
	for i := 0; i < 4; i++ {
		dbm := first
		if i%2 == 1 {
			dbm = second
		}
		g.Go(func() error {
			return dbm.Migrate(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Migrate() error = %v", err)
	}

	levels, err := first.LogLevels(ctx)
	if err != nil {
		t.Fatalf("LogLevels() error = %v", err)
	}
	if len(levels) != len(wantLevels) {
		t.Fatalf("log levels = %+v, want %d rows", levels, len(wantLevels))
	}
}
