package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type LogInsert struct {
	TimeStamp time.Time
	SessionID *int64
	Message   string
	Fields    json.RawMessage
}

type SpanInsert struct {
	Index  int
	Name   string
	Level  LogLevel
	Fields json.RawMessage
}

type RequestInsert struct {
	RequestID string
	SessionID int64
	Method    string
	Params    json.RawMessage
	TimeStamp time.Time
}

// ResponseInsert shares its ID with the request it answers.
type ResponseInsert struct {
	ID           int64
	SessionID    int64
	IsError      bool
	Result       json.RawMessage
	ErrorCode    *int32
	ErrorMessage *string
	ErrorData    json.RawMessage
	TimeStamp    time.Time
}

type NotificationInsert struct {
	SessionID int64
	Method    string
	Params    json.RawMessage
	TimeStamp time.Time
	Source    Source
}

// Session bounds are nil when not recorded. SQLite has no start default, so
// a row inserted without OpenSession has no start.
type Session struct {
	ID        int64
	StartedAt *time.Time
	EndedAt   *time.Time
}

var countedTables = []string{
	"sessions",
	"logs",
	"log_spans",
	"requests",
	"responses",
	"notifications",
}

func (m *Manager) OpenSession(ctx context.Context, startedAt time.Time) (int64, error) {
	var id int64
	err := m.writer.QueryRowContext(ctx,
		m.rebind("INSERT INTO sessions (start_time_stamp) VALUES (?) RETURNING id"),
		m.timeArg(startedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", classify("sessions", m.dialect, err))
	}
	return id, nil
}

// EndSession stamps the end of a session. A session ends once.
func (m *Manager) EndSession(ctx context.Context, id int64, endedAt time.Time) error {
	res, err := m.writer.ExecContext(ctx,
		m.rebind("UPDATE sessions SET end_time_stamp = ? WHERE id = ? AND end_time_stamp IS NULL"),
		m.timeArg(endedAt), id,
	)
	if err != nil {
		return fmt.Errorf("end session %d: %w", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 1 {
		return nil
	}

	var count int64
	if err := m.writer.QueryRowContext(ctx, m.rebind("SELECT COUNT(*) FROM sessions WHERE id = ?"), id).Scan(&count); err != nil {
		return fmt.Errorf("lookup session %d: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("end session %d: %w", id, ErrSessionNotFound)
	}
	return fmt.Errorf("end session %d: %w", id, ErrSessionEnded)
}

func (m *Manager) GetSession(ctx context.Context, id int64) (Session, error) {
	var (
		out        Session
		start, end any
	)
	err := m.reader.QueryRowContext(ctx,
		m.rebind("SELECT id, start_time_stamp, end_time_stamp FROM sessions WHERE id = ?"), id,
	).Scan(&out.ID, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("get session %d: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session %d: %w", id, err)
	}

	if start != nil {
		startedAt, err := parseTimeValue(start)
		if err != nil {
			return Session{}, fmt.Errorf("parse session start: %w", err)
		}
		out.StartedAt = &startedAt
	}
	if end != nil {
		endedAt, err := parseTimeValue(end)
		if err != nil {
			return Session{}, fmt.Errorf("parse session end: %w", err)
		}
		out.EndedAt = &endedAt
	}
	return out, nil
}

func (m *Manager) InsertLog(ctx context.Context, row LogInsert) (int64, error) {
	return m.insertReturningID(ctx, "logs",
		"INSERT INTO logs (time_stamp, session_id, message, fields) VALUES (?, ?, ?, ?) RETURNING id",
		m.timeArg(row.TimeStamp), row.SessionID, row.Message, jsonArg(row.Fields),
	)
}

func (m *Manager) InsertSpan(ctx context.Context, row SpanInsert) (int64, error) {
	return m.insertReturningID(ctx, "log_spans",
		`INSERT INTO log_spans ("index", name, level, fields) VALUES (?, ?, ?, ?) RETURNING id`,
		row.Index, row.Name, row.Level, jsonArg(row.Fields),
	)
}

func (m *Manager) InsertRequest(ctx context.Context, row RequestInsert) (int64, error) {
	return m.insertReturningID(ctx, "requests",
		"INSERT INTO requests (request_id, session_id, method, params, time_stamp) VALUES (?, ?, ?, ?, ?) RETURNING id",
		row.RequestID, row.SessionID, row.Method, jsonArg(row.Params), m.timeArg(row.TimeStamp),
	)
}

func (m *Manager) InsertResponse(ctx context.Context, row ResponseInsert) error {
	_, err := m.writer.ExecContext(ctx, m.rebind(`
INSERT INTO responses (
  id, session_id, is_error, result, error_code, error_message, error_data, time_stamp
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`),
		row.ID,
		row.SessionID,
		row.IsError,
		jsonArg(row.Result),
		row.ErrorCode,
		row.ErrorMessage,
		jsonArg(row.ErrorData),
		m.timeArg(row.TimeStamp),
	)
	if err != nil {
		return fmt.Errorf("insert responses row: %w", classify("responses", m.dialect, err))
	}
	return nil
}

func (m *Manager) InsertNotification(ctx context.Context, row NotificationInsert) (int64, error) {
	return m.insertReturningID(ctx, "notifications",
		"INSERT INTO notifications (session_id, method, params, time_stamp, source) VALUES (?, ?, ?, ?, ?) RETURNING id",
		row.SessionID, row.Method, jsonArg(row.Params), m.timeArg(row.TimeStamp), row.Source,
	)
}

// InsertBatch writes logs and spans in one transaction. Any rejected row
// rolls back the whole batch.
func (m *Manager) InsertBatch(ctx context.Context, logs []LogInsert, spans []SpanInsert) error {
	tx, err := m.writer.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if len(spans) > 0 {
		stmt, err := tx.PrepareContext(ctx, m.rebind(`INSERT INTO log_spans ("index", name, level, fields) VALUES (?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("prepare span insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range spans {
			if _, err := stmt.ExecContext(ctx, row.Index, row.Name, row.Level, jsonArg(row.Fields)); err != nil {
				return fmt.Errorf("insert span row: %w", classify("log_spans", m.dialect, err))
			}
		}
	}

	if len(logs) > 0 {
		stmt, err := tx.PrepareContext(ctx, m.rebind("INSERT INTO logs (time_stamp, session_id, message, fields) VALUES (?, ?, ?, ?)"))
		if err != nil {
			return fmt.Errorf("prepare log insert: %w", err)
		}
		defer stmt.Close()

		for _, row := range logs {
			if _, err := stmt.ExecContext(ctx, m.timeArg(row.TimeStamp), row.SessionID, row.Message, jsonArg(row.Fields)); err != nil {
				return fmt.Errorf("insert log row: %w", classify("logs", m.dialect, err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RowCounts returns the number of rows in every event table.
func (m *Manager) RowCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(countedTables))
	for _, table := range countedTables {
		var n int64
		if err := m.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

func (m *Manager) insertReturningID(ctx context.Context, table string, query string, args ...any) (int64, error) {
	var id int64
	if err := m.writer.QueryRowContext(ctx, m.rebind(query), args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s row: %w", table, classify(table, m.dialect, err))
	}
	return id, nil
}

// sqliteTimeLayout is fixed width and always UTC so stored text sorts in
// time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timeArg binds a timestamp: native for postgres, sqliteTimeLayout text for
// sqlite. The zero time means now.
func (m *Manager) timeArg(t time.Time) any {
	if t.IsZero() {
		t = time.Now()
	}
	if m.dialect == DialectPostgres {
		return t
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func parseTimeValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case string:
		return time.Parse(sqliteTimeLayout, t)
	case []byte:
		return time.Parse(sqliteTimeLayout, string(t))
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}
