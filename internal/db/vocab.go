package db

import (
	"context"
	"fmt"
	"log/slog"
)

// LogLevel is an id in the log_levels table.
type LogLevel int16

const (
	LevelTrace LogLevel = 0
	LevelDebug LogLevel = 1
	LevelInfo  LogLevel = 2
	LevelWarn  LogLevel = 3
	LevelError LogLevel = 4
)

var logLevelNames = map[LogLevel]string{
	LevelTrace: "Trace",
	LevelDebug: "Debug",
	LevelInfo:  "Info",
	LevelWarn:  "Warn",
	LevelError: "Error",
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LogLevel(%d)", int16(l))
}

// LevelFromSlog maps a slog level onto the stored vocabulary. Anything below
// debug is trace.
func LevelFromSlog(level slog.Level) LogLevel {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	case level >= slog.LevelDebug:
		return LevelDebug
	default:
		return LevelTrace
	}
}

// Source is an id in the sources table.
type Source int16

const (
	SourceClient Source = 0
	SourceServer Source = 1
)

func (s Source) String() string {
	switch s {
	case SourceClient:
		return "client"
	case SourceServer:
		return "server"
	default:
		return fmt.Sprintf("Source(%d)", int16(s))
	}
}

type LogLevelRow struct {
	ID   LogLevel `json:"id"`
	Name string   `json:"name"`
}

type SourceRow struct {
	ID    Source `json:"id"`
	Value string `json:"value"`
}

func (m *Manager) LogLevels(ctx context.Context) ([]LogLevelRow, error) {
	rows, err := m.reader.QueryContext(ctx, "SELECT id, name FROM log_levels ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogLevelRow
	for rows.Next() {
		var row LogLevelRow
		if err := rows.Scan(&row.ID, &row.Name); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (m *Manager) Sources(ctx context.Context) ([]SourceRow, error) {
	rows, err := m.reader.QueryContext(ctx, "SELECT id, value FROM sources ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceRow
	for rows.Next() {
		var row SourceRow
		if err := rows.Scan(&row.ID, &row.Value); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
