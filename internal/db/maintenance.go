package db

import (
	"context"
	"fmt"
	"os"
)

// WALSizeBytes reports the size of the sqlite write-ahead log, 0 for postgres.
func (m *Manager) WALSizeBytes() int64 {
	if m.dialect != DialectSQLite {
		return 0
	}
	fi, err := os.Stat(m.path + "-wal")
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (m *Manager) DBSizeBytes() int64 {
	if m.dialect != DialectSQLite {
		return 0
	}
	fi, err := os.Stat(m.path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func (m *Manager) CheckpointIfWALExceeds(ctx context.Context, thresholdBytes int64) (bool, error) {
	if m.dialect != DialectSQLite || m.WALSizeBytes() <= thresholdBytes {
		return false, nil
	}
	if _, err := m.writer.ExecContext(ctx, "PRAGMA wal_checkpoint(RESTART)"); err != nil {
		return false, fmt.Errorf("wal restart checkpoint: %w", err)
	}
	return true, nil
}
