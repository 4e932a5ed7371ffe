package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Constraint violations reported by the store.
var (
	ErrForeignKeyViolation = errors.New("foreign key violation")
	ErrCheckViolation      = errors.New("check constraint violation")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrNotNullViolation    = errors.New("not null violation")
)

// Session lifecycle.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session already ended")
)

// ConstraintError is a write the store rejected. errors.Is matches both the
// Kind sentinel and the underlying driver error.
type ConstraintError struct {
	Table string
	Kind  error
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Table, e.Kind, e.Err)
}

func (e *ConstraintError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// postgres SQLSTATE codes, class 23.
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// classify wraps err in a ConstraintError when it is a constraint failure and
// returns it unchanged otherwise.
func classify(table string, dialect Dialect, err error) error {
	if err == nil {
		return nil
	}
	var kind error
	switch dialect {
	case DialectPostgres:
		kind = postgresKind(err)
	default:
		kind = sqliteKind(err)
	}
	if kind == nil {
		return err
	}
	return &ConstraintError{Table: table, Kind: kind, Err: err}
}

func sqliteKind(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return ErrForeignKeyViolation
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return ErrCheckViolation
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_ROWID:
			return ErrDuplicateKey
		case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			return ErrNotNullViolation
		}
	}

	// Fall back to the message when the extended code is not available.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return ErrForeignKeyViolation
	case strings.Contains(msg, "CHECK constraint failed"):
		return ErrCheckViolation
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ErrDuplicateKey
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return ErrNotNullViolation
	}
	return nil
}

func postgresKind(err error) error {
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		return nil
	}
	switch pe.Code {
	case pgForeignKeyViolation:
		return ErrForeignKeyViolation
	case pgCheckViolation:
		return ErrCheckViolation
	case pgUniqueViolation:
		return ErrDuplicateKey
	case pgNotNullViolation:
		return ErrNotNullViolation
	}
	return nil
}
