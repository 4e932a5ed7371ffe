package db

import (
	"strings"
	"testing"
)

func TestSplitSQLStatements(t *testing.T) {
	t.Parallel()

	script := `
-- leading comment; not a statement
CREATE TABLE a (v TEXT DEFAULT 'x;y');
/* block; comment */
INSERT INTO "odd;name" VALUES (1);
CREATE FUNCTION f() RETURNS trigger AS $body$
BEGIN
  RETURN NEW;
END;
$body$ LANGUAGE plpgsql;
SELECT $$a;b$$
`
	got := splitSQLStatements(script)
	if len(got) != 4 {
		t.Fatalf("statement count = %d, want 4: %q", len(got), got)
	}
	if got[0] != "CREATE TABLE a (v TEXT DEFAULT 'x;y')" {
		t.Fatalf("statement 1 = %q", got[0])
	}
	if got[1] != `INSERT INTO "odd;name" VALUES (1)` {
		t.Fatalf("statement 2 = %q", got[1])
	}
	if !strings.Contains(got[2], "RETURN NEW;") || !strings.HasSuffix(got[2], "LANGUAGE plpgsql") {
		t.Fatalf("statement 3 = %q", got[2])
	}
	if got[3] != "SELECT $$a;b$$" {
		t.Fatalf("statement 4 = %q", got[3])
	}
}

func TestEmbeddedInitMigrationsSplitPerTable(t *testing.T) {
	t.Parallel()

	for _, dialect := range []Dialect{DialectSQLite, DialectPostgres} {
		content, err := migrationsFS.ReadFile("migrations/" + string(dialect) + "/0001_init.up.sql")
		if err != nil {
			t.Fatalf("read %s init migration: %v", dialect, err)
		}
		stmts := splitSQLStatements(string(content))
		if len(stmts) != 8 {
			t.Fatalf("%s init statements = %d, want 8", dialect, len(stmts))
		}
		for _, stmt := range stmts {
			if !strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS") {
				t.Fatalf("%s statement does not create a table: %q", dialect, stmt)
			}
		}
	}
}
