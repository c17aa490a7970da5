package sqldb_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inspirepan/copilot/datasource/sqldb"
	"github.com/inspirepan/copilot/sqltools"
)

func openFixture(t *testing.T) *sqldb.DB {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.Config{
		Dialect: sqltools.DialectSQLite,
		DSN:     filepath.Join(t.TempDir(), "fixture.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL DEFAULT 'anon', email TEXT)`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, total REAL)`,
		`INSERT INTO users (name, email) VALUES ('ann', 'ann@example.com'), ('bob', NULL), ('cyd', 'cyd@example.com')`,
		`INSERT INTO orders (user_id, total) VALUES (1, 9.5)`,
	} {
		if err := db.Exec(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	return db
}

func call(t *testing.T, cat *sqltools.Catalog, tool, args string) string {
	t.Helper()
	res, err := cat.CallTool(context.Background(), tool, json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s(%s): %v", tool, args, err)
	}
	return res.Text()
}

func TestSQLite_CatalogEndToEnd(t *testing.T) {
	cat := sqltools.New(openFixture(t))

	if got, want := call(t, cat, sqltools.ToolListTables, `{}`), "Found 2 tables in the database:\n- orders\n- users"; got != want {
		t.Errorf("list tables: got %q, want %q", got, want)
	}

	desc := call(t, cat, sqltools.ToolDescribeTable, `{"tableName":"users"}`)
	for _, want := range []string{
		`Table "users" structure:`,
		"id (INTEGER) NULL",
		"name (TEXT) NOT NULL DEFAULT 'anon'",
		"email (TEXT) NULL",
	} {
		if !strings.Contains(desc, want) {
			t.Errorf("describe: missing %q in %q", want, desc)
		}
	}

	if got, want := call(t, cat, sqltools.ToolRowCount, `{"tableName":"users"}`), `Table "users" contains 3 rows`; got != want {
		t.Errorf("row count: got %q, want %q", got, want)
	}

	sample := call(t, cat, sqltools.ToolSampleData, `{"tableName":"users","limit":2}`)
	if !strings.HasPrefix(sample, `Sample data from "users" (2 rows):`) {
		t.Errorf("sample: unexpected header in %q", sample)
	}
	if !strings.Contains(sample, `"name": "ann"`) || !strings.Contains(sample, `"email": null`) {
		t.Errorf("sample: unexpected body %q", sample)
	}

	query := call(t, cat, sqltools.ToolExecuteQuery, `{"query":"SELECT SUM(total) AS revenue FROM orders"}`)
	if !strings.Contains(query, `"revenue": 9.5`) {
		t.Errorf("execute: unexpected result %q", query)
	}
}

func TestSQLite_QueryError(t *testing.T) {
	db := openFixture(t)
	if _, err := db.Query(context.Background(), "SELECT * FROM missing_table"); err == nil {
		t.Fatal("expected error for missing table")
	}
}

func TestOpen_UnsupportedDialect(t *testing.T) {
	if _, err := sqldb.Open(context.Background(), sqldb.Config{Dialect: "oracle"}); err == nil {
		t.Fatal("expected error")
	}
}
