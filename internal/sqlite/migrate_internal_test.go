package sqlite

import (
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/blockplan/internal/testhelpers"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	logger := testhelpers.NewLogger(testhelpers.NewWriter(t))
	db, err := connect(t.Context(), ":memory:", logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		if err = db.Close(); err != nil {
			t.Errorf("close database: %v", err)
		}
	})
	return db
}

func TestDatabase_migrateTo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		schemas []string
		queries []string
		wantErr bool
	}{
		{
			name:    "empty schema",
			schemas: []string{""},
			queries: []string{"SELECT * FROM sqlite_schema"},
			wantErr: false,
		},
		{
			name:    "create table",
			schemas: []string{"CREATE TABLE blocks (id TEXT PRIMARY KEY, name TEXT)"},
			queries: []string{"INSERT INTO blocks (id, name) VALUES ('a', 'Strength')"},
			wantErr: false,
		},
		{
			name: "drop table",
			schemas: []string{
				"CREATE TABLE blocks (id TEXT PRIMARY KEY, name TEXT)",
				"",
			},
			queries: []string{"INSERT INTO blocks (id, name) VALUES ('a', 'Strength')"},
			wantErr: true,
		},
		{
			name: "add column",
			schemas: []string{
				"CREATE TABLE blocks (id TEXT PRIMARY KEY)",
				"CREATE TABLE blocks (id TEXT PRIMARY KEY, goal TEXT)",
			},
			queries: []string{"INSERT INTO blocks (id, goal) VALUES ('a', 'size')"},
			wantErr: false,
		},
		{
			name: "remove column",
			schemas: []string{
				"CREATE TABLE blocks (id TEXT PRIMARY KEY, goal TEXT)",
				"CREATE TABLE blocks (id TEXT PRIMARY KEY)",
			},
			queries: []string{"INSERT INTO blocks (id, goal) VALUES ('a', 'size')"},
			wantErr: true,
		},
		{
			name: "create index",
			schemas: []string{
				"CREATE TABLE sets (id TEXT PRIMARY KEY, idx INTEGER); CREATE INDEX sets_idx ON sets (idx)",
			},
			queries: []string{"DROP INDEX sets_idx"},
			wantErr: false,
		},
		{
			name: "drop index",
			schemas: []string{
				"CREATE TABLE sets (id TEXT PRIMARY KEY, idx INTEGER); CREATE INDEX sets_idx ON sets (idx)",
				"CREATE TABLE sets (id TEXT PRIMARY KEY, idx INTEGER)",
			},
			queries: []string{"DROP INDEX sets_idx"},
			wantErr: true,
		},
		{
			name: "index survives table rebuild",
			schemas: []string{
				"CREATE TABLE sets (id TEXT PRIMARY KEY, idx INTEGER); CREATE INDEX sets_idx ON sets (idx)",
				"CREATE TABLE sets (id TEXT PRIMARY KEY, idx INTEGER, reps INTEGER); CREATE INDEX sets_idx ON sets (idx)",
			},
			queries: []string{"DROP INDEX sets_idx"},
			wantErr: false,
		},
		{
			name: "create trigger",
			schemas: []string{
				`CREATE TABLE sets (id TEXT PRIMARY KEY);
                 CREATE TRIGGER sets_readonly AFTER INSERT ON sets BEGIN SELECT RAISE (FAIL, 'read only'); END;`,
			},
			queries: []string{"INSERT INTO sets (id) VALUES ('a')"},
			wantErr: true,
		},
		{
			name: "update trigger",
			schemas: []string{
				`CREATE TABLE sets (id TEXT PRIMARY KEY);
                 CREATE TRIGGER sets_readonly AFTER INSERT ON sets BEGIN SELECT RAISE (FAIL, 'read only'); END;`,
				`CREATE TABLE sets (id TEXT PRIMARY KEY);
                 CREATE TRIGGER sets_readonly AFTER INSERT ON sets BEGIN SELECT 1; END;`,
			},
			queries: []string{"INSERT INTO sets (id) VALUES ('a')"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			db := newTestDatabase(t)

			for _, schema := range tt.schemas {
				db.logger.LogAttrs(ctx, slog.LevelDebug, "migrating", slog.String("schema", schema))
				if err := db.migrateTo(ctx, schema); err != nil {
					t.Fatalf("migrate: %v", err)
				}
			}

			for _, query := range tt.queries {
				_, err := db.ReadWrite.ExecContext(ctx, query)
				if tt.wantErr && err == nil {
					t.Errorf("expected error for query %q, got none", query)
				}
				if !tt.wantErr && err != nil {
					t.Errorf("unexpected error for query %q: %v", query, err)
				}
			}
		})
	}
}

func TestDatabase_migrateTo_KeepsRows(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	db := newTestDatabase(t)

	if err := db.migrateTo(ctx, "CREATE TABLE blocks (id TEXT PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ReadWrite.ExecContext(ctx, "INSERT INTO blocks (id, name) VALUES ('a', 'Strength')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.migrateTo(ctx, "CREATE TABLE blocks (id TEXT PRIMARY KEY, name TEXT, goal TEXT)"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var name string
	var goal *string
	if err := db.ReadOnly.QueryRowContext(ctx, "SELECT name, goal FROM blocks WHERE id = 'a'").
		Scan(&name, &goal); err != nil {
		t.Fatalf("select: %v", err)
	}
	if name != "Strength" || goal != nil {
		t.Errorf("got name %q goal %v, want Strength and NULL", name, goal)
	}
}

func TestDatabase_migrateTo_EmbeddedSchemaIsStable(t *testing.T) {
	t.Parallel()
	ctx := t.Context()
	db := newTestDatabase(t)

	for range 2 {
		if err := db.migrateTo(ctx, schemaDefinition); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}

	tables, err := querySchemaNames(t, db)
	if err != nil {
		t.Fatalf("query tables: %v", err)
	}
	want := []string{
		"blocks", "day_templates", "exercise_templates", "prescribed_sets",
		"workout_sessions", "session_exercises", "session_sets",
	}
	if diff := cmp.Diff(want, tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
}

func querySchemaNames(t *testing.T, db *Database) ([]string, error) {
	t.Helper()
	tx, err := db.ReadOnly.BeginTx(t.Context(), nil)
	if err != nil {
		return nil, err
	}
	defer db.Rollback(t.Context(), tx)()
	objects, err := querySchema(t.Context(), tx, "main", "table")
	if err != nil {
		return nil, err
	}
	names := make([]string, len(objects))
	for i, obj := range objects {
		names[i] = obj.name
	}
	return names, nil
}
