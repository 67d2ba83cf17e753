package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// schemaObject is a named entry of sqlite_schema.
type schemaObject struct {
	name string
	sql  string
}

// schemaChange is an object whose definition differs between the live and the target schema.
type schemaChange struct {
	name    string
	liveSQL string
	newSQL  string
}

// schemaDiff lists how the live schema must change to match the target for one object type.
type schemaDiff struct {
	removed []string
	added   []schemaObject
	changed []schemaChange
}

// migrateTo brings the live schema in line with schemaDefinition declaratively.
//
// The target schema is built in an attached in-memory database and compared object by object. Removed tables are
// dropped, new ones created, and changed ones rebuilt with the generalized ALTER TABLE procedure from
// https://www.sqlite.org/lang_altertable.html#otheralter, carrying over the columns both versions share. Indexes
// and triggers are then synchronized.
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) (err error) {
	start := time.Now()

	detach, err := db.attachTarget(ctx, schemaDefinition)
	if err != nil {
		return fmt.Errorf("attach target schema: %w", err)
	}
	defer detach()

	// Foreign keys cannot be toggled inside a transaction.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if _, fkErr := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			err = errors.Join(err, fmt.Errorf("enable foreign keys: %w", fkErr))
		}
	}()

	tx, err := db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer db.Rollback(ctx, tx)()

	if err = db.migrateTables(ctx, tx); err != nil {
		return fmt.Errorf("migrate tables: %w", err)
	}
	for _, typ := range []string{"index", "trigger"} {
		if err = db.syncObjects(ctx, tx, typ); err != nil {
			return fmt.Errorf("sync %ss: %w", typ, err)
		}
	}

	var violations []string
	if violations, err = queryStrings(ctx, tx, `SELECT "table" FROM pragma_foreign_key_check`); err != nil {
		return fmt.Errorf("foreign key check: %w", err)
	}
	if len(violations) > 0 {
		return fmt.Errorf("foreign key violations in %s", strings.Join(violations, ", "))
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	db.logger.LogAttrs(ctx, slog.LevelDebug, "migrated database", slog.Duration("duration", time.Since(start)))
	return nil
}

// attachTarget builds the target schema in a fresh in-memory database and attaches it as "target". The returned
// function detaches it again.
func (db *Database) attachTarget(ctx context.Context, schemaDefinition string) (func(), error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", rand.Text())
	target, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open target database: %w", err)
	}
	// The attached copy keeps the shared-cache database alive after this handle closes.
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close target database",
				slog.Any("error", closeErr))
		}
	}()
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return nil, fmt.Errorf("create target schema: %w", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, "ATTACH DATABASE ? AS target", dsn); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	return func() {
		if _, detachErr := db.ReadWrite.ExecContext(ctx, "DETACH DATABASE target"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach target database",
				slog.Any("error", detachErr))
		}
	}, nil
}

func (db *Database) migrateTables(ctx context.Context, tx *sql.Tx) error {
	diff, err := diffSchema(ctx, tx, "table")
	if err != nil {
		return err
	}

	for _, name := range diff.removed {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", name))
		if _, err = tx.ExecContext(ctx, "DROP TABLE "+name); err != nil {
			return fmt.Errorf("drop table %s: %w", name, err)
		}
	}
	for _, obj := range diff.added {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("table", obj.name))
		if _, err = tx.ExecContext(ctx, obj.sql); err != nil {
			return fmt.Errorf("create table %s: %w", obj.name, err)
		}
	}
	for _, change := range diff.changed {
		if err = db.rebuildTable(ctx, tx, change); err != nil {
			return fmt.Errorf("rebuild table %s: %w", change.name, err)
		}
	}
	return nil
}

// rebuildTable creates the new definition under a temporary name, copies the shared columns, and swaps it in.
func (db *Database) rebuildTable(ctx context.Context, tx *sql.Tx, change schemaChange) error {
	db.logger.LogAttrs(ctx, slog.LevelInfo, "rebuilding table",
		slog.String("table", change.name),
		slog.String("live_sql", change.liveSQL),
		slog.String("new_sql", change.newSQL))

	temp := change.name + "_rebuild"
	if _, err := tx.ExecContext(ctx, strings.Replace(change.newSQL, change.name, temp, 1)); err != nil {
		return fmt.Errorf("create %s: %w", temp, err)
	}

	// Quoting keeps columns named after SQLite keywords working.
	columns, err := queryStrings(ctx, tx, `SELECT '"' || live.name || '"'
FROM pragma_table_info(:table) AS live
JOIN pragma_table_info(:table, 'target') AS target USING (name)`, sql.Named("table", change.name))
	if err != nil {
		return fmt.Errorf("query shared columns: %w", err)
	}
	if len(columns) > 0 {
		shared := strings.Join(columns, ", ")
		//nolint:gosec // names come from sqlite_schema.
		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", temp, shared, shared, change.name)
		if _, err = tx.ExecContext(ctx, copySQL); err != nil {
			return fmt.Errorf("copy rows: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, "DROP TABLE "+change.name); err != nil {
		return fmt.Errorf("drop old table: %w", err)
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", temp, change.name)); err != nil {
		return fmt.Errorf("rename %s: %w", temp, err)
	}
	return nil
}

// syncObjects recreates indexes or triggers so that they match the target.
func (db *Database) syncObjects(ctx context.Context, tx *sql.Tx, typ string) error {
	diff, err := diffSchema(ctx, tx, typ)
	if err != nil {
		return err
	}
	logger := db.logger.With(slog.String("type", typ))
	keyword := strings.ToUpper(typ)

	drop := diff.removed
	create := diff.added
	for _, change := range diff.changed {
		drop = append(drop, change.name)
		create = append(create, schemaObject{name: change.name, sql: change.newSQL})
	}
	for _, name := range drop {
		logger.LogAttrs(ctx, slog.LevelInfo, "dropping", slog.String("name", name))
		// Dropping a table drops its indexes and triggers with it.
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP %s IF EXISTS %s", keyword, name)); err != nil {
			return fmt.Errorf("drop %s %s: %w", typ, name, err)
		}
	}
	for _, obj := range create {
		logger.LogAttrs(ctx, slog.LevelInfo, "creating", slog.String("name", obj.name))
		if _, err = tx.ExecContext(ctx, obj.sql); err != nil {
			return fmt.Errorf("create %s %s: %w", typ, obj.name, err)
		}
	}
	return nil
}

// diffSchema compares the live and target definitions of every object of typ. Internal objects such as
// autoindexes have no SQL and are skipped.
func diffSchema(ctx context.Context, tx *sql.Tx, typ string) (schemaDiff, error) {
	live, err := querySchema(ctx, tx, "main", typ)
	if err != nil {
		return schemaDiff{}, fmt.Errorf("query live %ss: %w", typ, err)
	}
	target, err := querySchema(ctx, tx, "target", typ)
	if err != nil {
		return schemaDiff{}, fmt.Errorf("query target %ss: %w", typ, err)
	}

	targetSQL := make(map[string]string, len(target))
	for _, obj := range target {
		targetSQL[obj.name] = obj.sql
	}
	liveNames := make(map[string]bool, len(live))

	var diff schemaDiff
	for _, obj := range live {
		liveNames[obj.name] = true
		newSQL, ok := targetSQL[obj.name]
		switch {
		case !ok:
			diff.removed = append(diff.removed, obj.name)
		case normalizeSQL(obj.sql) != normalizeSQL(newSQL):
			diff.changed = append(diff.changed, schemaChange{name: obj.name, liveSQL: obj.sql, newSQL: newSQL})
		}
	}
	for _, obj := range target {
		if !liveNames[obj.name] {
			diff.added = append(diff.added, obj)
		}
	}
	return diff, nil
}

// normalizeSQL removes the quotes that ALTER TABLE RENAME adds around table names.
func normalizeSQL(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

// querySchema returns the objects of typ in creation order.
func querySchema(ctx context.Context, tx *sql.Tx, schema, typ string) (_ []schemaObject, err error) {
	//nolint:gosec // schema is either main or target.
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT name, sql FROM %s.sqlite_schema
WHERE type = ? AND sql IS NOT NULL AND name NOT LIKE 'sqlite_%%'
ORDER BY rowid`, schema), typ)
	if err != nil {
		return nil, fmt.Errorf("query sqlite_schema: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var objects []schemaObject
	for rows.Next() {
		var obj schemaObject
		if err = rows.Scan(&obj.name, &obj.sql); err != nil {
			return nil, fmt.Errorf("scan schema object: %w", err)
		}
		objects = append(objects, obj)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return objects, nil
}

// queryStrings returns the single-column result of query.
func queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) (_ []string, err error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var results []string
	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}
