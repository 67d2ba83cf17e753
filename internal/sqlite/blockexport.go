package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrNothingToExport is returned when neither the block nor any of its sessions exist.
var ErrNothingToExport = errors.New("nothing to export")

// exportTable selects the rows of a table that belong to one block. Parents come before children so that the
// foreign keys of the export database hold while copying.
type exportTable struct {
	name  string
	where string
}

//nolint:gochecknoglobals // static export plan.
var blockExportPlan = []exportTable{
	{name: "blocks", where: "id = :block"},
	{name: "day_templates", where: "block_id = :block"},
	{name: "exercise_templates", where: `day_id IN (SELECT id FROM main.day_templates WHERE block_id = :block)`},
	{name: "prescribed_sets", where: `exercise_id IN (
		SELECT e.id FROM main.exercise_templates e JOIN main.day_templates d ON d.id = e.day_id
		WHERE d.block_id = :block)`},
	{name: "workout_sessions", where: "block_id = :block"},
	{name: "session_exercises", where: `session_id IN (SELECT id FROM main.workout_sessions WHERE block_id = :block)`},
	{name: "session_sets", where: `session_exercise_id IN (
		SELECT se.id FROM main.session_exercises se JOIN main.workout_sessions s ON s.id = se.session_id
		WHERE s.block_id = :block)`},
}

// ExportBlock copies a block template and all sessions generated from it into a standalone SQLite database in
// dir and returns its path. Sessions are exported even when their block has been deleted. An existing export of
// the same block is replaced.
func (db *Database) ExportBlock(ctx context.Context, blockID string, dir string) (_ string, err error) {
	exportPath := filepath.Join(dir, fmt.Sprintf("block-%s.sqlite3", blockID))
	if err = os.Remove(exportPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("remove previous export: %w", err)
	}

	// ATTACH is not allowed inside a transaction, so the export holds on to one connection throughout.
	conn, err := db.ReadWrite.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("get db connection: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close db connection: %w", closeErr))
		}
	}()

	// Runs after the export database is detached.
	defer func() {
		if err != nil {
			_ = os.Remove(exportPath)
		}
	}()

	attachDSN := fmt.Sprintf("file:%s?mode=rwc", exportPath)
	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS export", attachDSN); err != nil {
		return "", fmt.Errorf("attach export database: %w", err)
	}
	defer func() {
		if _, detachErr := conn.ExecContext(ctx, "DETACH DATABASE export"); detachErr != nil {
			err = errors.Join(err, fmt.Errorf("detach export database: %w", detachErr))
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer db.Rollback(ctx, tx)()

	var exported int64
	for _, table := range blockExportPlan {
		var createSQL string
		if err = tx.QueryRowContext(ctx, `SELECT sql FROM main.sqlite_schema WHERE type = 'table' AND name = ?`,
			table.name).Scan(&createSQL); err != nil {
			return "", fmt.Errorf("read schema of %s: %w", table.name, err)
		}
		prefix := "CREATE TABLE " + table.name
		if !strings.HasPrefix(createSQL, prefix) {
			return "", fmt.Errorf("unexpected definition of %s", table.name)
		}
		if _, err = tx.ExecContext(ctx, "CREATE TABLE export."+table.name+createSQL[len(prefix):]); err != nil {
			return "", fmt.Errorf("create export table %s: %w", table.name, err)
		}

		//nolint:gosec // table names and filters are constants.
		query := fmt.Sprintf("INSERT INTO export.%s SELECT * FROM main.%s WHERE %s", table.name, table.name, table.where)
		result, execErr := tx.ExecContext(ctx, query, sql.Named("block", blockID))
		if execErr != nil {
			return "", fmt.Errorf("copy %s: %w", table.name, execErr)
		}
		var n int64
		if n, err = result.RowsAffected(); err != nil {
			return "", fmt.Errorf("count copied rows: %w", err)
		}
		if table.name == "blocks" || table.name == "workout_sessions" {
			exported += n
		}
	}
	if exported == 0 {
		return "", ErrNothingToExport
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit export: %w", err)
	}
	db.logger.LogAttrs(ctx, slog.LevelInfo, "exported block",
		slog.String("block_id", blockID), slog.String("path", exportPath))
	return exportPath, nil
}
