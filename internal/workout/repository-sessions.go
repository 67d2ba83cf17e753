package workout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/myrjola/blockplan/internal/sqlite"
)

// sqliteSessionRepository implements sessionRepository.
type sqliteSessionRepository struct {
	baseRepository
}

func newSQLiteSessionRepository(db *sqlite.Database, logger *slog.Logger) *sqliteSessionRepository {
	return &sqliteSessionRepository{
		baseRepository: newBaseRepository(db, logger),
	}
}

const sessionColumns = `id, block_id, week_index, day_id, day_name, date, status`

func (r *sqliteSessionRepository) Find(
	ctx context.Context,
	blockID uuid.UUID,
	week int,
	dayID uuid.UUID,
) (WorkoutSession, error) {
	row := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM workout_sessions
		WHERE block_id = ? AND week_index = ? AND day_id = ?`, blockID, week, dayID)
	sess, err := r.scanSession(row)
	if err != nil {
		return WorkoutSession{}, err
	}
	if sess.Exercises, err = loadSessionExercises(ctx, r.db.ReadOnly, sess.ID); err != nil {
		return WorkoutSession{}, err
	}
	return sess, nil
}

func (r *sqliteSessionRepository) Get(ctx context.Context, id uuid.UUID) (WorkoutSession, error) {
	return r.get(ctx, r.db.ReadOnly, id)
}

func (r *sqliteSessionRepository) get(ctx context.Context, q queryer, id uuid.UUID) (WorkoutSession, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM workout_sessions
		WHERE id = ?`, id)
	sess, err := r.scanSession(row)
	if err != nil {
		return WorkoutSession{}, err
	}
	if sess.Exercises, err = loadSessionExercises(ctx, q, sess.ID); err != nil {
		return WorkoutSession{}, err
	}
	return sess, nil
}

func (r *sqliteSessionRepository) ListByBlock(ctx context.Context, blockID uuid.UUID) (_ []WorkoutSession, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM workout_sessions
		WHERE block_id = ?
		ORDER BY week_index, day_position, rowid`, blockID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var sessions []WorkoutSession
	for rows.Next() {
		var sess WorkoutSession
		if sess, err = r.scanSession(rows); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range sessions {
		if sessions[i].Exercises, err = loadSessionExercises(ctx, r.db.ReadOnly, sessions[i].ID); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// Save inserts sessions in one transaction. A session whose (block, week, day) triple already exists is skipped
// together with its exercises, so concurrent generators cannot create duplicates.
func (r *sqliteSessionRepository) Save(ctx context.Context, sessions []WorkoutSession) (int, error) {
	tx, err := r.db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer r.db.Rollback(ctx, tx)()

	inserted := 0
	for _, sess := range sessions {
		var ok bool
		if ok, err = insertSession(ctx, tx, sess); err != nil {
			return 0, fmt.Errorf("insert session week %d day %s: %w", sess.WeekIndex, sess.DayID, err)
		}
		if ok {
			inserted++
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	if skipped := len(sessions) - inserted; skipped > 0 {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "skipped stored sessions",
			slog.Int("inserted", inserted), slog.Int("skipped", skipped))
	}
	return inserted, nil
}

// Update applies updateFn and stores the session when it reports a change. The session is read inside the
// write transaction, so concurrent updates of the same session are applied one after the other. The session row
// is updated in place and keeps its position in listings. The triple and identity of the session cannot be
// changed.
func (r *sqliteSessionRepository) Update(
	ctx context.Context,
	id uuid.UUID,
	updateFn func(sess *WorkoutSession) (bool, error),
) error {
	tx, err := r.db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer r.db.Rollback(ctx, tx)()

	sess, err := r.get(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("get session for update: %w", err)
	}
	original := sess

	updated, err := updateFn(&sess)
	if err != nil {
		return fmt.Errorf("update function: %w", err)
	}
	if !updated {
		return nil
	}
	if sess.ID != original.ID || sess.BlockID != original.BlockID ||
		sess.WeekIndex != original.WeekIndex || sess.DayID != original.DayID {
		return errors.New("update must not change the session identity or triple")
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE workout_sessions SET day_name = ?, date = ?, status = ?
		WHERE id = ?`, sess.DayName, formatTimestamp(sess.Date), sess.Status, id); err != nil {
		return fmt.Errorf("update session row: %w", err)
	}
	// The cascade removes the old sets so that the exercises can be reinserted.
	if _, err = tx.ExecContext(ctx, `DELETE FROM session_exercises WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session exercises: %w", err)
	}
	if err = insertSessionExercises(ctx, tx, sess); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// insertSession writes the session with its exercises and sets. A stored triple makes it a no-op that reports
// false. The day position is copied from the day template so that listings follow the day order of the block.
func insertSession(ctx context.Context, tx *sql.Tx, sess WorkoutSession) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO workout_sessions (`+sessionColumns+`, day_position)
		VALUES (?, ?, ?, ?, ?, ?, ?, COALESCE((SELECT position FROM day_templates WHERE id = ?), 0))
		ON CONFLICT (block_id, week_index, day_id) DO NOTHING`,
		sess.ID, sess.BlockID, sess.WeekIndex, sess.DayID, sess.DayName, formatTimestamp(sess.Date), sess.Status,
		sess.DayID)
	if err != nil {
		return false, fmt.Errorf("insert session row: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if err = insertSessionExercises(ctx, tx, sess); err != nil {
		return false, err
	}
	return true, nil
}

func insertSessionExercises(ctx context.Context, tx *sql.Tx, sess WorkoutSession) error {
	for position, ex := range sess.Exercises {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_exercises (
				id, session_id, position, exercise_template_id, name_snapshot, name_override, kind
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ex.ID, sess.ID, position, ex.ExerciseTemplateID, ex.NameSnapshot, ex.NameOverride, ex.Kind); err != nil {
			return fmt.Errorf("insert exercise %q: %w", ex.NameSnapshot, err)
		}
		for _, set := range ex.Sets {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO session_sets (
					id, session_exercise_id, set_index,
					expected_reps, expected_weight, expected_time_seconds, expected_distance, expected_calories,
					logged_reps, logged_weight, logged_time_seconds, logged_distance, logged_calories,
					completed, notes, completed_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				set.ID, ex.ID, set.Index,
				set.Expected.Reps, set.Expected.Weight, set.Expected.TimeSeconds, set.Expected.DistanceMeters,
				set.Expected.Calories,
				set.Logged.Reps, set.Logged.Weight, set.Logged.TimeSeconds, set.Logged.DistanceMeters,
				set.Logged.Calories,
				set.Completed, set.Notes, formatTimestamp(set.CompletedAt)); err != nil {
				return fmt.Errorf("insert set %d of %q: %w", set.Index, ex.NameSnapshot, err)
			}
		}
	}
	return nil
}

func (r *sqliteSessionRepository) scanSession(row rowScanner) (WorkoutSession, error) {
	var (
		sess WorkoutSession
		date sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.BlockID, &sess.WeekIndex, &sess.DayID, &sess.DayName, &date, &sess.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return WorkoutSession{}, ErrNotFound
	}
	if err != nil {
		return WorkoutSession{}, fmt.Errorf("scan session: %w", err)
	}
	if sess.Date, err = parseTimestamp(date); err != nil {
		return WorkoutSession{}, fmt.Errorf("parse date: %w", err)
	}
	return sess, nil
}

// loadSessionExercises reads a session's exercises in order, each with its sets ordered by index.
func loadSessionExercises(ctx context.Context, q queryer, sessionID uuid.UUID) (_ []SessionExercise, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT se.id, se.exercise_template_id, se.name_snapshot, se.name_override, se.kind,
		       ss.id, ss.set_index,
		       ss.expected_reps, ss.expected_weight, ss.expected_time_seconds, ss.expected_distance,
		       ss.expected_calories,
		       ss.logged_reps, ss.logged_weight, ss.logged_time_seconds, ss.logged_distance, ss.logged_calories,
		       ss.completed, ss.notes, ss.completed_at
		FROM session_exercises se
		LEFT JOIN session_sets ss ON ss.session_exercise_id = se.id
		WHERE se.session_id = ?
		ORDER BY se.position, ss.set_index, ss.rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session exercises: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var exercises []SessionExercise
	for rows.Next() {
		var (
			ex          SessionExercise
			setID       *uuid.UUID
			setIndex    sql.NullInt64
			completed   sql.NullBool
			notes       sql.NullString
			completedAt sql.NullString
			set         SessionSet
		)
		if err = rows.Scan(&ex.ID, &ex.ExerciseTemplateID, &ex.NameSnapshot, &ex.NameOverride, &ex.Kind,
			&setID, &setIndex,
			&set.Expected.Reps, &set.Expected.Weight, &set.Expected.TimeSeconds, &set.Expected.DistanceMeters,
			&set.Expected.Calories,
			&set.Logged.Reps, &set.Logged.Weight, &set.Logged.TimeSeconds, &set.Logged.DistanceMeters,
			&set.Logged.Calories,
			&completed, &notes, &completedAt); err != nil {
			return nil, fmt.Errorf("scan session set: %w", err)
		}

		if len(exercises) == 0 || exercises[len(exercises)-1].ID != ex.ID {
			exercises = append(exercises, ex)
		}
		// Exercises without sets come back as a single row of NULL set columns.
		if setID == nil {
			continue
		}
		set.ID = *setID
		set.Index = int(setIndex.Int64)
		set.Completed = completed.Bool
		set.Notes = notes.String
		if set.CompletedAt, err = parseTimestamp(completedAt); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		current := &exercises[len(exercises)-1]
		current.Sets = append(current.Sets, set)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return exercises, nil
}
