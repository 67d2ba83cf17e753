package workout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/blockplan/internal/sqlite"
)

// sqliteBlockRepository implements blockRepository.
type sqliteBlockRepository struct {
	baseRepository
}

func newSQLiteBlockRepository(db *sqlite.Database, logger *slog.Logger) *sqliteBlockRepository {
	return &sqliteBlockRepository{
		baseRepository: newBaseRepository(db, logger),
	}
}

func (r *sqliteBlockRepository) Get(ctx context.Context, id uuid.UUID) (BlockTemplate, error) {
	var (
		block     BlockTemplate
		createdAt string
	)
	err := r.db.ReadOnly.QueryRowContext(ctx, `
		SELECT id, name, goal, number_of_weeks, progression, created_at
		FROM blocks
		WHERE id = ?`, id).Scan(
		&block.ID, &block.Name, &block.Goal, &block.NumberOfWeeks, &block.Progression, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return BlockTemplate{}, ErrNotFound
	}
	if err != nil {
		return BlockTemplate{}, fmt.Errorf("query block: %w", err)
	}
	if block.CreatedAt, err = time.Parse(timestampFormat, createdAt); err != nil {
		return BlockTemplate{}, fmt.Errorf("parse created_at: %w", err)
	}

	if block.Days, err = r.loadDays(ctx, id); err != nil {
		return BlockTemplate{}, err
	}
	return block, nil
}

func (r *sqliteBlockRepository) List(ctx context.Context) (_ []BlockTemplate, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `SELECT id FROM blocks ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan block id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	blocks := make([]BlockTemplate, 0, len(ids))
	for _, id := range ids {
		var block BlockTemplate
		if block, err = r.Get(ctx, id); err != nil {
			return nil, fmt.Errorf("get block %s: %w", id, err)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func (r *sqliteBlockRepository) Create(ctx context.Context, block BlockTemplate) error {
	if err := r.set(ctx, block, false); err != nil {
		return fmt.Errorf("create block: %w", err)
	}
	return nil
}

func (r *sqliteBlockRepository) Update(
	ctx context.Context,
	id uuid.UUID,
	updateFn func(block *BlockTemplate) (bool, error),
) error {
	block, err := r.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get block for update: %w", err)
	}

	updated, err := updateFn(&block)
	if err != nil {
		return fmt.Errorf("update function: %w", err)
	}
	if !updated {
		return nil
	}
	if block.ID != id {
		return fmt.Errorf("update changed block id from %s to %s", id, block.ID)
	}
	if err = r.set(ctx, block, true); err != nil {
		return fmt.Errorf("save updated block: %w", err)
	}
	return nil
}

func (r *sqliteBlockRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ReadWrite.ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// set writes the whole aggregate. With replace, the block's days are deleted first and the cascade takes the
// exercises and prescribed sets with them, so the stored tree always mirrors block.
func (r *sqliteBlockRepository) set(ctx context.Context, block BlockTemplate, replace bool) error {
	tx, err := r.db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer r.db.Rollback(ctx, tx)()

	if replace {
		if _, err = tx.ExecContext(ctx, `
			UPDATE blocks SET name = ?, goal = ?, number_of_weeks = ?, progression = ?
			WHERE id = ?`,
			block.Name, block.Goal, block.NumberOfWeeks, storedProgression(block.Progression), block.ID); err != nil {
			return fmt.Errorf("update block: %w", err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM day_templates WHERE block_id = ?`, block.ID); err != nil {
			return fmt.Errorf("delete days: %w", err)
		}
	} else {
		createdAt := block.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO blocks (id, name, goal, number_of_weeks, progression, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			block.ID, block.Name, block.Goal, block.NumberOfWeeks, storedProgression(block.Progression),
			formatTimestamp(&createdAt)); err != nil {
			return fmt.Errorf("insert block: %w", err)
		}
	}

	for _, day := range block.Days {
		if err = insertDay(ctx, tx, block.ID, day); err != nil {
			return fmt.Errorf("insert day %q: %w", day.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertDay(ctx context.Context, tx *sql.Tx, blockID uuid.UUID, day DayTemplate) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO day_templates (id, block_id, position, name, short_code, goal)
		VALUES (?, ?, ?, ?, ?, ?)`,
		day.ID, blockID, day.Order, day.Name, day.ShortCode, day.Goal); err != nil {
		return fmt.Errorf("insert day: %w", err)
	}
	for position, ex := range day.Exercises {
		var progression, deltaWeight any
		if ex.Progression != nil {
			progression = string(ex.Progression.Type)
			deltaWeight = ex.Progression.DeltaWeight
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO exercise_templates (
				id, day_id, position, name, kind, category, conditioning_type, notes, progression, delta_weight
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ex.ID, day.ID, position, ex.Name, ex.Kind, ex.Category, ex.ConditioningType, ex.Notes,
			progression, deltaWeight); err != nil {
			return fmt.Errorf("insert exercise %q: %w", ex.Name, err)
		}
		if err := insertPrescribedSets(ctx, tx, ex); err != nil {
			return fmt.Errorf("insert sets of %q: %w", ex.Name, err)
		}
	}
	return nil
}

func insertPrescribedSets(ctx context.Context, tx *sql.Tx, ex ExerciseTemplate) error {
	const query = `
		INSERT INTO prescribed_sets (
			exercise_id, position, set_index, reps, weight, rpe, rest_seconds,
			duration_seconds, distance_meters, calories, rounds, effort
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for position, s := range ex.StrengthSets {
		if _, err := tx.ExecContext(ctx, query,
			ex.ID, position, s.Index, s.Reps, s.Weight, s.RPE, s.RestSeconds,
			nil, nil, nil, nil, nil); err != nil {
			return fmt.Errorf("insert strength set %d: %w", s.Index, err)
		}
	}
	offset := len(ex.StrengthSets)
	for position, s := range ex.ConditioningSets {
		if _, err := tx.ExecContext(ctx, query,
			ex.ID, offset+position, s.Index, nil, nil, nil, s.RestSeconds,
			s.DurationSeconds, s.DistanceMeters, s.Calories, s.Rounds, s.Effort); err != nil {
			return fmt.Errorf("insert conditioning set %d: %w", s.Index, err)
		}
	}
	return nil
}

// storedProgression maps the empty block default to custom, which is how it behaves.
func storedProgression(p ProgressionType) string {
	if p == "" {
		return string(ProgressionCustom)
	}
	return string(p)
}

// loadDays reads the days of a block in their stored order along with their exercises and sets.
func (r *sqliteBlockRepository) loadDays(ctx context.Context, blockID uuid.UUID) (_ []DayTemplate, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT id, position, name, short_code, goal
		FROM day_templates
		WHERE block_id = ?
		ORDER BY position, rowid`, blockID)
	if err != nil {
		return nil, fmt.Errorf("query days: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var days []DayTemplate
	for rows.Next() {
		var day DayTemplate
		if err = rows.Scan(&day.ID, &day.Order, &day.Name, &day.ShortCode, &day.Goal); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		days = append(days, day)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range days {
		if days[i].Exercises, err = r.loadExercises(ctx, days[i].ID); err != nil {
			return nil, fmt.Errorf("load exercises of day %s: %w", days[i].ID, err)
		}
	}
	return days, nil
}

func (r *sqliteBlockRepository) loadExercises(ctx context.Context, dayID uuid.UUID) (_ []ExerciseTemplate, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT id, name, kind, category, conditioning_type, notes, progression, delta_weight
		FROM exercise_templates
		WHERE day_id = ?
		ORDER BY position`, dayID)
	if err != nil {
		return nil, fmt.Errorf("query exercises: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var exercises []ExerciseTemplate
	for rows.Next() {
		var (
			ex          ExerciseTemplate
			progression *ProgressionType
			deltaWeight *float64
		)
		if err = rows.Scan(&ex.ID, &ex.Name, &ex.Kind, &ex.Category, &ex.ConditioningType, &ex.Notes,
			&progression, &deltaWeight); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		if progression != nil {
			ex.Progression = &ProgressionRule{Type: *progression, DeltaWeight: deltaWeight}
		}
		exercises = append(exercises, ex)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range exercises {
		if err = r.loadPrescribedSets(ctx, &exercises[i]); err != nil {
			return nil, fmt.Errorf("load sets of exercise %s: %w", exercises[i].ID, err)
		}
	}
	return exercises, nil
}

func (r *sqliteBlockRepository) loadPrescribedSets(ctx context.Context, ex *ExerciseTemplate) (err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT set_index, reps, weight, rpe, rest_seconds,
		       duration_seconds, distance_meters, calories, rounds, effort
		FROM prescribed_sets
		WHERE exercise_id = ?
		ORDER BY position`, ex.ID)
	if err != nil {
		return fmt.Errorf("query sets: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	for rows.Next() {
		var (
			index       int
			reps        *int
			strength    StrengthSet
			conditioned ConditioningSet
		)
		if err = rows.Scan(&index, &reps, &strength.Weight, &strength.RPE, &strength.RestSeconds,
			&conditioned.DurationSeconds, &conditioned.DistanceMeters, &conditioned.Calories,
			&conditioned.Rounds, &conditioned.Effort); err != nil {
			return fmt.Errorf("scan set: %w", err)
		}
		switch ex.Kind {
		case KindStrength:
			strength.Index = index
			if reps != nil {
				strength.Reps = *reps
			}
			ex.StrengthSets = append(ex.StrengthSets, strength)
		case KindConditioning:
			conditioned.Index = index
			conditioned.RestSeconds = strength.RestSeconds
			ex.ConditioningSets = append(ex.ConditioningSets, conditioned)
		}
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}
