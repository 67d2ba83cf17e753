package workout

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/blockplan/internal/sqlite"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

// repository contains the repositories for the block and session aggregates.
type repository struct {
	blocks   blockRepository
	sessions sessionRepository
}

// blockRepository persists block templates together with their days, exercises and prescribed sets.
type blockRepository interface {
	// Get returns ErrNotFound for unknown blocks.
	Get(ctx context.Context, id uuid.UUID) (BlockTemplate, error)
	// List returns all blocks, oldest first.
	List(ctx context.Context) ([]BlockTemplate, error)
	Create(ctx context.Context, block BlockTemplate) error
	// Update stores the block modified by updateFn when it reports a change.
	Update(ctx context.Context, id uuid.UUID, updateFn func(block *BlockTemplate) (bool, error)) error
	// Delete removes the block and everything it owns. Sessions generated from it are kept.
	Delete(ctx context.Context, id uuid.UUID) error
}

// sessionRepository persists workout sessions together with their exercises and sets.
type sessionRepository interface {
	// Find looks up the session of a (block, week, day) triple and returns ErrNotFound when none exists.
	Find(ctx context.Context, blockID uuid.UUID, week int, dayID uuid.UUID) (WorkoutSession, error)
	Get(ctx context.Context, id uuid.UUID) (WorkoutSession, error)
	// ListByBlock returns the block's sessions ordered by week and then by the day order of the block.
	ListByBlock(ctx context.Context, blockID uuid.UUID) ([]WorkoutSession, error)
	// Save inserts sessions whose triple is not stored yet and reports how many were inserted.
	Save(ctx context.Context, sessions []WorkoutSession) (int, error)
	Update(ctx context.Context, id uuid.UUID, updateFn func(sess *WorkoutSession) (bool, error)) error
}

// repositoryFactory creates repository instances.
type repositoryFactory struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newRepositoryFactory(db *sqlite.Database, logger *slog.Logger) *repositoryFactory {
	return &repositoryFactory{
		db:     db,
		logger: logger,
	}
}

func (f *repositoryFactory) newRepository() *repository {
	return &repository{
		blocks:   newSQLiteBlockRepository(f.db, f.logger),
		sessions: newSQLiteSessionRepository(f.db, f.logger),
	}
}

// baseRepository holds the database handle and logger shared by the SQLite repositories.
type baseRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func newBaseRepository(db *sqlite.Database, logger *slog.Logger) baseRepository {
	return baseRepository{db: db, logger: logger}
}

// formatTimestamp converts an optional time into a nullable database value.
func formatTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timestampFormat)
}

// parseTimestamp parses a timestamp from a nullable database string.
func parseTimestamp(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil //nolint:nilnil // NULL maps to a nil time.
	}
	t, err := time.Parse(timestampFormat, s.String)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	return &t, nil
}

// queryer is implemented by *sql.DB and *sql.Tx so that reads can join a write transaction.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
