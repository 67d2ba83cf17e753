package workout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/blockplan/internal/logging"
	"github.com/myrjola/blockplan/internal/sqlite"
	"golang.org/x/sync/errgroup"
)

// BlockAuthor drafts blocks from a free-text prompt and returns them in the authored JSON format.
type BlockAuthor interface {
	AuthorBlock(ctx context.Context, prompt string) ([]byte, error)
}

// progressConcurrency limits the blocks whose sessions are loaded at the same time by Progress.
const progressConcurrency = 4

// Service handles the business logic for planning blocks and logging their sessions.
type Service struct {
	repo   *repository
	db     *sqlite.Database
	logger *slog.Logger
	author BlockAuthor
	// sessionMu serializes the lookup and creation of sessions so that a triple is only ever created once.
	sessionMu sync.Mutex
	now       func() time.Time
}

// NewService creates a new workout service. A nil author disables AI block generation.
func NewService(db *sqlite.Database, logger *slog.Logger, author BlockAuthor) *Service {
	factory := newRepositoryFactory(db, logger)
	return &Service{
		repo:      factory.newRepository(),
		db:        db,
		logger:    logger,
		author:    author,
		sessionMu: sync.Mutex{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SessionDetail is a session together with the display names of its exercises.
type SessionDetail struct {
	Session   WorkoutSession
	Exercises []ResolvedExercise
	// BlockDeleted is set when the block the session was generated from no longer exists.
	BlockDeleted bool
}

// BlockProgress pairs a block with its metrics.
type BlockProgress struct {
	Block   BlockTemplate
	Metrics BlockMetrics
}

// CreateBlock validates and stores a new block. Missing identity and creation time are filled in.
func (s *Service) CreateBlock(ctx context.Context, block BlockTemplate) (BlockTemplate, error) {
	if block.ID == uuid.Nil {
		block.ID = uuid.New()
	}
	if block.CreatedAt.IsZero() {
		block.CreatedAt = s.now()
	}
	if err := block.Validate(); err != nil {
		return BlockTemplate{}, err
	}
	if err := s.repo.blocks.Create(ctx, block); err != nil {
		return BlockTemplate{}, fmt.Errorf("create block: %w", err)
	}
	ctx = logging.WithAttrs(ctx, slog.String("block_id", block.ID.String()))
	s.logger.LogAttrs(ctx, slog.LevelInfo, "created block",
		slog.String("name", block.Name), slog.Int("weeks", block.NumberOfWeeks), slog.Int("days", len(block.Days)))
	return block, nil
}

// ImportBlockFile loads a YAML, TOML or JSON template file and stores it as a new block.
func (s *Service) ImportBlockFile(ctx context.Context, path string) (BlockTemplate, error) {
	block, err := LoadTemplateFile(path)
	if err != nil {
		return BlockTemplate{}, fmt.Errorf("load template file: %w", err)
	}
	return s.CreateBlock(ctx, block)
}

// GenerateBlock asks the configured author for a block and stores it.
func (s *Service) GenerateBlock(ctx context.Context, prompt string) (BlockTemplate, error) {
	if s.author == nil {
		return BlockTemplate{}, ErrAuthoringDisabled
	}
	data, err := s.author.AuthorBlock(ctx, prompt)
	if err != nil {
		return BlockTemplate{}, fmt.Errorf("author block: %w", err)
	}
	block, err := TemplateFromAuthored(data)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "authored block rejected",
			slog.String("error", err.Error()), slog.Int("bytes", len(data)))
		return BlockTemplate{}, fmt.Errorf("convert authored block: %w", err)
	}
	return s.CreateBlock(ctx, block)
}

// GetBlock returns the block or ErrNotFound.
func (s *Service) GetBlock(ctx context.Context, id uuid.UUID) (BlockTemplate, error) {
	block, err := s.repo.blocks.Get(ctx, id)
	if err != nil {
		return BlockTemplate{}, fmt.Errorf("get block %s: %w", id, err)
	}
	return block, nil
}

// ListBlocks returns all blocks, oldest first.
func (s *Service) ListBlocks(ctx context.Context) ([]BlockTemplate, error) {
	blocks, err := s.repo.blocks.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	return blocks, nil
}

// UpdateBlock replaces the stored block with the same ID. The creation time is kept. Sessions already generated
// are left alone until RefreshSessions is called.
func (s *Service) UpdateBlock(ctx context.Context, block BlockTemplate) error {
	if err := block.Validate(); err != nil {
		return err
	}
	err := s.repo.blocks.Update(ctx, block.ID, func(stored *BlockTemplate) (bool, error) {
		block.CreatedAt = stored.CreatedAt
		*stored = block
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("update block %s: %w", block.ID, err)
	}
	return nil
}

// DeleteBlock removes the block. Its sessions are kept and fall back to their snapshots.
func (s *Service) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.blocks.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete block %s: %w", id, err)
	}
	ctx = logging.WithAttrs(ctx, slog.String("block_id", id.String()))
	s.logger.LogAttrs(ctx, slog.LevelInfo, "deleted block")
	return nil
}

// Unified returns the display shape of a stored block.
func (s *Service) Unified(ctx context.Context, blockID uuid.UUID) (UnifiedBlock, error) {
	block, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return UnifiedBlock{}, err
	}
	return Normalize(NativeSource{Block: block})
}

// EnsureSessions generates every session of the block and stores the ones that do not exist yet. It reports the
// number of sessions created, so calling it again returns 0.
func (s *Service) EnsureSessions(ctx context.Context, blockID uuid.UUID) (int, error) {
	block, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return 0, err
	}

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	created, err := s.repo.sessions.Save(ctx, MakeSessions(block))
	if err != nil {
		return 0, fmt.Errorf("save sessions: %w", err)
	}
	ctx = logging.WithAttrs(ctx, slog.String("block_id", blockID.String()))
	s.logger.LogAttrs(ctx, slog.LevelDebug, "ensured sessions", slog.Int("created", created))
	return created, nil
}

// OpenSession returns the session of a (block, week, day) triple, creating it on first use. The first open also
// dates the session.
func (s *Service) OpenSession(ctx context.Context, blockID uuid.UUID, week int, dayID uuid.UUID) (WorkoutSession, error) {
	ctx = logging.WithAttrs(ctx, slog.String("block_id", blockID.String()), slog.Int("week", week))

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	sess, err := s.repo.sessions.Find(ctx, blockID, week, dayID)
	if errors.Is(err, ErrNotFound) {
		sess, err = s.createSession(ctx, blockID, week, dayID)
	}
	if err != nil {
		return WorkoutSession{}, fmt.Errorf("find session: %w", err)
	}
	if sess.Date != nil {
		return sess, nil
	}

	err = s.repo.sessions.Update(ctx, sess.ID, func(stored *WorkoutSession) (bool, error) {
		if stored.Date != nil {
			return false, nil
		}
		now := s.now()
		stored.Date = &now
		return true, nil
	})
	if err != nil {
		return WorkoutSession{}, fmt.Errorf("date session: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "opened session", slog.String("session_id", sess.ID.String()))
	return s.repo.sessions.Get(ctx, sess.ID)
}

// createSession must be called with sessionMu held.
func (s *Service) createSession(ctx context.Context, blockID uuid.UUID, week int, dayID uuid.UUID) (WorkoutSession, error) {
	block, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return WorkoutSession{}, err
	}
	sess, ok := MakeSession(block, week, dayID)
	if !ok {
		return WorkoutSession{}, fmt.Errorf("week %d day %s not in block: %w", week, dayID, ErrNotFound)
	}
	if _, err = s.repo.sessions.Save(ctx, []WorkoutSession{sess}); err != nil {
		return WorkoutSession{}, fmt.Errorf("save session: %w", err)
	}
	// Another process may have stored the triple first.
	return s.repo.sessions.Find(ctx, blockID, week, dayID)
}

// GetSession returns the session with its exercises resolved against the block it was generated from.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (SessionDetail, error) {
	sess, err := s.repo.sessions.Get(ctx, id)
	if err != nil {
		return SessionDetail{}, fmt.Errorf("get session %s: %w", id, err)
	}
	var block *BlockTemplate
	b, err := s.repo.blocks.Get(ctx, sess.BlockID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return SessionDetail{}, fmt.Errorf("get block %s: %w", sess.BlockID, err)
	default:
		block = &b
	}
	return SessionDetail{
		Session:      sess,
		Exercises:    ResolveSession(block, sess),
		BlockDeleted: block == nil,
	}, nil
}

// ListSessions returns the stored sessions of a block ordered by week. Sessions of deleted blocks are included.
func (s *Service) ListSessions(ctx context.Context, blockID uuid.UUID) ([]WorkoutSession, error) {
	sessions, err := s.repo.sessions.ListByBlock(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// LogSet records the actual values of a set. A session that has not been started moves to in progress.
func (s *Service) LogSet(
	ctx context.Context,
	sessionID uuid.UUID,
	exerciseIndex, setIndex int,
	values SetValues,
) error {
	err := s.repo.sessions.Update(ctx, sessionID, func(sess *WorkoutSession) (bool, error) {
		set, err := findSet(sess, exerciseIndex, setIndex)
		if err != nil {
			return false, err
		}
		set.Log(values)
		startSession(sess)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("log set: %w", err)
	}
	return nil
}

// SetCompleted flags or reopens a set. A session that has not been started moves to in progress.
func (s *Service) SetCompleted(
	ctx context.Context,
	sessionID uuid.UUID,
	exerciseIndex, setIndex int,
	completed bool,
) error {
	err := s.repo.sessions.Update(ctx, sessionID, func(sess *WorkoutSession) (bool, error) {
		set, err := findSet(sess, exerciseIndex, setIndex)
		if err != nil {
			return false, err
		}
		if set.Completed == completed {
			return false, nil
		}
		set.MarkCompleted(completed, s.now())
		startSession(sess)
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("set completed: %w", err)
	}
	return nil
}

// SetSessionStatus stores the status chosen by the logging workflow.
func (s *Service) SetSessionStatus(ctx context.Context, sessionID uuid.UUID, status SessionStatus) error {
	switch status {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
	default:
		return fmt.Errorf("unknown session status %q", status)
	}
	err := s.repo.sessions.Update(ctx, sessionID, func(sess *WorkoutSession) (bool, error) {
		if sess.Status == status {
			return false, nil
		}
		sess.Status = status
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("set session status: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "session status changed",
		slog.String("session_id", sessionID.String()), slog.String("status", string(status)))
	return nil
}

// RefreshSessions recomputes the expected sets of the block's sessions that have not been started yet. It
// reports how many sessions were rewritten.
func (s *Service) RefreshSessions(ctx context.Context, blockID uuid.UUID) (int, error) {
	block, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return 0, err
	}
	sessions, err := s.ListSessions(ctx, blockID)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, sess := range sessions {
		// The status is checked on the stored session because it may have been started since it was listed.
		rewritten := false
		err = s.repo.sessions.Update(ctx, sess.ID, func(stored *WorkoutSession) (bool, error) {
			if stored.Status != StatusNotStarted {
				return false, nil
			}
			*stored = RefreshExpected(block, *stored)
			rewritten = true
			return true, nil
		})
		if err != nil {
			return refreshed, fmt.Errorf("refresh session %s: %w", sess.ID, err)
		}
		if rewritten {
			refreshed++
		}
	}
	ctx = logging.WithAttrs(ctx, slog.String("block_id", blockID.String()))
	s.logger.LogAttrs(ctx, slog.LevelInfo, "refreshed sessions", slog.Int("count", refreshed))
	return refreshed, nil
}

// Metrics summarizes the stored sessions of a block.
func (s *Service) Metrics(ctx context.Context, blockID uuid.UUID) (BlockMetrics, error) {
	block, err := s.GetBlock(ctx, blockID)
	if err != nil {
		return BlockMetrics{}, err
	}
	sessions, err := s.ListSessions(ctx, blockID)
	if err != nil {
		return BlockMetrics{}, err
	}
	return Calculate(block, sessions), nil
}

// Progress computes the metrics of every block concurrently. The result is ordered like ListBlocks.
func (s *Service) Progress(ctx context.Context) ([]BlockProgress, error) {
	blocks, err := s.ListBlocks(ctx)
	if err != nil {
		return nil, err
	}

	progress := make([]BlockProgress, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(progressConcurrency)
	for i, block := range blocks {
		g.Go(func() error {
			sessions, listErr := s.repo.sessions.ListByBlock(gctx, block.ID)
			if listErr != nil {
				return fmt.Errorf("list sessions of block %s: %w", block.ID, listErr)
			}
			progress[i] = BlockProgress{Block: block, Metrics: Calculate(block, sessions)}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, fmt.Errorf("compute progress: %w", err)
	}
	return progress, nil
}

// ExportBlock writes the block and its sessions to a standalone SQLite file in dir and returns its path.
func (s *Service) ExportBlock(ctx context.Context, blockID uuid.UUID, dir string) (string, error) {
	path, err := s.db.ExportBlock(ctx, blockID.String(), dir)
	if errors.Is(err, sqlite.ErrNothingToExport) {
		return "", fmt.Errorf("export block %s: %w", blockID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("export block %s: %w", blockID, err)
	}
	return path, nil
}

// findSet locates a set by the exercise position within the session and the set index.
func findSet(sess *WorkoutSession, exerciseIndex, setIndex int) (*SessionSet, error) {
	if exerciseIndex < 0 || exerciseIndex >= len(sess.Exercises) {
		return nil, fmt.Errorf("exercise %d: %w", exerciseIndex, ErrNotFound)
	}
	ex := &sess.Exercises[exerciseIndex]
	for i := range ex.Sets {
		if ex.Sets[i].Index == setIndex {
			return &ex.Sets[i], nil
		}
	}
	return nil, fmt.Errorf("set %d of exercise %d: %w", setIndex, exerciseIndex, ErrNotFound)
}

func startSession(sess *WorkoutSession) {
	if sess.Status == StatusNotStarted {
		sess.Status = StatusInProgress
	}
}
