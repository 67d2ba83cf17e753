// Command stresstest opens the sessions of a large block from many goroutines and several database handles at
// once and verifies that every (week, day) pair ends up with exactly one session.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/blockplan/internal/errors"
	"github.com/myrjola/blockplan/internal/logging"
	"github.com/myrjola/blockplan/internal/ptr"
	"github.com/myrjola/blockplan/internal/sqlite"
	"github.com/myrjola/blockplan/internal/testhelpers"
	"github.com/myrjola/blockplan/internal/workout"
	"golang.org/x/sync/errgroup"
)

const (
	stressWeeks             = 12
	stressDays              = 5
	numServices             = 4  // independent database handles, like separate CLI processes
	openersPerSession       = 3  // concurrent opens of the same (week, day) pair
	maxConcurrentOperations = 16 // errgroup limit
	operationTimeout        = 30 * time.Second
	successRateThreshold    = 100.0
	percentageMultiplier    = 100
	maxExpectedArgs         = 2
)

// stressBlock has enough weeks and days to keep the writers busy.
func stressBlock() workout.BlockTemplate {
	days := make([]workout.DayTemplate, stressDays)
	for d := range days {
		days[d] = workout.DayTemplate{
			ID:        uuid.New(),
			Order:     d,
			Name:      fmt.Sprintf("Day %d", d+1),
			ShortCode: fmt.Sprintf("D%d", d+1),
			Goal:      nil,
			Exercises: []workout.ExerciseTemplate{{
				ID:               uuid.New(),
				Name:             "Squat",
				Kind:             workout.KindStrength,
				Category:         ptr.Ref(workout.CategorySquat),
				ConditioningType: nil,
				Notes:            "",
				StrengthSets: []workout.StrengthSet{
					{Index: 0, Reps: 5, Weight: ptr.Ref(100.0), RPE: nil, RestSeconds: nil},
					{Index: 1, Reps: 5, Weight: ptr.Ref(100.0), RPE: nil, RestSeconds: nil},
				},
				ConditioningSets: nil,
				Progression:      nil,
			}},
		}
	}
	return workout.BlockTemplate{
		ID:            uuid.Nil,
		Name:          "Stress block",
		Goal:          nil,
		NumberOfWeeks: stressWeeks,
		Progression:   workout.ProgressionWeight,
		Days:          days,
		CreatedAt:     time.Time{},
	}
}

type openResult struct {
	week      int
	dayID     uuid.UUID
	sessionID uuid.UUID
}

// OpenSessionsConcurrently opens every session of the block openersPerSession times, spreading the calls over
// the services.
func OpenSessionsConcurrently(
	ctx context.Context,
	services []*workout.Service,
	block workout.BlockTemplate,
	logger *slog.Logger,
) ([]openResult, error) {
	total := block.NumberOfWeeks * len(block.Days) * openersPerSession
	logger.LogAttrs(ctx, slog.LevelInfo, "Opening sessions", slog.Int("operations", total))

	var (
		successCount, failureCount int64
		mu                         sync.Mutex
		results                    = make([]openResult, 0, total)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentOperations)

	i := 0
	for week := 1; week <= block.NumberOfWeeks; week++ {
		for _, day := range block.Days {
			for range openersPerSession {
				svc := services[i%len(services)]
				i++
				g.Go(func() error {
					opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
					defer cancel()

					sess, err := svc.OpenSession(opCtx, block.ID, week, day.ID)
					if err != nil {
						atomic.AddInt64(&failureCount, 1)
						// Keep going so that the success rate covers every operation.
						logger.LogAttrs(opCtx, slog.LevelWarn, "Open failed",
							slog.Int("week", week),
							slog.String("day", day.Name),
							slog.Any("error", err))
						return nil
					}
					atomic.AddInt64(&successCount, 1)
					mu.Lock()
					results = append(results, openResult{week: week, dayID: day.ID, sessionID: sess.ID})
					mu.Unlock()
					return nil
				})
			}
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("open sessions: %w", err)
	}

	successRate := float64(successCount) / float64(total) * percentageMultiplier
	logger.LogAttrs(ctx, slog.LevelInfo, "Opened sessions",
		slog.Int64("successful", successCount),
		slog.Int64("failed", failureCount),
		slog.Float64("success_rate", successRate))

	if successRate < successRateThreshold {
		return nil, fmt.Errorf("success rate %.1f%% below threshold", successRate)
	}
	return results, nil
}

// EnsureSessionsConcurrently races EnsureSessions on every service. The created counts must add up to the
// sessions that did not exist before.
func EnsureSessionsConcurrently(ctx context.Context, services []*workout.Service, blockID uuid.UUID) (int, error) {
	var created int64
	g, ctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			n, err := svc.EnsureSessions(ctx, blockID)
			if err != nil {
				return err
			}
			atomic.AddInt64(&created, int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("ensure sessions: %w", err)
	}
	return int(created), nil
}

// VerifySessions checks that every open of a pair saw the same session and that the block has one session per
// pair.
func VerifySessions(
	ctx context.Context,
	svc *workout.Service,
	block workout.BlockTemplate,
	results []openResult,
) error {
	type pair struct {
		week  int
		dayID uuid.UUID
	}
	seen := make(map[pair]uuid.UUID)
	for _, r := range results {
		p := pair{week: r.week, dayID: r.dayID}
		if id, ok := seen[p]; ok && id != r.sessionID {
			return fmt.Errorf("week %d day %s opened as both %s and %s", r.week, r.dayID, id, r.sessionID)
		}
		seen[p] = r.sessionID
	}

	sessions, err := svc.ListSessions(ctx, block.ID)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	want := block.NumberOfWeeks * len(block.Days)
	if len(sessions) != want {
		return fmt.Errorf("block has %d sessions, want %d", len(sessions), want)
	}
	for _, sess := range sessions {
		if sess.Date == nil {
			return fmt.Errorf("session %s was opened but is not dated", sess.ID)
		}
	}
	return nil
}

func openServices(ctx context.Context, path string, logger *slog.Logger) ([]*workout.Service, func() error, error) {
	var (
		services = make([]*workout.Service, 0, numServices)
		dbs      = make([]*sqlite.Database, 0, numServices)
	)
	closeAll := func() error {
		var errs []error
		for _, db := range dbs {
			errs = append(errs, db.Close())
		}
		return errors.Join(errs...)
	}
	for range numServices {
		db, err := sqlite.NewDatabase(ctx, path, logger)
		if err != nil {
			return nil, nil, errors.Join(fmt.Errorf("open database: %w", err), closeAll())
		}
		dbs = append(dbs, db)
		services = append(services, workout.NewService(db, logger, nil))
	}
	return services, closeAll, nil
}

func run(ctx context.Context, logger *slog.Logger, path string) (err error) {
	start := time.Now()
	ctx = logging.WithAttrs(ctx, slog.String("sqlite", path))

	services, closeAll, err := openServices(ctx, path, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeAll())
	}()

	opened, err := services[0].CreateBlock(ctx, stressBlock())
	if err != nil {
		return fmt.Errorf("create open block: %w", err)
	}
	openStart := time.Now()
	results, err := OpenSessionsConcurrently(ctx, services, opened, logger)
	if err != nil {
		return err
	}
	if err = VerifySessions(ctx, services[0], opened, results); err != nil {
		return err
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "Open sessions verified", slog.Duration("duration", time.Since(openStart)))

	ensured, err := services[0].CreateBlock(ctx, stressBlock())
	if err != nil {
		return fmt.Errorf("create ensure block: %w", err)
	}
	created, err := EnsureSessionsConcurrently(ctx, services, ensured.ID)
	if err != nil {
		return err
	}
	if want := ensured.NumberOfWeeks * len(ensured.Days); created != want {
		return fmt.Errorf("ensure created %d sessions, want %d", created, want)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Stress test completed successfully",
		slog.Duration("total_duration", time.Since(start)),
		slog.Int("ensured_sessions", created))
	return nil
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	ctx := context.Background()

	if len(os.Args) > maxExpectedArgs {
		logger.LogAttrs(ctx, slog.LevelError, "usage: stresstest [sqlite-file]")
		os.Exit(1)
	}

	path := ""
	if len(os.Args) == maxExpectedArgs {
		path = os.Args[1]
	} else {
		dir, err := os.MkdirTemp("", "blockplan-stress")
		if err != nil {
			logger.LogAttrs(ctx, slog.LevelError, "create temp dir", slog.Any("error", err))
			os.Exit(1)
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "stress.sqlite3")
	}

	if err := run(ctx, logger, path); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "stress test failed", errors.SlogError(err))
		os.Exit(1) //nolint:gocritic // the temp dir is left behind for inspection.
	}
}
