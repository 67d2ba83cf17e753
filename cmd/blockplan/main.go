// Command blockplan plans multi-week training blocks and logs their workout sessions.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/myrjola/blockplan/internal/ai"
	"github.com/myrjola/blockplan/internal/envstruct"
	"github.com/myrjola/blockplan/internal/errors"
	"github.com/myrjola/blockplan/internal/flightrecorder"
	"github.com/myrjola/blockplan/internal/logging"
	"github.com/myrjola/blockplan/internal/sqlite"
	"github.com/myrjola/blockplan/internal/workout"
)

var errUsage = errors.NewSentinel("usage")

type application struct {
	logger         *slog.Logger
	cfg            config
	stdout         io.Writer
	db             *sqlite.Database
	workoutService *workout.Service
}

type config struct {
	// SqliteURL is the URL to the SQLite database. You can use ":memory:" for an ethereal in-memory database.
	SqliteURL string `env:"BLOCKPLAN_SQLITE_URL" envDefault:"./blockplan.sqlite3"`
	// OpenAIAPIKey enables generate-ai when set.
	OpenAIAPIKey string `env:"BLOCKPLAN_OPENAI_API_KEY" envDefault:""`
	// OpenAIModel must support structured outputs.
	OpenAIModel string `env:"BLOCKPLAN_OPENAI_MODEL" envDefault:"gpt-4o-2024-08-06"`
	// ExportDir is where export writes block files.
	ExportDir string `env:"BLOCKPLAN_EXPORT_DIR" envDefault:"."`
	// LogLevel is one of debug, info, warn and error. It is read by main before run.
	LogLevel string `env:"BLOCKPLAN_LOG_LEVEL" envDefault:"info"`
	// TraceDir enables execution traces of slow commands when set.
	TraceDir string `env:"BLOCKPLAN_TRACE_DIR" envDefault:""`
	// SlowCommand is how long a command may run before its trace is written to TraceDir.
	SlowCommand time.Duration `env:"BLOCKPLAN_SLOW_COMMAND" envDefault:"2s"`
}

func run(
	ctx context.Context,
	logger *slog.Logger,
	args []string,
	lookupEnv func(string) (string, bool),
	stdout io.Writer,
) (err error) {
	var cancel context.CancelFunc
	ctx, cancel = signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	commands := commandTable()
	if len(args) == 0 || slices.Contains([]string{"help", "-h", "-help", "--help"}, args[0]) {
		printUsage(stdout, commands)
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}
	name, rest := args[0], args[1:]
	cmd, ok := commands[name]
	if !ok {
		printUsage(stdout, commands)
		return errors.Wrap(errUsage, "unknown command", slog.String("command", name))
	}

	var cfg config
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	if cfg.TraceDir != "" {
		var recorder *flightrecorder.Recorder
		if recorder, err = startRecorder(ctx, logger, cfg); err != nil {
			return err
		}
		defer func() {
			if _, traceErr := recorder.CaptureIfSlow(ctx, name); traceErr != nil {
				logger.LogAttrs(ctx, slog.LevelError, "failed to capture trace", errors.SlogError(traceErr))
			}
			recorder.Stop(ctx)
		}()
	}

	db, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open db", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			err = errors.Join(err, errors.Wrap(closeErr, "close db"))
		}
	}()
	logger.LogAttrs(ctx, slog.LevelDebug, "connected to db", slog.String("url", cfg.SqliteURL))

	// A nil author must stay an untyped nil so that the service sees authoring as disabled.
	var author workout.BlockAuthor
	if cfg.OpenAIAPIKey != "" {
		author = ai.NewAuthor(cfg.OpenAIAPIKey, cfg.OpenAIModel, logger)
	}

	app := &application{
		logger:         logger,
		cfg:            cfg,
		stdout:         stdout,
		db:             db,
		workoutService: workout.NewService(db, logger, author),
	}
	if err = cmd.run(app, ctx, rest); err != nil {
		return errors.Wrap(err, name)
	}
	return nil
}

func startRecorder(ctx context.Context, logger *slog.Logger, cfg config) (*flightrecorder.Recorder, error) {
	recorder, err := flightrecorder.New(flightrecorder.Config{
		Logger:          logger,
		MinAge:          0,
		MaxBytes:        0,
		TracesDirectory: cfg.TraceDir,
		Threshold:       cfg.SlowCommand,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new flight recorder")
	}
	if err = recorder.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start flight recorder")
	}
	return recorder, nil
}

func newLogger(w io.Writer, lookupEnv func(string) (string, bool)) (*slog.Logger, error) {
	level := slog.LevelInfo
	if s, ok := lookupEnv("BLOCKPLAN_LOG_LEVEL"); ok && s != "" {
		var err error
		if level, err = logging.ParseLevel(s); err != nil {
			return nil, err
		}
	}
	return logging.NewLogger(w, level), nil
}

func main() {
	ctx := context.Background()
	logger, err := newLogger(os.Stderr, os.LookupEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2) //nolint:mnd // usage error.
	}
	if err = run(ctx, logger, os.Args[1:], os.LookupEnv, os.Stdout); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "command failed", errors.SlogError(err))
		if errors.Is(err, errUsage) {
			os.Exit(2) //nolint:mnd // usage error.
		}
		os.Exit(1)
	}
}
