// Package flightrecorder keeps a rolling execution trace while a command runs and writes it to disk when the
// command turns out to be slow.
package flightrecorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/trace"
	"time"
)

const (
	// defaultMinAge is the minimum age of trace events to keep.
	defaultMinAge = time.Minute

	// defaultMaxBytes is the maximum size of the trace buffer.
	defaultMaxBytes = 16 * 1024 * 1024 // 16MB
)

// Recorder records the execution trace of a single command.
type Recorder struct {
	logger          *slog.Logger
	flightRecorder  *trace.FlightRecorder
	tracesDirectory string
	threshold       time.Duration
	started         time.Time
}

// Config configures the recorder.
type Config struct {
	Logger          *slog.Logger
	MinAge          time.Duration // Minimum age of trace events
	MaxBytes        uint64        // Maximum size of trace buffer
	TracesDirectory string        // Directory where trace files are written
	Threshold       time.Duration // Commands running at least this long are captured
}

// New creates a recorder. The traces directory is created if it does not exist.
func New(cfg Config) (*Recorder, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	if cfg.TracesDirectory == "" {
		return nil, errors.New("traces directory is required")
	}

	if stat, err := os.Stat(cfg.TracesDirectory); err != nil {
		if err = os.MkdirAll(cfg.TracesDirectory, 0o750); err != nil { //nolint:mnd // owner and group.
			return nil, fmt.Errorf("create traces directory: %w", err)
		}
	} else if !stat.IsDir() {
		return nil, fmt.Errorf("traces path is not a directory: %s", cfg.TracesDirectory)
	}

	minAge := cfg.MinAge
	if minAge == 0 {
		minAge = defaultMinAge
	}

	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = defaultMaxBytes
	}

	flightRecorder := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   minAge,
		MaxBytes: maxBytes,
	})
	if flightRecorder == nil {
		return nil, errors.New("failed to create flight recorder")
	}

	return &Recorder{
		logger:          cfg.Logger,
		flightRecorder:  flightRecorder,
		tracesDirectory: cfg.TracesDirectory,
		threshold:       cfg.Threshold,
		started:         time.Time{},
	}, nil
}

// Start begins flight recording. Only one recorder can be active in a process.
func (r *Recorder) Start(ctx context.Context) error {
	if err := r.flightRecorder.Start(); err != nil {
		return fmt.Errorf("start flight recorder: %w", err)
	}
	r.started = time.Now()

	r.logger.LogAttrs(ctx, slog.LevelDebug, "flight recorder started",
		slog.Duration("threshold", r.threshold))

	return nil
}

// Stop ends flight recording.
func (r *Recorder) Stop(ctx context.Context) {
	r.flightRecorder.Stop()

	r.logger.LogAttrs(ctx, slog.LevelDebug, "flight recorder stopped")
}

// CaptureIfSlow writes the trace of command when it has been running for at least the threshold. It returns the
// path of the trace file or an empty string when the command was fast enough.
func (r *Recorder) CaptureIfSlow(ctx context.Context, command string) (string, error) {
	elapsed := time.Since(r.started)
	if elapsed < r.threshold {
		return "", nil
	}

	timestamp := time.Now().UTC().Format("20060102-150405")
	fPath := filepath.Join(r.tracesDirectory, fmt.Sprintf("slow-%s-%s.trace", command, timestamp))
	n, err := r.writeTrace(fPath)
	if err != nil {
		return "", err
	}

	r.logger.LogAttrs(ctx, slog.LevelWarn, "captured slow command trace",
		slog.String("command", command),
		slog.Duration("elapsed", elapsed),
		slog.String("file", fPath),
		slog.Int64("bytes", n))
	return fPath, nil
}

func (r *Recorder) writeTrace(fPath string) (_ int64, err error) {
	file, err := os.Create(fPath)
	if err != nil {
		return 0, fmt.Errorf("create trace file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close trace file: %w", closeErr))
		}
	}()

	n, err := r.flightRecorder.WriteTo(file)
	if err != nil {
		return 0, fmt.Errorf("write trace: %w", err)
	}
	return n, nil
}
