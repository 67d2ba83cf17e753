package errors_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"testing"

	"github.com/myrjola/blockplan/internal/errors"
	"github.com/myrjola/blockplan/internal/testhelpers"
)

var errRoot = errors.NewSentinel("block not found")

func TestWrap_Error(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "sentinel",
			err:  errRoot,
			want: "block not found",
		},
		{
			name: "wrapped once",
			err:  errors.Wrap(errRoot, "load block", slog.String("block_id", "abc")),
			want: "load block: block not found",
		},
		{
			name: "wrapped twice",
			err:  errors.Wrap(errors.Wrap(errRoot, "load block"), "show block"),
			want: "show block: load block: block not found",
		},
		{
			name: "wrapped nil",
			err:  errors.Wrap(nil, "nothing underneath"),
			want: "nothing underneath",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrap_IsAndAs(t *testing.T) {
	wrapped := errors.Wrap(fmt.Errorf("query: %w", errRoot), "load block")
	if !errors.Is(wrapped, errRoot) {
		t.Error("expected wrapped error to match sentinel")
	}
	if errors.Is(wrapped, errors.NewSentinel("block not found")) {
		t.Error("expected distinct sentinels with equal text not to match")
	}

	target := &parseError{field: "Days[0].name"}
	var got *parseError
	if !errors.As(errors.Wrap(target, "import"), &got) {
		t.Fatal("As() = false, want true")
	}
	if got != target {
		t.Errorf("As() target = %v, want %v", got, target)
	}
	if errors.Unwrap(errRoot) != nil {
		t.Error("expected sentinel to have nothing to unwrap")
	}
}

func TestSlogError(t *testing.T) {
	_, _, line, _ := runtime.Caller(0)
	err := errors.Wrap(errRoot, "load block", slog.String("block_id", "abc"), slog.Int("week", 3))

	var buf bytes.Buffer
	logger := testhelpers.NewLogger(&buf)
	logger.Info("failed", errors.SlogError(err))
	logLine := buf.String()

	for _, want := range []string{
		"error.message=\"load block: block not found\"",
		"error.annotations.block_id=abc",
		"error.annotations.week=3",
		fmt.Sprintf("annotatederror_test.go:%d", line+1),
	} {
		if !strings.Contains(logLine, want) {
			t.Errorf("expected log line %q to contain %q", logLine, want)
		}
	}
	if strings.Contains(logLine, "annotatederror.go") {
		t.Errorf("expected log line %q not to point into the errors package", logLine)
	}

	// Odd inputs must not panic.
	errors.SlogError(nil)
	errors.SlogError(errors.Join(nil, errRoot, errors.New("other")))
	errors.SlogError(errors.Wrap(errors.Join(nil, nil), "empty join"))
}

func TestDecoratePanic(t *testing.T) {
	var line int
	defer func() {
		err := errors.DecoratePanic(recover())
		if err == nil {
			t.Fatal("expected error")
		}
		if got, want := err.Error(), "panic: boom"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
		want := fmt.Sprintf("annotatederror_test.go:%d", line+1)
		if got := errors.SlogError(err).String(); !strings.Contains(got, want) {
			t.Errorf("expected %q to contain %q", got, want)
		}
	}()
	_, _, line, _ = runtime.Caller(0)
	panic("boom")
}

func TestDecoratePanic_Nil(t *testing.T) {
	if err := errors.DecoratePanic(nil); err != nil {
		t.Errorf("DecoratePanic(nil) = %v, want nil", err)
	}
}

type parseError struct {
	field string
}

func (e *parseError) Error() string {
	return "invalid " + e.field
}
