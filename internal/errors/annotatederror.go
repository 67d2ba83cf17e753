// Package errors wraps the standard library errors package with errors that carry slog attributes and the
// source location where they were created, so that failures surfacing at the command boundary can be logged
// with their full context.
package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
)

// annotatedError is an error with a message, structured annotations, and the location where it was raised.
type annotatedError struct {
	msg         string
	cause       error
	annotations []slog.Attr
	source      string
}

func (e *annotatedError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return e.msg + ": " + e.cause.Error()
}

func (e *annotatedError) Unwrap() error {
	return e.cause
}

// New returns an error with the caller's location attached. Use it for one-off failures.
func New(msg string, attrs ...slog.Attr) error {
	return &annotatedError{msg: msg, cause: nil, annotations: attrs, source: callerSource(1)}
}

// NewSentinel returns a comparable error without location info meant to be declared at package level.
func NewSentinel(msg string) error {
	return errors.New(msg) //nolint:err113 // this is the sentinel constructor.
}

// Wrap annotates err with msg and attrs. The location of the call to Wrap is recorded.
//
// Wrapping a nil error returns an error containing only msg so that a misplaced Wrap never hides a failure.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	return &annotatedError{msg: msg, cause: err, annotations: attrs, source: callerSource(1)}
}

// DecoratePanic converts a recovered panic value into an error pointing to where the panic happened.
// Returns nil when recovered is nil.
func DecoratePanic(recovered any) error {
	if recovered == nil {
		return nil
	}
	var cause error
	if err, ok := recovered.(error); ok {
		cause = err
	} else {
		cause = fmt.Errorf("%v", recovered) //nolint:err113 // panic value.
	}
	return &annotatedError{msg: "panic", cause: cause, annotations: nil, source: panicSource()}
}

// SlogError returns a slog group attribute describing err, its annotations collected through the whole chain,
// and the innermost known source location.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.Group("error", slog.String("message", "<nil>"))
	}

	var (
		annotations []any
		source      string
	)
	walk(err, func(ae *annotatedError) {
		for _, a := range ae.annotations {
			annotations = append(annotations, a)
		}
		if ae.source != "" {
			source = ae.source
		}
	})

	attrs := []any{slog.String("message", err.Error())}
	if len(annotations) > 0 {
		attrs = append(attrs, slog.Group("annotations", annotations...))
	}
	if source != "" {
		attrs = append(attrs, slog.String("source", source))
	}
	return slog.Group("error", attrs...)
}

// walk visits all annotated errors in the tree of err, outermost first.
func walk(err error, visit func(*annotatedError)) {
	if err == nil {
		return
	}
	if ae, ok := err.(*annotatedError); ok { //nolint:errorlint // we walk the chain manually.
		visit(ae)
	}
	switch x := err.(type) { //nolint:errorlint // we walk the chain manually.
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			walk(inner, visit)
		}
	case interface{ Unwrap() error }:
		walk(x.Unwrap(), visit)
	}
}

func callerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// panicSource finds the first frame after runtime.gopanic, which is where panic was called.
func panicSource() string {
	const maxDepth = 32
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(2, pcs) //nolint:mnd // skip runtime.Callers and panicSource.
	frames := runtime.CallersFrames(pcs[:n])
	sawPanic := false
	for {
		frame, more := frames.Next()
		if sawPanic && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
		if frame.Function == "runtime.gopanic" {
			sawPanic = true
		}
		if !more {
			return ""
		}
	}
}

// Is reports whether any error in err's tree matches target. See [errors.Is].
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target. See [errors.As].
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err. See [errors.Unwrap].
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join returns an error that wraps the given errors. See [errors.Join].
func Join(errs ...error) error {
	return errors.Join(errs...)
}
