package workout

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidTemplate = errors.New("invalid block template")
	// ErrAuthoringDisabled is returned by AI generation when no chat completion client is configured.
	ErrAuthoringDisabled = errors.New("ai block authoring not configured")
)

// FormatError reports malformed authored input. Path names the offending field, for example
// Days[0].exercises[2].sets[1].reps.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return "malformed block: " + e.Reason
	}
	return fmt.Sprintf("malformed block at %s: %s", e.Path, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func formatErr(path, reason string) *FormatError {
	return &FormatError{Path: path, Reason: reason, Err: nil}
}
