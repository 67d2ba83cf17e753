// Package testhelpers contains helpers shared by tests across packages.
package testhelpers

import (
	"io"
	"strings"
	"sync"
	"testing"
)

// Writer implements io.Writer and writes to t.Log so that logs only show up for failed tests.
type Writer struct {
	t    testing.TB
	mu   sync.Mutex
	done bool
}

// NewWriter creates a Writer bound to the lifetime of t.
func NewWriter(t testing.TB) io.Writer {
	w := &Writer{t: t, mu: sync.Mutex{}, done: false}
	t.Cleanup(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.done = true
	})
	return w
}

// Write logs p without its trailing newline. Writes after the test finished are dropped because background
// goroutines such as the database optimizer may still be logging during shutdown.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return len(p), nil
	}
	if output := strings.TrimSuffix(string(p), "\n"); output != "" {
		w.t.Log(output)
	}
	return len(p), nil
}
