// Package testutil provides shared test helpers and fixtures.
package testutil

import (
	"fmt"
	"sync"
	"testing"

	"github.com/banshee-data/trackrunner/internal/monitoring"
)

// MuteLogs silences monitoring.Logf for the duration of the test.
func MuteLogs(t testing.TB) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(original) })
}

// LogRecorder collects formatted log lines.
type LogRecorder struct {
	mu    sync.Mutex
	lines []string
}

// Lines returns the lines logged so far.
func (r *LogRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *LogRecorder) logf(format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

// CaptureLogs redirects monitoring.Logf into a recorder for the duration
// of the test.
func CaptureLogs(t testing.TB) *LogRecorder {
	t.Helper()
	original := monitoring.Logf
	rec := &LogRecorder{}
	monitoring.SetLogger(rec.logf)
	t.Cleanup(func() { monitoring.SetLogger(original) })
	return rec
}
