// ABOUTME: Error sink interface for reporting failures from any goroutine
// ABOUTME: Provides a slog-backed sink and a collecting sink for tests

package sink

import (
	"log/slog"
	"sync"
)

// Sink receives non-fatal errors from the acquisition, dispatch, and job
// loops. Implementations must be safe for concurrent use and must not block
// significantly: Report is called from hot loops that may never stall.
type Sink interface {
	Report(scope string, err error)
}

// LogSink reports errors through a slog.Logger. Severity follows the fault
// kind: acquisition failures are transient and log at Warn, everything else
// at Error. Invariant violations additionally carry an invariant attribute
// so they can be alerted on.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. Pass nil for the default logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "sink")}
}

// Report logs the error with its scope and fault kind.
func (s *LogSink) Report(scope string, err error) {
	kind := KindOf(err)
	attrs := []any{"scope", scope, "kind", kind.String(), "error", err}

	switch kind {
	case KindAcquisition:
		s.logger.Warn("acquisition failure", attrs...)
	case KindStateConflict:
		attrs = append(attrs, "invariant_violation", true)
		s.logger.Error("state conflict", attrs...)
	default:
		s.logger.Error("handler failure", attrs...)
	}
}

// Report is one captured error with its scope.
type Report struct {
	Scope string
	Err   error
}

// Collect is a Sink that records every report for later inspection.
// Used by tests across packages.
type Collect struct {
	mu      sync.Mutex
	reports []Report
}

// NewCollect creates an empty collecting sink.
func NewCollect() *Collect {
	return &Collect{}
}

// Report records the error.
func (c *Collect) Report(scope string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, Report{Scope: scope, Err: err})
}

// Reports returns a copy of everything reported so far.
func (c *Collect) Reports() []Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Report, len(c.reports))
	copy(out, c.reports)
	return out
}

// Count returns the number of reports.
func (c *Collect) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}
