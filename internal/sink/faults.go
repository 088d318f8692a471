// ABOUTME: Fault taxonomy for errors surfaced through the sink
// ABOUTME: Classifies acquisition, predicate, action, job, and state-conflict failures

package sink

import (
	"errors"
	"fmt"
)

// Kind classifies a fault surfaced through the sink.
type Kind int

const (
	// KindUnknown is an unclassified error.
	KindUnknown Kind = iota

	// KindAcquisition is a network or API failure while fetching events.
	// Retried with backoff, never fatal to the polling loop.
	KindAcquisition

	// KindPredicate is a handler predicate that panicked. Treated as a
	// non-match for that entry only.
	KindPredicate

	// KindAction is a handler or job callable that returned an error or
	// panicked. No state transition is applied.
	KindAction

	// KindStateConflict is a transition attempted on a released lane. Per-key
	// serialization makes this unreachable in correct code; if seen it is a
	// programming-invariant violation.
	KindStateConflict

	// KindShutdown is a failure to stop within the grace period.
	KindShutdown
)

// String returns the kind's wire/log name.
func (k Kind) String() string {
	switch k {
	case KindAcquisition:
		return "acquisition"
	case KindPredicate:
		return "predicate"
	case KindAction:
		return "action"
	case KindStateConflict:
		return "state_conflict"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Fault wraps an error with its kind. Sinks and tests classify reports via
// KindOf without depending on the producing package.
type Fault struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (f *Fault) Unwrap() error {
	return f.Err
}

// Acquisition wraps err as an acquisition fault.
func Acquisition(err error) *Fault {
	return &Fault{Kind: KindAcquisition, Err: err}
}

// Predicate wraps err as a predicate fault.
func Predicate(err error) *Fault {
	return &Fault{Kind: KindPredicate, Err: err}
}

// Action wraps err as an action fault.
func Action(err error) *Fault {
	return &Fault{Kind: KindAction, Err: err}
}

// StateConflict wraps err as an invariant-violation fault.
func StateConflict(err error) *Fault {
	return &Fault{Kind: KindStateConflict, Err: err}
}

// Shutdown wraps err as a shutdown fault.
func Shutdown(err error) *Fault {
	return &Fault{Kind: KindShutdown, Err: err}
}

// KindOf returns the fault kind of err, or KindUnknown if err carries none.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}
