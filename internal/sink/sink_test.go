// ABOUTME: Tests for the fault taxonomy and error sinks
// ABOUTME: Covers kind classification, unwrapping, and concurrent collection

package sink

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_Classification(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"acquisition", Acquisition(base), KindAcquisition},
		{"predicate", Predicate(base), KindPredicate},
		{"action", Action(base), KindAction},
		{"state conflict", StateConflict(base), KindStateConflict},
		{"shutdown", Shutdown(base), KindShutdown},
		{"plain error", base, KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKindOf_Wrapped(t *testing.T) {
	// Kind survives further wrapping
	err := fmt.Errorf("while polling: %w", Acquisition(errors.New("timeout")))
	assert.Equal(t, KindAcquisition, KindOf(err))
}

func TestFault_Unwrap(t *testing.T) {
	base := errors.New("boom")
	f := Action(base)
	assert.True(t, errors.Is(f, base))
	assert.Contains(t, f.Error(), "action")
	assert.Contains(t, f.Error(), "boom")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "acquisition", KindAcquisition.String())
	assert.Equal(t, "state_conflict", KindStateConflict.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestLogSink_Report(t *testing.T) {
	// Must not panic for any kind, including unclassified errors
	s := NewLogSink(nil)
	s.Report("test", Acquisition(errors.New("net down")))
	s.Report("test", StateConflict(errors.New("impossible")))
	s.Report("test", errors.New("plain"))
}

func TestCollect_Concurrent(t *testing.T) {
	c := NewCollect()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Report("worker", Action(errors.New("x")))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 500, c.Count())
	for _, r := range c.Reports() {
		assert.Equal(t, "worker", r.Scope)
		assert.Equal(t, KindAction, KindOf(r.Err))
	}
}
