// ABOUTME: Tests for the polling event source
// ABOUTME: Covers failure retry, batch ordering rejection, and cursor persistence

package source

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candourhq/courier/internal/event"
	"github.com/candourhq/courier/internal/queue"
	"github.com/candourhq/courier/internal/sink"
)

// scriptFetcher replays a fixed sequence of fetch results, then blocks until
// the context is cancelled.
type scriptFetcher struct {
	mu      sync.Mutex
	script  []fetchResult
	cursors []int64
}

type fetchResult struct {
	batch []event.Event
	err   error
}

func (f *scriptFetcher) Fetch(ctx context.Context, cursor int64, _ time.Duration) ([]event.Event, error) {
	f.mu.Lock()
	f.cursors = append(f.cursors, cursor)
	if len(f.script) == 0 {
		f.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := f.script[0]
	f.script = f.script[1:]
	f.mu.Unlock()
	return r.batch, r.err
}

func (f *scriptFetcher) seenCursors() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.cursors))
	copy(out, f.cursors)
	return out
}

// memCursor is an in-memory CursorStore.
type memCursor struct {
	mu  sync.Mutex
	pos int64
}

func (m *memCursor) SaveCursor(_ context.Context, position int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = position
	return nil
}

func (m *memCursor) LoadCursor(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos, nil
}

func batchOf(seqs ...int64) []event.Event {
	out := make([]event.Event, len(seqs))
	for i, s := range seqs {
		out[i] = event.Event{Seq: s, Key: event.Key{ChatID: 1}}
	}
	return out
}

// runPoller runs the poller until the script is exhausted (the fetcher blocks,
// so cancellation after draining n events is deterministic).
func runPoller(t *testing.T, p *Poller, q *queue.Queue, want int) []*event.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	var got []*event.Event
	for len(got) < want {
		ev, ok := q.Get(ctx)
		require.True(t, ok, "queue drained after %d of %d events", len(got), want)
		got = append(got, ev)
	}
	cancel()
	<-done
	return got
}

func TestPoller_DeliversBatches(t *testing.T) {
	q := queue.New()
	s := sink.NewCollect()
	fetcher := &scriptFetcher{script: []fetchResult{
		{batch: batchOf(1, 2, 3)},
		{batch: nil}, // empty long poll
		{batch: batchOf(4, 5)},
	}}

	p := NewPoller(PollerConfig{Fetcher: fetcher, Queue: q, Sink: s, BackoffBase: time.Millisecond})
	got := runPoller(t, p, q, 5)

	for i, ev := range got {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.False(t, ev.ReceivedAt.IsZero())
	}
	assert.Equal(t, int64(6), p.Cursor())
	assert.Zero(t, s.Count())
}

func TestPoller_RetriesTransientFailures(t *testing.T) {
	q := queue.New()
	s := sink.NewCollect()
	fetcher := &scriptFetcher{script: []fetchResult{
		{err: fmt.Errorf("connection refused")},
		{err: fmt.Errorf("connection refused")},
		{err: fmt.Errorf("connection refused")},
		{batch: batchOf(1, 2)},
	}}

	p := NewPoller(PollerConfig{Fetcher: fetcher, Queue: q, Sink: s, BackoffBase: time.Millisecond, BackoffCap: 4 * time.Millisecond})
	got := runPoller(t, p, q, 2)

	// Three acquisition faults reported, then the batch landed anyway
	require.Len(t, got, 2)
	assert.Equal(t, 3, s.Count())
	for _, r := range s.Reports() {
		assert.Equal(t, sink.KindAcquisition, sink.KindOf(r.Err))
	}
}

func TestPoller_RejectsOutOfOrderBatch(t *testing.T) {
	q := queue.New()
	s := sink.NewCollect()
	fetcher := &scriptFetcher{script: []fetchResult{
		{batch: batchOf(1, 2)},
		{batch: batchOf(2, 3)}, // overlaps the accepted prefix
		{batch: batchOf(3, 4)},
	}}

	p := NewPoller(PollerConfig{Fetcher: fetcher, Queue: q, Sink: s, BackoffBase: time.Millisecond})
	got := runPoller(t, p, q, 4)

	// The bad batch was dropped whole: nothing from it reached the queue
	// and the cursor never moved backward.
	var seqs []int64
	for _, ev := range got {
		seqs = append(seqs, ev.Seq)
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, seqs)
	assert.Equal(t, int64(5), p.Cursor())

	require.Equal(t, 1, s.Count())
	assert.Equal(t, sink.KindAcquisition, sink.KindOf(s.Reports()[0].Err))
}

func TestPoller_RejectsInternallyUnorderedBatch(t *testing.T) {
	q := queue.New()
	s := sink.NewCollect()
	fetcher := &scriptFetcher{script: []fetchResult{
		{batch: batchOf(2, 1)},
		{batch: batchOf(1)},
	}}

	p := NewPoller(PollerConfig{Fetcher: fetcher, Queue: q, Sink: s, BackoffBase: time.Millisecond})
	got := runPoller(t, p, q, 1)

	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, 1, s.Count())
}

func TestPoller_PersistsCursor(t *testing.T) {
	q := queue.New()
	store := &memCursor{}
	fetcher := &scriptFetcher{script: []fetchResult{
		{batch: batchOf(10, 11)},
	}}

	p := NewPoller(PollerConfig{Fetcher: fetcher, Queue: q, Cursor: store})
	runPoller(t, p, q, 2)

	pos, err := store.LoadCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), pos)
}

func TestPoller_RestoresCursor(t *testing.T) {
	q := queue.New()
	store := &memCursor{pos: 42}
	fetcher := &scriptFetcher{}

	p := NewPoller(PollerConfig{Fetcher: fetcher, Queue: q, Cursor: store})
	assert.Equal(t, int64(42), p.Cursor())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	// The restored position is what the first fetch asks for
	require.Eventually(t, func() bool {
		return len(fetcher.seenCursors()) > 0
	}, time.Second, time.Millisecond)
	assert.Equal(t, int64(42), fetcher.seenCursors()[0])

	cancel()
	<-done
}

func TestPoller_StopsOnCancel(t *testing.T) {
	q := queue.New()
	fetcher := &scriptFetcher{}
	p := NewPoller(PollerConfig{Fetcher: fetcher, Queue: q})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}
}

func TestCheckSequence(t *testing.T) {
	tests := []struct {
		name    string
		lastSeq int64
		batch   []event.Event
		wantErr bool
	}{
		{"empty", 0, nil, false},
		{"increasing", 0, batchOf(1, 2, 3), false},
		{"gap is fine", 5, batchOf(10, 20), false},
		{"duplicate of last", 3, batchOf(3), true},
		{"behind last", 3, batchOf(2), true},
		{"internal duplicate", 0, batchOf(1, 1), true},
		{"internal regression", 0, batchOf(1, 3, 2), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSequence(tt.lastSeq, tt.batch)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
