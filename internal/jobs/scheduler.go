// ABOUTME: Time-ordered scheduler running deferred and periodic callables
// ABOUTME: A min-heap timer loop submits due jobs to the shared worker pool

package jobs

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/candourhq/courier/internal/dispatch"
	"github.com/candourhq/courier/internal/sink"
)

// Callable is the body of a scheduled job.
type Callable func(ctx context.Context) error

// Job is one scheduled callable. Periodic jobs (interval > 0) are
// reinserted after each run; one-shot jobs are discarded.
type Job struct {
	id       uuid.UUID
	fn       Callable
	next     time.Time
	interval time.Duration
	lastRun  time.Time
	removed  bool
	index    int // heap index, -1 when not queued
}

// ID returns the job's unique identifier.
func (j *Job) ID() uuid.UUID {
	return j.id
}

// jobHeap orders jobs by next run time.
type jobHeap []*Job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].next.Before(h[j].next) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *jobHeap) Push(x interface{}) { j := x.(*Job); j.index = len(*h); *h = append(*h, j) }
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// Scheduler maintains jobs in a min-heap by next run time. A dedicated timer
// loop wakes at the earliest pending run (or when scheduling changes the
// front of the heap) and submits due jobs to the shared worker pool. Job
// errors go to the sink and never stop the loop.
type Scheduler struct {
	mu     sync.Mutex
	heap   jobHeap
	wake   chan struct{}
	pool   *dispatch.Pool
	sink   sink.Sink
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewScheduler creates a scheduler that submits work to pool.
func NewScheduler(pool *dispatch.Pool, s sink.Sink, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		wake:   make(chan struct{}, 1),
		pool:   pool,
		sink:   s,
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
	}
}

// Once schedules fn to run once after delay.
func (s *Scheduler) Once(delay time.Duration, fn Callable) *Job {
	return s.add(fn, s.now().Add(delay), 0)
}

// Repeating schedules fn to run every interval, first after firstDelay.
// When the loop is starved past multiple intervals, missed ticks are skipped:
// at most one execution per wake, with the next run recomputed from now.
func (s *Scheduler) Repeating(interval, firstDelay time.Duration, fn Callable) *Job {
	return s.add(fn, s.now().Add(firstDelay), interval)
}

func (s *Scheduler) add(fn Callable, next time.Time, interval time.Duration) *Job {
	j := &Job{
		id:       uuid.New(),
		fn:       fn,
		next:     next,
		interval: interval,
		index:    -1,
	}

	s.mu.Lock()
	heap.Push(&s.heap, j)
	s.mu.Unlock()

	s.signal()
	s.logger.Debug("job scheduled",
		"job_id", j.id.String(),
		"next_run", next,
		"interval", interval,
	)
	return j
}

// Cancel marks the job removed and drops it from the heap. Idempotent.
func (s *Scheduler) Cancel(j *Job) {
	if j == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.removed {
		return
	}
	j.removed = true
	if j.index >= 0 {
		heap.Remove(&s.heap, j.index)
	}
}

// Len returns the number of pending jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heap)
}

// signal wakes the timer loop; the size-one buffer coalesces bursts.
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the timer loop until ctx is cancelled. Due jobs are submitted
// to the pool; their relative order against pending dispatch events is
// best-effort.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started")
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		wait, ok := s.untilNext()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if ok {
			timer.Reset(wait)
		} else {
			// Nothing pending: sleep until scheduling wakes us.
			timer.Reset(time.Hour)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-s.wake:
		case <-timer.C:
			s.runDue(ctx)
		}
	}
}

// untilNext returns the duration until the earliest pending run.
func (s *Scheduler) untilNext() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.heap) == 0 {
		return 0, false
	}
	wait := s.heap[0].next.Sub(s.now())
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// runDue pops and submits every job whose next run is not after now.
// Periodic jobs are reinserted with next = now + interval, deliberately not
// next + interval, so a starved loop executes once and skips missed ticks.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*Job
	for len(s.heap) > 0 && !s.heap[0].next.After(now) {
		j := heap.Pop(&s.heap).(*Job)
		if j.removed {
			continue
		}
		j.lastRun = now
		due = append(due, j)
		if j.interval > 0 {
			j.next = now.Add(j.interval)
			heap.Push(&s.heap, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.submit(ctx, j)
	}
}

// submit hands one job to the pool with panic containment.
func (s *Scheduler) submit(ctx context.Context, j *Job) {
	submitted := s.pool.Submit(func() {
		if err := s.runJob(ctx, j); err != nil {
			if s.sink != nil {
				s.sink.Report("scheduler", sink.Action(fmt.Errorf("job %s: %w", j.id.String(), err)))
			}
		}
	})
	if !submitted {
		s.logger.Warn("pool closed, dropping job", "job_id", j.id.String())
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panic: %v", p)
		}
	}()
	return j.fn(ctx)
}
