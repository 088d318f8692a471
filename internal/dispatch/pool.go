// ABOUTME: Bounded worker pool shared by the dispatcher and the job scheduler
// ABOUTME: Fixed worker goroutines consume submitted tasks from one channel

package dispatch

import (
	"log/slog"
	"sync"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 4

// Pool executes submitted tasks on a fixed set of worker goroutines. Submit
// blocks while all workers are busy, which is the only backpressure applied
// to producers.
type Pool struct {
	tasks   chan func()
	workers sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	logger  *slog.Logger
}

// NewPool starts size workers. A non-positive size uses DefaultWorkers.
func NewPool(size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		tasks:  make(chan func()),
		logger: logger.With("component", "pool"),
	}
	p.workers.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// worker consumes tasks until the pool closes. A panicking task is contained
// here as a last resort so one bad callable cannot kill a worker; callers
// are expected to recover and classify panics themselves.
func (p *Pool) worker() {
	defer p.workers.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panic escaped caller recovery", "panic", r)
		}
	}()
	task()
}

// Submit hands a task to the pool, blocking until a worker accepts it.
// Returns false if the pool has been closed; the task is not run.
func (p *Pool) Submit(task func()) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	// Hold the lock across the send so Close cannot close the channel while
	// a Submit is in flight.
	defer p.mu.Unlock()
	p.tasks <- task
	return true
}

// Close stops accepting tasks and lets workers drain. Safe to call multiple
// times.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
}

// Wait blocks until all workers have exited. Call after Close.
func (p *Pool) Wait() {
	p.workers.Wait()
}
