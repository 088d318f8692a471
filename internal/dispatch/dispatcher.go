// ABOUTME: Dispatcher pops events from the queue and routes them to matched handlers
// ABOUTME: Actions run on the shared pool serialized per conversation key

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/candourhq/courier/internal/conversation"
	"github.com/candourhq/courier/internal/event"
	"github.com/candourhq/courier/internal/handler"
	"github.com/candourhq/courier/internal/queue"
	"github.com/candourhq/courier/internal/sink"
)

// ErrShutdownTimeout indicates in-flight actions did not finish within the
// shutdown grace period. The dispatcher detaches from them rather than
// aborting them mid-action.
var ErrShutdownTimeout = errors.New("in-flight actions exceeded shutdown grace period")

// DefaultShutdownGrace bounds the wait for in-flight actions on shutdown.
const DefaultShutdownGrace = 5 * time.Second

// Fallback receives events no group matched.
type Fallback func(ctx context.Context, ev *event.Event)

// Config wires a Dispatcher.
type Config struct {
	Queue    *queue.Queue
	Registry *handler.Registry
	Tracker  *conversation.Tracker
	Pool     *Pool
	Sink     sink.Sink

	// Fallback, if set, receives events no group matched.
	Fallback Fallback

	// ShutdownGrace bounds the wait for in-flight actions after the loop
	// stops. Zero uses DefaultShutdownGrace.
	ShutdownGrace time.Duration

	Logger *slog.Logger
}

// Dispatcher is the routing core: it pops events, consults the registry, and
// executes matched actions on the worker pool under per-key lanes, applying
// declared state transitions afterwards. Handler errors go to the sink and
// never stop the loop.
type Dispatcher struct {
	cfg      Config
	logger   *slog.Logger
	inFlight sync.WaitGroup
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:    cfg,
		logger: logger.With("component", "dispatcher"),
	}
}

// Run blocks popping events until ctx is cancelled or the queue closes, then
// waits for in-flight actions up to the grace period. Returns
// ErrShutdownTimeout if they did not finish; the error is also reported to
// the sink, and the caller is expected to proceed with termination.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started")

	// Actions outlive loop cancellation: they get the grace period instead
	// of being cancelled mid-flight.
	actionCtx := context.WithoutCancel(ctx)

	for {
		ev, ok := d.cfg.Queue.Get(ctx)
		if !ok {
			break
		}
		d.dispatch(actionCtx, ev)
	}

	d.logger.Info("dispatcher stopping, waiting for in-flight actions")
	return d.drain()
}

// dispatch routes one event. The conversation lane is acquired here, before
// matching and pool submission: events for the same key execute in
// acquisition order, and state-scoped predicates observe the state left
// behind by the key's previous action. All matched group actions for one
// event run sequentially inside a single pool task holding that lane.
func (d *Dispatcher) dispatch(ctx context.Context, ev *event.Event) {
	lane := d.cfg.Tracker.Acquire(ev.Key)

	matches := d.cfg.Registry.Match(ev)
	if len(matches) == 0 {
		lane.Release()
		if d.cfg.Fallback != nil {
			d.cfg.Fallback(ctx, ev)
		} else {
			d.logger.Debug("no handler matched", "seq", ev.Seq, "key", ev.Key.String())
		}
		return
	}

	d.inFlight.Add(1)
	submitted := d.cfg.Pool.Submit(func() {
		defer d.inFlight.Done()
		defer lane.Release()
		d.runMatches(ctx, ev, lane, matches)
	})
	if !submitted {
		lane.Release()
		d.inFlight.Done()
		d.logger.Warn("pool closed, dropping event", "seq", ev.Seq)
	}
}

// runMatches executes each matched entry in group order under the lane.
func (d *Dispatcher) runMatches(ctx context.Context, ev *event.Event, lane *conversation.Lane, matches []handler.Matched) {
	for _, m := range matches {
		if !m.Entry.Persistent {
			d.cfg.Registry.Remove(m.Reg)
		}

		tr, err := d.runAction(ctx, m, ev)
		if err != nil {
			d.report(sink.Action(fmt.Errorf("group %d seq %d: %w", m.Group, ev.Seq, err)))
			continue
		}
		if tr == nil {
			continue
		}
		if err := d.cfg.Tracker.Apply(lane, tr); err != nil {
			d.report(sink.StateConflict(fmt.Errorf("group %d key %s: %w", m.Group, ev.Key.String(), err)))
		}
	}
}

// runAction invokes one action with panic containment.
func (d *Dispatcher) runAction(ctx context.Context, m handler.Matched, ev *event.Event) (tr *conversation.Transition, err error) {
	defer func() {
		if p := recover(); p != nil {
			tr = nil
			err = fmt.Errorf("action panic: %v", p)
		}
	}()
	return m.Entry.Action(ctx, ev)
}

// drain waits for in-flight actions up to the grace period.
func (d *Dispatcher) drain() error {
	done := make(chan struct{})
	go func() {
		d.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-time.After(d.cfg.ShutdownGrace):
		d.report(sink.Shutdown(ErrShutdownTimeout))
		return ErrShutdownTimeout
	}
}

func (d *Dispatcher) report(err error) {
	if d.cfg.Sink != nil {
		d.cfg.Sink.Report("dispatcher", err)
	}
}
