// ABOUTME: Polling event source driving the fetch-since-cursor loop
// ABOUTME: Backs off exponentially on transient failures and never terminates on error

package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/candourhq/courier/internal/event"
	"github.com/candourhq/courier/internal/queue"
	"github.com/candourhq/courier/internal/sink"
)

// Fetcher is the external fetch-since-cursor capability. Fetch blocks up to
// timeout when no events are available and returns an ordered batch of
// events with sequence ids at or past cursor.
type Fetcher interface {
	Fetch(ctx context.Context, cursor int64, timeout time.Duration) ([]event.Event, error)
}

// CursorStore persists the acknowledgement cursor so a restarted process
// does not re-fetch events it already handed to dispatch.
type CursorStore interface {
	SaveCursor(ctx context.Context, position int64) error
	LoadCursor(ctx context.Context) (int64, error)
}

// Default polling parameters.
const (
	DefaultPollTimeout = 50 * time.Second
	DefaultBackoffBase = 1 * time.Second
	DefaultBackoffCap  = 30 * time.Second
)

// PollerConfig wires a Poller.
type PollerConfig struct {
	Fetcher Fetcher
	Queue   *queue.Queue
	Sink    sink.Sink

	// Timeout is the long-poll timeout passed to Fetch. Zero uses
	// DefaultPollTimeout.
	Timeout time.Duration

	// BackoffBase and BackoffCap bound the exponential backoff applied
	// after transient failures. Zeros use the defaults.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// Cursor, if non-nil, persists the acknowledgement position.
	Cursor CursorStore

	Logger *slog.Logger
}

// Poller runs the acquisition loop: fetch a batch, hand it to the queue,
// advance the cursor, repeat. Transient failures are reported to the sink
// and retried with capped exponential backoff; the loop only stops on
// context cancellation.
type Poller struct {
	cfg     PollerConfig
	logger  *slog.Logger
	cursor  int64
	lastSeq int64
}

// NewPoller creates a poller, restoring the cursor from the store when one
// is configured.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollTimeout
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Poller{
		cfg:    cfg,
		logger: logger.With("component", "poller"),
	}
	if cfg.Cursor != nil {
		pos, err := cfg.Cursor.LoadCursor(context.Background())
		if err != nil {
			p.logger.Error("loading cursor, starting from zero", "error", err)
		} else if pos > 0 {
			p.cursor = pos
			p.lastSeq = pos - 1
			p.logger.Info("restored acknowledgement cursor", "position", pos)
		}
	}
	return p
}

// Cursor returns the current acknowledgement position.
func (p *Poller) Cursor() int64 {
	return p.cursor
}

// Run polls until ctx is cancelled. Every failure is reported and retried;
// delivery to the queue is at-least-once, so duplicates after a crash
// restart are possible and must be tolerated downstream.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("polling started", "cursor", p.cursor, "timeout", p.cfg.Timeout)
	backoff := p.cfg.BackoffBase

	for {
		if ctx.Err() != nil {
			p.logger.Info("polling stopped")
			return nil
		}

		batch, err := p.cfg.Fetcher.Fetch(ctx, p.cursor, p.cfg.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown interrupted the fetch; the loop exits above.
				continue
			}
			p.report(sink.Acquisition(fmt.Errorf("fetch at cursor %d: %w", p.cursor, err)))
			sleep(ctx, backoff)
			backoff = min(backoff*2, p.cfg.BackoffCap)
			continue
		}
		backoff = p.cfg.BackoffBase

		if len(batch) == 0 {
			continue
		}
		p.accept(batch)
	}
}

// accept validates batch ordering, enqueues every event, and only then
// advances the cursor. A batch that would move the sequence backward is
// rejected whole and reported, never applied.
func (p *Poller) accept(batch []event.Event) {
	if err := checkSequence(p.lastSeq, batch); err != nil {
		p.report(sink.Acquisition(err))
		return
	}

	for i := range batch {
		ev := batch[i]
		if ev.ReceivedAt.IsZero() {
			ev.ReceivedAt = time.Now()
		}
		p.cfg.Queue.Put(&ev)
	}

	p.lastSeq = batch[len(batch)-1].Seq
	p.cursor = p.lastSeq + 1

	if p.cfg.Cursor != nil {
		if err := p.cfg.Cursor.SaveCursor(context.Background(), p.cursor); err != nil {
			p.logger.Error("persisting cursor", "position", p.cursor, "error", err)
		}
	}
	p.logger.Debug("batch accepted", "events", len(batch), "cursor", p.cursor)
}

func (p *Poller) report(err error) {
	if p.cfg.Sink != nil {
		p.cfg.Sink.Report("poller", err)
	}
}

// checkSequence verifies the batch is internally ordered and strictly past
// lastSeq.
func checkSequence(lastSeq int64, batch []event.Event) error {
	prev := lastSeq
	for i := range batch {
		if batch[i].Seq <= prev {
			return fmt.Errorf("out-of-order batch: seq %d at index %d not after %d", batch[i].Seq, i, prev)
		}
		prev = batch[i].Seq
	}
	return nil
}

// sleep waits d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
