// ABOUTME: Engine orchestrator wiring acquisition, dispatch, and scheduling
// ABOUTME: Manages component lifecycle and coordinated graceful shutdown

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/candourhq/courier/internal/api"
	"github.com/candourhq/courier/internal/config"
	"github.com/candourhq/courier/internal/conversation"
	"github.com/candourhq/courier/internal/dispatch"
	"github.com/candourhq/courier/internal/event"
	"github.com/candourhq/courier/internal/handler"
	"github.com/candourhq/courier/internal/jobs"
	"github.com/candourhq/courier/internal/queue"
	"github.com/candourhq/courier/internal/sink"
	"github.com/candourhq/courier/internal/source"
	"github.com/candourhq/courier/internal/store"
)

// Engine owns the three loops of the core - acquisition, dispatch, and job
// scheduling - plus the shared worker pool, conversation tracker, and error
// sink. Handlers and jobs are registered through the accessors before Run.
type Engine struct {
	cfg        *config.Config
	logger     *slog.Logger
	queue      *queue.Queue
	registry   *handler.Registry
	tracker    *conversation.Tracker
	pool       *dispatch.Pool
	dispatcher *dispatch.Dispatcher
	scheduler  *jobs.Scheduler
	poller     *source.Poller
	webhook    *source.Webhook
	store      *store.SQLiteStore
	sink       sink.Sink
}

// New creates an Engine from configuration. The returned engine has its
// components wired but no loops running until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	errSink := sink.NewLogSink(logger)

	var st *store.SQLiteStore
	if cfg.Database.Path != "" {
		var err error
		st, err = store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
	}

	var stateStore conversation.StateStore
	if st != nil {
		stateStore = st
	}
	tracker := conversation.NewTracker(conversation.Config{
		DefaultTimeout: cfg.Conversation.DefaultTimeout,
		TimedOutState:  conversation.State(cfg.Conversation.TimedOutState),
		IdleAfter:      cfg.Conversation.IdleEviction,
		Store:          stateStore,
		Logger:         logger,
	})

	registry := handler.NewRegistry(errSink, logger)
	q := queue.New()
	pool := dispatch.NewPool(cfg.Dispatch.Workers, logger)

	e := &Engine{
		cfg:      cfg,
		logger:   logger.With("component", "engine"),
		queue:    q,
		registry: registry,
		tracker:  tracker,
		pool:     pool,
		store:    st,
		sink:     errSink,
	}

	e.dispatcher = dispatch.New(dispatch.Config{
		Queue:         q,
		Registry:      registry,
		Tracker:       tracker,
		Pool:          pool,
		Sink:          errSink,
		ShutdownGrace: cfg.Dispatch.ShutdownGrace,
		Logger:        logger,
	})
	e.scheduler = jobs.NewScheduler(pool, errSink, logger)

	if err := e.initSource(); err != nil {
		return nil, err
	}
	if err := e.initFlow(); err != nil {
		return nil, err
	}

	return e, nil
}

// initSource creates the polling or webhook source per config.
func (e *Engine) initSource() error {
	switch e.cfg.API.Mode {
	case config.ModePolling:
		client := api.NewClient(e.cfg.API.BaseURL, e.cfg.API.Token, e.logger)
		var cursor source.CursorStore
		if e.store != nil {
			cursor = e.store
		}
		e.poller = source.NewPoller(source.PollerConfig{
			Fetcher:     client,
			Queue:       e.queue,
			Sink:        e.sink,
			Timeout:     e.cfg.Polling.Timeout,
			BackoffBase: e.cfg.Polling.BackoffBase,
			BackoffCap:  e.cfg.Polling.BackoffCap,
			Cursor:      cursor,
			Logger:      e.logger,
		})
	case config.ModeWebhook:
		e.webhook = source.NewWebhook(source.WebhookConfig{
			Queue:  e.queue,
			Sink:   e.sink,
			Addr:   e.cfg.Webhook.Addr,
			Secret: e.cfg.Webhook.Secret,
			Logger: e.logger,
		})
	default:
		return fmt.Errorf("unknown acquisition mode %q", e.cfg.API.Mode)
	}
	return nil
}

// initFlow registers a graph-driven conversation handler when a flow file is
// configured.
func (e *Engine) initFlow() error {
	if e.cfg.Conversation.FlowFile == "" {
		return nil
	}
	graph, err := conversation.LoadGraph(e.cfg.Conversation.FlowFile)
	if err != nil {
		return fmt.Errorf("loading flow file: %w", err)
	}

	logger := e.logger
	e.registry.Register(0, handler.Flow(handler.FlowConfig{
		Tracker: e.tracker,
		Graph:   graph,
		Unhandled: func(_ context.Context, ev *event.Event, state conversation.State) {
			logger.Debug("no edge for event in conversation",
				"key", ev.Key.String(),
				"state", string(state),
			)
		},
	}))
	e.logger.Info("conversation flow loaded",
		"file", e.cfg.Conversation.FlowFile,
		"edges", graph.Len(),
	)
	return nil
}

// Registry exposes handler registration.
func (e *Engine) Registry() *handler.Registry {
	return e.registry
}

// Scheduler exposes job scheduling.
func (e *Engine) Scheduler() *jobs.Scheduler {
	return e.scheduler
}

// Tracker exposes conversation state.
func (e *Engine) Tracker() *conversation.Tracker {
	return e.tracker
}

// Push delivers an externally acquired batch in webhook mode.
func (e *Engine) Push(batch []event.Event) error {
	if e.webhook == nil {
		return fmt.Errorf("push requires webhook mode")
	}
	return e.webhook.Push(batch)
}

// Run starts the acquisition, dispatch, and scheduler loops and blocks until
// ctx is cancelled or a loop fails, then performs graceful shutdown: the
// source stops first, the queue drains through the dispatcher within the
// grace period, and the scheduler and pool stop last.
func (e *Engine) Run(ctx context.Context) error {
	// The dispatcher and scheduler outlive ctx cancellation so queued work
	// can drain; each gets its own cancel.
	dispCtx, dispCancel := context.WithCancel(context.Background())
	defer dispCancel()
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	srcErr := make(chan error, 1)
	dispErr := make(chan error, 1)
	schedErr := make(chan error, 1)

	go func() {
		if e.poller != nil {
			srcErr <- e.poller.Run(ctx)
			return
		}
		srcErr <- e.webhook.Serve(ctx)
	}()
	go func() { dispErr <- e.dispatcher.Run(dispCtx) }()
	go func() { schedErr <- e.scheduler.Run(schedCtx) }()

	var runErr error
	select {
	case <-ctx.Done():
		e.logger.Info("context canceled, initiating shutdown")
	case runErr = <-srcErr:
		srcErr = nil
		if runErr != nil {
			e.logger.Error("source error", "error", runErr)
		}
	}

	shutdownErr := e.shutdown(srcErr, dispErr, schedCancel, schedErr)

	if runErr != nil {
		return runErr
	}
	return shutdownErr
}

// shutdown stops the loops in dependency order and collects errors.
func (e *Engine) shutdown(srcErr, dispErr chan error, schedCancel context.CancelFunc, schedErr chan error) error {
	// Wait for the source to finish handing off its final batch.
	if srcErr != nil {
		<-srcErr
	}

	// Closing the queue lets the dispatcher drain remaining events, then
	// wait for in-flight actions up to its grace period.
	e.queue.Close()
	err := <-dispErr

	schedCancel()
	<-schedErr

	e.pool.Close()
	grace := e.cfg.Dispatch.ShutdownGrace
	if grace <= 0 {
		grace = dispatch.DefaultShutdownGrace
	}
	poolDone := make(chan struct{})
	go func() {
		e.pool.Wait()
		close(poolDone)
	}()
	select {
	case <-poolDone:
	case <-time.After(grace):
		// Workers are never force-killed mid-action; detach instead.
		e.logger.Warn("worker pool did not drain within grace period, detaching")
	}

	e.tracker.Close()
	if e.store != nil {
		if cerr := e.store.Close(); cerr != nil {
			e.logger.Error("closing store", "error", cerr)
		}
	}

	e.logger.Info("engine stopped")
	return err
}
