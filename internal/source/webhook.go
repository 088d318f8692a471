// ABOUTME: Webhook event source accepting pushed batches over HTTP
// ABOUTME: Shares the sequence check and enqueue path with the polling source

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/candourhq/courier/internal/event"
	"github.com/candourhq/courier/internal/queue"
	"github.com/candourhq/courier/internal/sink"
)

// secretHeader carries the shared webhook secret, when one is configured.
const secretHeader = "X-Courier-Secret"

// WebhookConfig wires a Webhook.
type WebhookConfig struct {
	Queue *queue.Queue
	Sink  sink.Sink

	// Addr is the listen address for Serve, e.g. ":8443".
	Addr string

	// Secret, when non-empty, must be presented by callers in the
	// X-Courier-Secret header.
	Secret string

	// ShutdownGrace bounds the HTTP server drain on shutdown. Zero uses
	// five seconds.
	ShutdownGrace time.Duration

	Logger *slog.Logger
}

// Webhook accepts externally delivered event batches, either directly via
// Push or over HTTP via Handler/Serve. Batches must keep the sequence
// strictly increasing; violating batches are rejected whole.
type Webhook struct {
	cfg     WebhookConfig
	logger  *slog.Logger
	mu      sync.Mutex
	lastSeq int64
}

// NewWebhook creates a webhook source.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		cfg:    cfg,
		logger: logger.With("component", "webhook"),
	}
}

// Push validates and enqueues an externally delivered batch. The batch is
// rejected whole (and reported) if it would move the sequence backward.
func (w *Webhook) Push(batch []event.Event) error {
	if len(batch) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := checkSequence(w.lastSeq, batch); err != nil {
		if w.cfg.Sink != nil {
			w.cfg.Sink.Report("webhook", sink.Acquisition(err))
		}
		return err
	}

	now := time.Now()
	for i := range batch {
		ev := batch[i]
		if ev.ReceivedAt.IsZero() {
			ev.ReceivedAt = now
		}
		w.cfg.Queue.Put(&ev)
	}
	w.lastSeq = batch[len(batch)-1].Seq
	w.logger.Debug("batch pushed", "events", len(batch), "last_seq", w.lastSeq)
	return nil
}

// wireEvent is the JSON shape of one pushed event.
type wireEvent struct {
	Seq     int64           `json:"seq"`
	ChatID  int64           `json:"chat_id"`
	UserID  int64           `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// wireBatch is the JSON body of a webhook delivery.
type wireBatch struct {
	Events []wireEvent `json:"events"`
}

// handlePush decodes and pushes one HTTP delivery.
func (w *Webhook) handlePush(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if w.cfg.Secret != "" && r.Header.Get(secretHeader) != w.cfg.Secret {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}

	var body wireBatch
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(rw, fmt.Sprintf("decoding batch: %v", err), http.StatusBadRequest)
		return
	}

	batch := make([]event.Event, len(body.Events))
	for i, we := range body.Events {
		batch[i] = event.Event{
			Seq:     we.Seq,
			Key:     event.Key{ChatID: we.ChatID, UserID: we.UserID},
			Payload: we.Payload,
		}
	}

	if err := w.Push(batch); err != nil {
		http.Error(rw, err.Error(), http.StatusConflict)
		return
	}
	rw.WriteHeader(http.StatusOK)
}

// handleHealth reports liveness.
func (w *Webhook) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("OK"))
}

// Handler returns the webhook HTTP handler with its routes registered.
func (w *Webhook) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", w.handlePush)
	mux.HandleFunc("/health", w.handleHealth)
	return mux
}

// Serve runs the webhook HTTP server until ctx is cancelled, then drains it
// within the shutdown grace period.
func (w *Webhook) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              w.cfg.Addr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		w.logger.Info("webhook server listening", "addr", w.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("webhook server: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("webhook shutdown: %w", err)
	}
	w.logger.Info("webhook server stopped")
	return nil
}
