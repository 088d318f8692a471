// Package source acquires ordered event batches and feeds the dispatch queue.
//
// # Overview
//
// Two interchangeable sources cover the platform's delivery models:
//
//   - Poller: long-polls a Fetcher (fetch-since-cursor) in a loop
//   - Webhook: accepts pushed batches over HTTP or via direct Push
//
// Both funnel into the same queue and enforce the same ordering rule: the
// event sequence must be strictly increasing. A batch that would move the
// sequence backward is rejected whole and reported, never partially applied.
//
// # Polling
//
// The Poller drives fetch / enqueue / advance-cursor until its context is
// cancelled. Transient fetch failures are reported as acquisition faults and
// retried with capped exponential backoff; the loop never terminates on
// error. The cursor only advances after the whole batch is enqueued, so
// delivery is at-least-once and duplicates after a crash restart are
// possible. With a CursorStore configured the cursor survives restarts.
//
// # Webhook
//
// The Webhook source exposes POST /webhook accepting a JSON batch:
//
//	{"events": [{"seq": 1, "chat_id": 42, "payload": {...}}]}
//
// Deliveries are authenticated with a shared secret header when configured.
// Out-of-order deliveries get 409, letting well-behaved callers retry in
// order. GET /health reports liveness.
package source
