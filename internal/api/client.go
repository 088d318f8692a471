// ABOUTME: HTTP client for the platform's fetch-since-cursor endpoint
// ABOUTME: Implements source.Fetcher via long-polled getUpdates requests

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/candourhq/courier/internal/event"
)

// ErrAPIRejected indicates the platform answered but refused the request.
var ErrAPIRejected = errors.New("api rejected request")

// Client fetches event batches from the platform's HTTP API. It implements
// source.Fetcher; transport-level retry lives in the polling loop, not here.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client for the API at baseURL authenticated by token.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{},
		logger:  logger.With("component", "api"),
	}
}

// fetchRequest is the getUpdates request body. Timeout is in whole seconds,
// matching the platform's long-poll contract.
type fetchRequest struct {
	Offset  int64 `json:"offset"`
	Timeout int   `json:"timeout"`
}

// fetchResponse is the getUpdates response envelope.
type fetchResponse struct {
	OK          bool              `json:"ok"`
	Description string            `json:"description"`
	Result      []json.RawMessage `json:"result"`
}

// updateIdentity is the subset of an update the core needs: the sequence id
// and the conversation identity. Everything else stays opaque in the payload.
type updateIdentity struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From *struct {
			ID int64 `json:"id"`
		} `json:"from"`
	} `json:"message"`
	CallbackQuery *struct {
		From *struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Message *struct {
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
}

// Fetch long-polls getUpdates starting at cursor and maps the result into
// events. Blocks up to timeout (plus transport slack) when no events are
// pending.
func (c *Client) Fetch(ctx context.Context, cursor int64, timeout time.Duration) ([]event.Event, error) {
	body, err := json.Marshal(fetchRequest{
		Offset:  cursor,
		Timeout: int(timeout.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	// The request deadline allows the server the full long-poll window plus
	// transport slack; without it a dead connection blocks forever.
	reqCtx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/bot%s/getUpdates", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching updates: status %d", resp.StatusCode)
	}

	var env fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if !env.OK {
		return nil, fmt.Errorf("%w: %s", ErrAPIRejected, env.Description)
	}

	return c.mapUpdates(env.Result)
}

// mapUpdates converts raw updates into events, extracting sequence id and
// conversation key and keeping the full update as the opaque payload.
func (c *Client) mapUpdates(raw []json.RawMessage) ([]event.Event, error) {
	now := time.Now()
	events := make([]event.Event, 0, len(raw))
	for i, r := range raw {
		var id updateIdentity
		if err := json.Unmarshal(r, &id); err != nil {
			return nil, fmt.Errorf("decoding update %d: %w", i, err)
		}

		key := identityKey(&id)
		events = append(events, event.Event{
			Seq:        id.UpdateID,
			Key:        key,
			Payload:    r,
			ReceivedAt: now,
		})
	}
	return events, nil
}

// identityKey derives the conversation key from whichever part of the
// update carries chat identity.
func identityKey(id *updateIdentity) event.Key {
	var key event.Key
	switch {
	case id.Message != nil:
		key.ChatID = id.Message.Chat.ID
		if id.Message.From != nil {
			key.UserID = id.Message.From.ID
		}
	case id.CallbackQuery != nil:
		if id.CallbackQuery.Message != nil {
			key.ChatID = id.CallbackQuery.Message.Chat.ID
		}
		if id.CallbackQuery.From != nil {
			key.UserID = id.CallbackQuery.From.ID
		}
	}
	return key
}
