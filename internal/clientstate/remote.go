package clientstate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strangerchat/backend/internal/api/errcode"
	"strangerchat/backend/internal/models"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// APIError is a failure response without a known sentinel behind it.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("matchmaking api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Remote is the HTTP + websocket API of a matchmaking server, bound to one token.
type Remote struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Dialer  *websocket.Dialer
}

func NewRemote(baseURL, token string) *Remote {
	return &Remote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		Dialer:  websocket.DefaultDialer,
	}
}

type joinBody struct {
	Traits models.Traits `json:"traits"`
	Filter models.Filter `json:"filter"`
}

type leaveBody struct {
	ConversationID string `json:"conversation_id"`
}

func (r *Remote) Join(ctx context.Context, traits models.Traits, filter models.Filter) (models.Status, error) {
	var status models.Status
	err := r.do(ctx, http.MethodPost, "/api/match/join", joinBody{Traits: traits, Filter: filter}, &status)
	return status, err
}

func (r *Remote) Cancel(ctx context.Context) error {
	return r.do(ctx, http.MethodPost, "/api/match/cancel", nil, nil)
}

func (r *Remote) Leave(ctx context.Context, conversationID string) error {
	return r.do(ctx, http.MethodPost, "/api/match/leave", leaveBody{ConversationID: conversationID}, nil)
}

func (r *Remote) Status(ctx context.Context) (models.Status, error) {
	var status models.Status
	err := r.do(ctx, http.MethodGet, "/api/match/status", nil, &status)
	return status, err
}

func (r *Remote) Heartbeat(ctx context.Context) error {
	return r.do(ctx, http.MethodPost, "/api/match/heartbeat", nil, nil)
}

func (r *Remote) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Error     string `json:"error"`
			Code      string `json:"code"`
			Retryable bool   `json:"retryable"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		if sentinel := errcode.Err(failure.Code); sentinel != nil {
			return fmt.Errorf("%s %s: %w", method, path, sentinel)
		}
		return &APIError{Status: resp.StatusCode, Code: failure.Code, Message: failure.Error, Retryable: failure.Retryable}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Events opens the websocket feed. The channel closes when the connection
// drops or ctx is done; Session.Consume then resyncs.
func (r *Remote) Events(ctx context.Context) (<-chan models.Event, error) {
	u, err := url.Parse(r.BaseURL + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.Token)
	conn, _, err := r.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial event stream: %w", err)
	}

	events := make(chan models.Event, 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()
		for {
			var ev models.Event
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					log.Debugf("Event stream ended: %v", err)
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
