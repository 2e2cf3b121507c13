package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notification is the payload handed to the external dispatcher. Delivery
// is best-effort; nothing in this core depends on it succeeding.
type Notification struct {
	Recipients []string       `json:"recipients"`
	ActorID    string         `json:"actorId"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	Target     string         `json:"target"`
	Meta       map[string]any `json:"meta,omitempty"`
}

type Notifier interface {
	Dispatch(ctx context.Context, n Notification) error
}

// HTTPNotifier posts notifications to a webhook endpoint.
type HTTPNotifier struct {
	url    string
	bearer string
	client *http.Client
}

func NewHTTPNotifier(url, bearer string) *HTTPNotifier {
	return &HTTPNotifier{
		url:    url,
		bearer: bearer,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTPNotifier) Dispatch(ctx context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+h.bearer)
	}
	res, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("notify endpoint returned %d", res.StatusCode)
	}
	return nil
}

// NopNotifier is used when no webhook is configured.
type NopNotifier struct{}

func (NopNotifier) Dispatch(context.Context, Notification) error { return nil }
