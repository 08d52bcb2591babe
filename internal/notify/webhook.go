package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/hamed0406/portwatch/internal/domain"
)

// Webhook posts alerts as JSON. The "text" field keeps it compatible with
// Slack-style incoming webhooks.
type Webhook struct {
	URL    string
	Client *http.Client
}

// NewWebhook returns nil when url is empty.
func NewWebhook(url string) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Text     string           `json:"text"`
	Subject  string           `json:"subject"`
	Message  string           `json:"message"`
	Endpoint domain.Endpoint  `json:"endpoint"`
	Kind     domain.ErrorKind `json:"error_kind"`
	Detail   string           `json:"detail,omitempty"`
	Origin   string           `json:"origin"`
	RaisedAt time.Time        `json:"raised_at"`
}

func (w *Webhook) Dispatch(ctx context.Context, ev domain.AlertEvent) domain.DispatchResult {
	if w == nil || w.URL == "" {
		return domain.Failed("webhook", errors.New("webhook disabled"))
	}
	body, err := json.Marshal(webhookPayload{
		Text:     "*" + ev.Subject() + "*\n" + ev.Message,
		Subject:  ev.Subject(),
		Message:  ev.Message,
		Endpoint: ev.Endpoint,
		Kind:     ev.Kind,
		Detail:   ev.Detail,
		Origin:   ev.Origin,
		RaisedAt: ev.RaisedAt,
	})
	if err != nil {
		return domain.Failed("webhook", fmt.Errorf("encode payload: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return domain.Failed("webhook", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return domain.Failed("webhook", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return domain.Failed("webhook", fmt.Errorf("webhook returned %s", resp.Status))
	}
	return domain.Delivered("webhook")
}
