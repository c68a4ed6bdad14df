package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Poster interface {
	Post(ctx context.Context, payload any) (int, error)
}

type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string, timeout time.Duration) (*WebhookSink, error) {
	if url == "" {
		return nil, ErrNotConfigured
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{url: url, client: &http.Client{Timeout: timeout}}, nil
}

// Post sends payload as JSON and returns the response status code. Any
// response counts as delivered; only transport failures are errors.
func (w *WebhookSink) Post(ctx context.Context, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
