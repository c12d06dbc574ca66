// Package notify is the fire-and-forget bridge to an embedding host
// surface. Delivery failures never reach participants; the room treats the
// whole thing as advisory.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, event string, payload any)
}

// Nop is the default when no host surface is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string, any) {}

type event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// HTTPNotifier posts events to a webhook with a small bounded retry. It
// never blocks the caller and swallows terminal failures after logging.
type HTTPNotifier struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func NewHTTPNotifier(url string, log *zap.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    log,
	}
}

func (n *HTTPNotifier) Notify(ctx context.Context, eventType string, payload any) {
	body, err := json.Marshal(event{Type: eventType, Payload: payload})
	if err != nil {
		n.log.Warn("notify marshal failed", zap.String("event", eventType), zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		backoff := retry.WithMaxRetries(3, retry.NewExponential(250*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			return retry.RetryableError(n.post(ctx, body))
		})
		if err != nil {
			n.log.Warn("host notify dropped", zap.String("event", eventType), zap.Error(err))
		}
	}()
}

func (n *HTTPNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("host returned %s", resp.Status)
	}
	return nil
}
