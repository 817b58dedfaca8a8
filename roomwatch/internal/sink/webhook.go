package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 15 * time.Second

// Webhook POSTs {"value1": "<total> rooms available", "window": "<label>"}
// to a URL. Any 2xx status is success.
type Webhook struct {
	url    string
	client *resty.Client
	logger *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookTimeout sets the request timeout. Default: 15s.
func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.client.SetTimeout(d) }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWebhook creates a Webhook sink targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: resty.New().SetTimeout(DefaultTimeout),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

type webhookPayload struct {
	Value1 string `json:"value1"`
	Window string `json:"window,omitempty"`
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, n Notification) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookPayload{Value1: n.Summary(), Window: n.Label}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook: status %d", resp.StatusCode())
	}
	w.logger.Info("sink: webhook sent", "status", resp.StatusCode(), "total", n.Total, "window", n.Label)
	return nil
}

func (w *Webhook) Close() error { return nil }
