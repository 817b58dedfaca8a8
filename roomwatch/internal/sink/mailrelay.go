package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultMailRelayEndpoint is the Mailgun API base.
const DefaultMailRelayEndpoint = "https://api.mailgun.net"

// MailRelayConfig configures a MailRelay sink.
type MailRelayConfig struct {
	Endpoint string
	APIKey   string
	Domain   string
	From     string
	To       []string
	Timeout  time.Duration
}

// MailRelay posts a form-encoded message (from, to, subject, html, text) to
// <endpoint>/v3/<domain>/messages with basic auth api:<key>.
type MailRelay struct {
	cfg      MailRelayConfig
	renderer *Renderer
	client   *resty.Client
	logger   *slog.Logger
}

// NewMailRelay creates a MailRelay sink. A nil renderer uses the defaults.
func NewMailRelay(cfg MailRelayConfig, renderer *Renderer, logger *slog.Logger) (*MailRelay, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultMailRelayEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if renderer == nil {
		r, err := NewRenderer("", "")
		if err != nil {
			return nil, err
		}
		renderer = r
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetBasicAuth("api", cfg.APIKey)
	return &MailRelay{cfg: cfg, renderer: renderer, client: client, logger: logger}, nil
}

func (m *MailRelay) Name() string { return "mailrelay" }

func (m *MailRelay) messagesURL() string {
	return strings.TrimRight(m.cfg.Endpoint, "/") + "/v3/" + url.PathEscape(m.cfg.Domain) + "/messages"
}

func (m *MailRelay) Send(ctx context.Context, n Notification) error {
	msg, err := m.renderer.Render(n)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("from", m.cfg.From)
	for _, to := range m.cfg.To {
		form.Add("to", to)
	}
	form.Set("subject", msg.Subject)
	form.Set("html", msg.HTML)
	form.Set("text", msg.Text)

	resp, err := m.client.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		Post(m.messagesURL())
	if err != nil {
		return fmt.Errorf("mailrelay: post: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("mailrelay: status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	m.logger.Info("sink: mail relay accepted", "status", resp.StatusCode(),
		"recipients", len(m.cfg.To), "total", n.Total)
	return nil
}

func (m *MailRelay) Close() error { return nil }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
