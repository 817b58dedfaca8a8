package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/jordan-wright/email"
)

// SMTPConfig configures an SMTP sink.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// SMTP sends the message through a mail server. Servers that do not offer
// AUTH are retried once without credentials.
type SMTP struct {
	cfg      SMTPConfig
	renderer *Renderer
	logger   *slog.Logger
	send     func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSMTP creates an SMTP sink. A nil renderer uses the defaults.
func NewSMTP(cfg SMTPConfig, renderer *Renderer, logger *slog.Logger) (*SMTP, error) {
	if cfg.Port == 0 {
		cfg.Port = 587
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
	return &SMTP{
		cfg:      cfg,
		renderer: renderer,
		logger:   logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}, nil
}

func (s *SMTP) Name() string { return "smtp" }

func (s *SMTP) build(n Notification) (*email.Email, error) {
	msg, err := s.renderer.Render(n)
	if err != nil {
		return nil, err
	}
	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = append([]string(nil), s.cfg.To...)
	e.Subject = msg.Subject
	e.HTML = []byte(msg.HTML)
	e.Text = []byte(msg.Text)
	return e, nil
}

// Send delivers one message. The context is only checked before dialing;
// net/smtp has no per-call cancellation.
func (s *SMTP) Send(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	e, err := s.build(n)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	err = s.send(e, addr, auth)
	if err != nil && auth != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		s.logger.Warn("sink: smtp server lacks AUTH, retrying without credentials", "addr", addr)
		err = s.send(e, addr, nil)
	}
	if err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	s.logger.Info("sink: smtp sent", "addr", addr, "recipients", len(e.To), "total", n.Total)
	return nil
}

func (s *SMTP) Close() error { return nil }
