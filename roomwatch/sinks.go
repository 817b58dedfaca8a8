package roomwatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/roomwatch/roomwatch/internal/config"
	"github.com/hazyhaar/roomwatch/roomwatch/internal/marker"
	"github.com/hazyhaar/roomwatch/roomwatch/internal/sink"
)

// Sink is the output interface for notifications.
type Sink = sink.Sink

// Notification is what a Sink receives.
type Notification = sink.Notification

// NewSinks builds the notifiers selected by cfg. Several kinds are fanned
// out through a router that succeeds only when all of them do.
func NewSinks(cfg SinkConfig, logger *slog.Logger, stdout io.Writer) (Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	renderer, err := sink.NewRenderer(cfg.Subject, cfg.HTML)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var sinks []sink.Sink
	for _, kind := range cfg.Kinds {
		switch kind {
		case config.SinkWebhook:
			opts := []sink.WebhookOption{sink.WithWebhookLogger(logger)}
			if cfg.Webhook.Timeout > 0 {
				opts = append(opts, sink.WithWebhookTimeout(cfg.Webhook.Timeout))
			}
			sinks = append(sinks, sink.NewWebhook(cfg.Webhook.URL, opts...))
		case config.SinkMailRelay:
			m, err := sink.NewMailRelay(sink.MailRelayConfig{
				Endpoint: cfg.MailRelay.Endpoint,
				APIKey:   cfg.MailRelay.APIKey,
				Domain:   cfg.MailRelay.Domain,
				From:     cfg.MailRelay.From,
				To:       cfg.MailRelay.To,
				Timeout:  cfg.MailRelay.Timeout,
			}, renderer, logger)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfig, err)
			}
			sinks = append(sinks, m)
		case config.SinkSMTP:
			s, err := sink.NewSMTP(sink.SMTPConfig{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				From:     cfg.SMTP.From,
				To:       cfg.SMTP.To,
			}, renderer, logger)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrConfig, err)
			}
			sinks = append(sinks, s)
		case config.SinkStdout:
			sinks = append(sinks, sink.NewStdout(stdout))
		default:
			return nil, fmt.Errorf("%w: unknown sink %q", ErrConfig, kind)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sink.NewRouter(logger, sinks...), nil
}

// Store persists the last-sent marker.
type Store = marker.Store

// RunRecord is one row of run history.
type RunRecord = marker.RunRecord

// History records finished runs.
type History interface {
	Record(ctx context.Context, r RunRecord) error
}

// NewStore opens the marker backend selected by cfg. Redis clients connect
// lazily on first use.
func NewStore(cfg MarkerConfig) (Store, error) {
	switch cfg.Backend {
	case config.MarkerNone:
		return marker.Nop{}, nil
	case config.MarkerSQLite:
		path := cfg.Path
		if path == "" || path == marker.DefaultFile {
			path = "roomwatch.db"
		}
		s, err := marker.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.MarkerRedis:
		return marker.OpenRedis(marker.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			TTL:      cfg.Redis.TTL,
		}), nil
	default:
		return marker.NewFile(cfg.Path), nil
	}
}
