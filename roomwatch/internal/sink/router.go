package sink

import (
	"context"
	"errors"
	"log/slog"
)

// Router fans a notification out to several sinks. One failing sink does
// not stop the others, but the delivery only counts as successful when
// every sink accepted it.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) Name() string { return "router" }

func (r *Router) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Send(ctx, n); err != nil {
			r.logger.Error("sink: send failed", "sink", s.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
