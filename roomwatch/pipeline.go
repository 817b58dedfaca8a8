// Package roomwatch polls a hotel booking page for room availability and
// notifies when a notification window is open.
//
// A run walks a short state machine: the window gate decides whether to
// proceed, the page is loaded and each counter is sampled until it
// stabilizes, the sum is delivered to the configured sinks, and only a
// confirmed delivery persists the window marker that suppresses duplicates.
package roomwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hazyhaar/roomwatch/idgen"
	"github.com/hazyhaar/roomwatch/roomwatch/internal/metrics"
	"github.com/hazyhaar/roomwatch/roomwatch/internal/reader"
	"github.com/hazyhaar/roomwatch/roomwatch/internal/sink"
	"github.com/hazyhaar/roomwatch/roomwatch/internal/window"
)

// Reading is the set of stabilized counters of one run.
type Reading = reader.Reading

// Decision is the window gate's answer for one instant.
type Decision = window.Decision

// MetricsPusher publishes the outcome of a run.
type MetricsPusher interface {
	Push(ctx context.Context, r metrics.Run) error
}

// Status is the final state of a run.
type Status string

const (
	StatusSkipped        Status = "skipped"
	StatusSent           Status = "sent"
	StatusDeliveryFailed Status = "delivery_failed"
	StatusPageFailed     Status = "page_failed"
	StatusDryRun         Status = "dry_run"
)

// RunOptions alter a single run.
type RunOptions struct {
	// Force bypasses the window gate. The marker is still only written when
	// a window matched.
	Force bool
	// DryRun prints the notification to stdout instead of the sinks and
	// never writes the marker.
	DryRun bool
}

// Result describes a finished run.
type Result struct {
	RunID     string
	Status    Status
	Label     string
	Reason    string
	Reading   *Reading
	StartedAt time.Time
	Duration  time.Duration
	Err       error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPageOpener replaces the opener derived from browser.mode.
func WithPageOpener(o PageOpener) Option { return func(p *Pipeline) { p.open = o } }

// WithSink replaces the sinks derived from configuration.
func WithSink(s Sink) Option { return func(p *Pipeline) { p.sink = s } }

// WithStore replaces the marker store derived from configuration.
func WithStore(s Store) Option { return func(p *Pipeline) { p.store = s } }

// WithClock sets the time source used by the gate.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// WithHistory records every non-skipped run.
func WithHistory(h History) Option { return func(p *Pipeline) { p.history = h } }

// WithMetrics pushes every non-skipped run.
func WithMetrics(m MetricsPusher) Option { return func(p *Pipeline) { p.metrics = m } }

// WithIDGenerator sets the run ID source.
func WithIDGenerator(g idgen.Generator) Option { return func(p *Pipeline) { p.newID = g } }

// WithStdout sets where dry runs print. Default: os.Stdout.
func WithStdout(w io.Writer) Option { return func(p *Pipeline) { p.stdout = w } }

// Pipeline is one configured poller. Runs must not overlap.
type Pipeline struct {
	cfg     *Config
	logger  *slog.Logger
	gate    *window.Gate
	reader  *reader.Reader
	target  reader.Target
	open    PageOpener
	sink    Sink
	store   Store
	history History
	metrics MetricsPusher
	now     func() time.Time
	newID   idgen.Generator
	stdout  io.Writer
}

// New validates cfg and wires a Pipeline. Components not supplied through
// options are built from cfg.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:    cfg,
		logger: logger,
		target: targetOf(cfg),
		now:    time.Now,
		newID:  idgen.Run,
		stdout: os.Stdout,
	}
	for _, o := range opts {
		o(p)
	}

	if p.open == nil {
		p.open = OpenerFor(cfg, logger)
	}
	if p.sink == nil {
		s, err := NewSinks(cfg.Sink, logger, p.stdout)
		if err != nil {
			return nil, err
		}
		p.sink = s
	}
	if p.store == nil {
		s, err := NewStore(cfg.Marker)
		if err != nil {
			return nil, fmt.Errorf("roomwatch: open marker: %w", err)
		}
		p.store = s
	}
	if p.history == nil {
		if h, ok := p.store.(History); ok {
			p.history = h
		}
	}
	if p.metrics == nil && cfg.Metrics.Pushgateway != "" {
		p.metrics = metrics.New(cfg.Metrics.Pushgateway,
			metrics.WithJob(cfg.Metrics.Job),
			metrics.WithInstance(cfg.Metrics.Instance),
			metrics.WithLogger(logger))
	}

	loc, _ := cfg.Location()
	windows, _ := cfg.Windows()
	p.gate = window.New(window.Config{
		Location: loc,
		Windows:  windows,
		Always:   cfg.Schedule.Always,
		Scope:    window.Scope(cfg.Schedule.Scope),
		Store:    p.store,
		Logger:   logger,
	})
	p.reader = reader.New(reader.Config{
		Interval:         cfg.Reader.Interval,
		MaxTicks:         cfg.Reader.MaxTicks,
		ElementTimeout:   cfg.Reader.ElementTimeout,
		ContainerTimeout: cfg.Reader.ContainerTimeout,
		Logger:           logger,
	})
	return p, nil
}

// Check returns the gate decision for the current instant.
func (p *Pipeline) Check(ctx context.Context) Decision {
	return p.gate.Check(ctx, p.now())
}

// CheckAt returns the gate decision for t.
func (p *Pipeline) CheckAt(ctx context.Context, t time.Time) Decision {
	return p.gate.Check(ctx, t)
}

// Read loads the page and samples every counter without notifying.
func (p *Pipeline) Read(ctx context.Context) (*Reading, error) {
	return p.read(ctx, p.logger)
}

func (p *Pipeline) read(ctx context.Context, log *slog.Logger) (*Reading, error) {
	page, err := p.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open page: %w", ErrPageLoad, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Warn("roomwatch: close page", "error", err)
		}
	}()

	reading, err := p.reader.Read(ctx, page, p.target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPageLoad, err)
	}
	return reading, nil
}

// History returns up to limit recorded runs, newest first. Only stores that
// keep run history (the sqlite backend) support it; others return ErrConfig.
func (p *Pipeline) History(ctx context.Context, limit int) ([]RunRecord, error) {
	h, ok := p.store.(interface {
		Recent(ctx context.Context, limit int) ([]RunRecord, error)
	})
	if !ok {
		return nil, fmt.Errorf("%w: history needs marker.backend %q", ErrConfig, "sqlite")
	}
	if limit <= 0 {
		limit = 20
	}
	return h.Recent(ctx, limit)
}

// Run executes one poll. The returned error is also stored in Result.Err.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	res := &Result{RunID: p.newID(), StartedAt: p.now()}
	log := p.logger.With("run_id", res.RunID)

	d := p.gate.Check(ctx, res.StartedAt)
	res.Label, res.Reason = d.Label, d.Reason
	if !d.Proceed && !opts.Force {
		res.Status = StatusSkipped
		log.Info("roomwatch: skipped", "reason", d.Reason, "label", d.Label)
		return res, nil
	}
	if !d.Proceed {
		log.Info("roomwatch: forced past gate", "reason", d.Reason)
	}

	reading, err := p.read(ctx, log)
	if err != nil {
		res.Status = StatusPageFailed
		return p.finish(ctx, log, res, err)
	}
	res.Reading = reading
	log.Info("roomwatch: read", "total", reading.Total, "values", reading.Values)

	n := sink.Notification{
		RunID:     res.RunID,
		Total:     reading.Total,
		Values:    reading.Values,
		Label:     d.Label,
		Timestamp: p.now(),
	}

	if opts.DryRun {
		res.Status = StatusDryRun
		if err := sink.NewStdout(p.stdout).Send(ctx, n); err != nil {
			return p.finish(ctx, log, res, fmt.Errorf("roomwatch: dry run: %w", err))
		}
		return p.finish(ctx, log, res, nil)
	}

	if err := p.sink.Send(ctx, n); err != nil {
		res.Status = StatusDeliveryFailed
		return p.finish(ctx, log, res, fmt.Errorf("%w: %w", ErrDelivery, err))
	}
	res.Status = StatusSent
	log.Info("roomwatch: notification sent", "label", d.Label, "total", reading.Total)

	if d.Key != "" {
		if err := p.store.Set(ctx, d.Key); err != nil {
			// Delivery already happened; the next run in this window may
			// send again.
			log.Error("roomwatch: persist marker failed", "marker", d.Key, "error", err)
		}
	}
	return p.finish(ctx, log, res, nil)
}

func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, res *Result, err error) (*Result, error) {
	res.Err = err
	res.Duration = p.now().Sub(res.StartedAt)
	if err != nil {
		log.Error("roomwatch: run failed", "status", res.Status, "error", err)
	}

	if p.history != nil {
		rec := RunRecord{
			RunID:     res.RunID,
			Status:    string(res.Status),
			Label:     res.Label,
			StartedAt: res.StartedAt,
			Duration:  res.Duration,
		}
		if res.Reading != nil {
			rec.Total, rec.Values = res.Reading.Total, res.Reading.Values
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if herr := p.history.Record(ctx, rec); herr != nil {
			log.Warn("roomwatch: record history failed", "error", herr)
		}
	}

	if p.metrics != nil {
		m := metrics.Run{Selectors: p.target.Selectors, Success: res.Status == StatusSent, At: res.StartedAt}
		if res.Reading != nil {
			m.Total, m.Values = res.Reading.Total, res.Reading.Values
		}
		if merr := p.metrics.Push(ctx, m); merr != nil {
			log.Warn("roomwatch: push metrics failed", "error", merr)
		}
	}
	return res, err
}

// Close releases the sinks and the marker store.
func (p *Pipeline) Close() error {
	return errors.Join(p.sink.Close(), p.store.Close())
}
