// Package metrics pushes the outcome of a run to a Prometheus Pushgateway.
//
// The poller is a batch job with no listening port, so gauges are built
// fresh per run and pushed once instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// DefaultJob is the Pushgateway job name.
const DefaultJob = "roomwatch"

// Run is what one run reports.
type Run struct {
	Total     int
	Selectors []string
	Values    []int
	Success   bool
	At        time.Time
}

// Pusher sends Run snapshots to a Pushgateway.
type Pusher struct {
	url      string
	job      string
	instance string
	logger   *slog.Logger
}

// Option configures a Pusher.
type Option func(*Pusher)

// WithJob overrides DefaultJob.
func WithJob(job string) Option { return func(p *Pusher) { p.job = job } }

// WithInstance adds an instance grouping label.
func WithInstance(instance string) Option { return func(p *Pusher) { p.instance = instance } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pusher) { p.logger = l } }

// New creates a Pusher for the gateway at url.
func New(url string, opts ...Option) *Pusher {
	p := &Pusher{url: url, job: DefaultJob, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Push replaces the job's metric group with the given run.
func (p *Pusher) Push(ctx context.Context, r Run) error {
	reg := prometheus.NewRegistry()

	available := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roomwatch_rooms_available",
		Help: "Total rooms available at the last run.",
	})
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roomwatch_last_run_timestamp_seconds",
		Help: "Unix time of the last run.",
	})
	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "roomwatch_run_success",
		Help: "1 if the last run delivered its notification.",
	})
	perSelector := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "roomwatch_selector_value",
		Help: "Stabilized count read for each selector.",
	}, []string{"selector"})
	reg.MustRegister(available, lastRun, success, perSelector)

	available.Set(float64(r.Total))
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	lastRun.Set(float64(at.Unix()))
	if r.Success {
		success.Set(1)
	}
	for i, sel := range r.Selectors {
		if i < len(r.Values) {
			perSelector.WithLabelValues(sel).Set(float64(r.Values[i]))
		}
	}

	pusher := push.New(p.url, p.job).Gatherer(reg)
	if p.instance != "" {
		pusher = pusher.Grouping("instance", p.instance)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push: %w", err)
	}
	p.logger.Debug("metrics: pushed", "job", p.job, "total", r.Total, "success", r.Success)
	return nil
}
