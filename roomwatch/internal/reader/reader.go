// Package reader reads numeric counters from a client-rendered page.
//
// A widget typically flickers through placeholders before it settles, so
// every counter is sampled once per tick until two consecutive numeric
// samples agree. The page itself is an injected capability: the browser
// package drives Chrome, the fetcher package serves static HTML, and tests
// use scripted fakes.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Page is the rendering capability the reader needs.
type Page interface {
	// Navigate loads url. An error is fatal to the run.
	Navigate(ctx context.Context, url string) error
	// WaitForElement blocks until selector is present or timeout elapses.
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) bool
	// ReadText returns the element's text, false if it is absent right now.
	ReadText(ctx context.Context, selector string) (string, bool)
}

var (
	// ErrNavigate wraps a failed page load.
	ErrNavigate = errors.New("reader: navigate failed")
	// ErrContainer means the root container never appeared.
	ErrContainer = errors.New("reader: root container not found")
)

// Sample is one counter's outcome.
type Sample struct {
	Selector string `json:"selector"`
	Value    int    `json:"value"`
	// Found is false when no numeric value was ever read.
	Found bool `json:"found"`
	// Stable is true when two consecutive samples agreed.
	Stable bool `json:"stable"`
	Ticks  int  `json:"ticks"`
}

// Reading is the ordered set of samples for one run.
type Reading struct {
	Samples []Sample `json:"samples"`
	Values  []int    `json:"values"`
	Total   int      `json:"total"`
}

// NewReading sums samples into a Reading.
func NewReading(samples []Sample) *Reading {
	r := &Reading{Samples: samples, Values: make([]int, len(samples))}
	for i, s := range samples {
		r.Values[i] = s.Value
		r.Total += s.Value
	}
	return r
}

// Target describes what to read.
type Target struct {
	URL       string
	Root      string
	Selectors []string
}

// Config tunes the stabilization loop.
type Config struct {
	// Interval between samples of one counter. Default: 1s.
	Interval time.Duration
	// MaxTicks bounds the samples taken per counter. Default: 25.
	MaxTicks int
	// ElementTimeout is how long to wait for a counter to appear. Default: 10s.
	ElementTimeout time.Duration
	// ContainerTimeout is how long to wait for the root container. Default: 30s.
	ContainerTimeout time.Duration
	Logger           *slog.Logger
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.MaxTicks <= 0 {
		c.MaxTicks = 25
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = 10 * time.Second
	}
	if c.ContainerTimeout <= 0 {
		c.ContainerTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Reader samples counters on a Page.
type Reader struct {
	cfg Config
}

// New creates a Reader.
func New(cfg Config) *Reader {
	cfg.defaults()
	return &Reader{cfg: cfg}
}

// Read navigates to the target, waits for its root container and returns
// one sample per selector, in order. Only navigation and container failures
// are returned as errors; missing counters read as 0.
func (r *Reader) Read(ctx context.Context, page Page, target Target) (*Reading, error) {
	log := r.cfg.Logger

	if err := page.Navigate(ctx, target.URL); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNavigate, target.URL, err)
	}

	if target.Root != "" {
		if !page.WaitForElement(ctx, target.Root, r.cfg.ContainerTimeout) {
			return nil, fmt.Errorf("%w: %s after %s", ErrContainer, target.Root, r.cfg.ContainerTimeout)
		}
	}

	samples := make([]Sample, 0, len(target.Selectors))
	for _, sel := range target.Selectors {
		s := r.readOne(ctx, page, sel)
		log.Info("reader: sampled", "selector", sel, "value", s.Value,
			"found", s.Found, "stable", s.Stable, "ticks", s.Ticks)
		samples = append(samples, s)
	}
	return NewReading(samples), nil
}

func (r *Reader) readOne(ctx context.Context, page Page, selector string) Sample {
	if !page.WaitForElement(ctx, selector, r.cfg.ElementTimeout) {
		r.cfg.Logger.Warn("reader: element never appeared, using 0",
			"selector", selector, "timeout", r.cfg.ElementTimeout)
		return Sample{Selector: selector}
	}
	return r.Stabilize(ctx, page, selector)
}

// Stabilize samples selector until two consecutive numeric reads agree.
// Absent or non-numeric reads are skipped without resetting the streak.
// When the tick budget runs out (or ctx ends) the last numeric value seen is
// returned, or 0 when there was none.
func (r *Reader) Stabilize(ctx context.Context, page Page, selector string) Sample {
	s := Sample{Selector: selector}
	for tick := 1; tick <= r.cfg.MaxTicks; tick++ {
		if tick > 1 && !sleep(ctx, r.cfg.Interval) {
			break
		}
		s.Ticks = tick

		text, ok := page.ReadText(ctx, selector)
		if !ok {
			continue
		}
		v, ok := ParseCount(text)
		if !ok {
			r.cfg.Logger.Debug("reader: non-numeric text", "selector", selector, "text", text)
			continue
		}
		if s.Found && v == s.Value {
			s.Stable = true
			return s
		}
		s.Value, s.Found = v, true
	}
	return s
}

// ParseCount parses an unsigned decimal integer literal, ignoring
// surrounding whitespace.
func ParseCount(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(text, 10, 31)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
