// Package window decides whether the current wall-clock time falls inside a
// notification window, and whether that window was already notified.
package window

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock parses "15:04" (or "15") into a Clock.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if !strings.Contains(s, ":") {
		layout = "15"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("window: invalid time of day %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// ClockOf returns the time of day of t, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Label renders c the way windows are named by default: "3pm", "3:30pm", "12am".
func (c Clock) Label() string {
	h, m := int(c)/60, int(c)%60
	suffix := "am"
	if h >= 12 {
		suffix = "pm"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	if m == 0 {
		return fmt.Sprintf("%d%s", h12, suffix)
	}
	return fmt.Sprintf("%d:%02d%s", h12, m, suffix)
}

// Window is one notification window. A point window matches At ± Tolerance
// (both bounds inclusive); a range window matches [Start, End).
//
// Windows are checked per minute: seconds are dropped before matching, so
// 15:00 ±15m covers the wall-clock span [14:45:00, 15:16:00).
type Window struct {
	Label     string
	At        Clock
	Tolerance time.Duration
	Start     Clock
	End       Clock
	IsRange   bool
}

// Point builds a window centred on at. Empty label defaults to at.Label().
func Point(label string, at Clock, tolerance time.Duration) Window {
	if label == "" {
		label = at.Label()
	}
	return Window{Label: label, At: at, Tolerance: tolerance}
}

// Range builds a [start, end) window. end before start wraps past midnight.
func Range(label string, start, end Clock) Window {
	if label == "" {
		label = start.String() + "-" + end.String()
	}
	return Window{Label: label, Start: start, End: end, IsRange: true}
}

// Hour builds the whole-hour window h:00 to h+1:00 labelled like "3pm".
func Hour(h int) Window {
	start := Clock(h * 60)
	return Range(start.Label(), start, Clock((h+1)%24*60))
}

// Contains reports whether the time of day c is inside w.
func (w Window) Contains(c Clock) bool {
	if w.IsRange {
		switch {
		case w.Start == w.End:
			return true
		case w.Start < w.End:
			return c >= w.Start && c < w.End
		default:
			return c >= w.Start || c < w.End
		}
	}
	d := int(c) - int(w.At)
	if d < 0 {
		d = -d
	}
	if d > minutesPerDay/2 {
		d = minutesPerDay - d
	}
	return d <= int(w.Tolerance/time.Minute)
}

// Scope selects what the de-duplication marker compares.
type Scope string

const (
	// ScopeLabel compares the bare window label.
	ScopeLabel Scope = "label"
	// ScopeDay compares "YYYY-MM-DD/label" so each window fires once per day.
	ScopeDay Scope = "day"
)

// LabelStore returns the marker persisted after the last successful send.
type LabelStore interface {
	Get(ctx context.Context) (string, error)
}

// Decision reasons.
const (
	ReasonOutside   = "outside_window"
	ReasonDuplicate = "already_sent"
	ReasonInWindow  = "in_window"
	ReasonAlways    = "always"
)

// Decision is the gate's answer for one instant.
type Decision struct {
	Proceed bool
	Label   string
	// Key is the marker value to persist once delivery succeeds. Empty when
	// there is nothing to de-duplicate.
	Key    string
	Reason string
	At     time.Time
}

// Config configures a Gate.
type Config struct {
	// Location is the time zone windows are expressed in. Default: UTC.
	Location *time.Location
	Windows  []Window
	// Always proceeds at every instant; windows are ignored.
	Always bool
	Scope  Scope
	// Store holds the last-sent marker. Nil disables de-duplication.
	Store  LabelStore
	Logger *slog.Logger
}

// Gate evaluates windows and the persisted marker.
type Gate struct {
	cfg Config
}

// New creates a Gate.
func New(cfg Config) *Gate {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Scope == "" {
		cfg.Scope = ScopeLabel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gate{cfg: cfg}
}

// Location returns the gate's time zone.
func (g *Gate) Location() *time.Location { return g.cfg.Location }

// Match returns the label of the first window containing now. In always
// mode it matches with an empty label.
func (g *Gate) Match(now time.Time) (string, bool) {
	if g.cfg.Always {
		return "", true
	}
	c := ClockOf(now.In(g.cfg.Location))
	for _, w := range g.cfg.Windows {
		if w.Contains(c) {
			return w.Label, true
		}
	}
	return "", false
}

// Key returns the marker value for label at now according to the scope.
func (g *Gate) Key(now time.Time, label string) string {
	if label == "" {
		return ""
	}
	if g.cfg.Scope == ScopeDay {
		return now.In(g.cfg.Location).Format("2006-01-02") + "/" + label
	}
	return label
}

// Check matches now against the windows and the persisted marker. A marker
// that cannot be read is treated as absent.
func (g *Gate) Check(ctx context.Context, now time.Time) Decision {
	local := now.In(g.cfg.Location)
	label, ok := g.Match(local)
	if !ok {
		g.cfg.Logger.Info("window: outside notification windows",
			"now", local.Format(time.RFC3339), "tz", g.cfg.Location.String())
		return Decision{Reason: ReasonOutside, At: local}
	}

	d := Decision{Proceed: true, Label: label, Key: g.Key(local, label), Reason: ReasonInWindow, At: local}
	if g.cfg.Always {
		d.Reason = ReasonAlways
	}
	if d.Key == "" || g.cfg.Store == nil {
		return d
	}

	last, err := g.cfg.Store.Get(ctx)
	if err != nil {
		g.cfg.Logger.Warn("window: read marker failed, proceeding", "error", err)
		return d
	}
	if last == d.Key {
		g.cfg.Logger.Info("window: already sent for this window", "label", label, "marker", last)
		return Decision{Label: label, Key: d.Key, Reason: ReasonDuplicate, At: local}
	}
	return d
}
