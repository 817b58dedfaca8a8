// Package config loads roomwatch configuration.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML or JSON file, then ROOMWATCH_* environment variables. The result is
// validated before anything touches the network.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hazyhaar/roomwatch/roomwatch/internal/window"
)

// ErrInvalid wraps every load or validation failure.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels: ROOMWATCH_SINK__WEBHOOK__URL sets sink.webhook.url.
const EnvPrefix = "ROOMWATCH_"

// Config is the top-level roomwatch configuration.
type Config struct {
	Target   TargetConfig   `koanf:"target"`
	Schedule ScheduleConfig `koanf:"schedule"`
	Reader   ReaderConfig   `koanf:"reader"`
	Browser  BrowserConfig  `koanf:"browser"`
	Sink     SinkConfig     `koanf:"sink"`
	Marker   MarkerConfig   `koanf:"marker"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// TargetConfig is the page and counters to read.
type TargetConfig struct {
	URL       string   `koanf:"url" validate:"required,url"`
	Root      string   `koanf:"root" validate:"required"`
	Selectors []string `koanf:"selectors" validate:"min=1,dive,required"`
}

// ScheduleConfig controls the window gate.
type ScheduleConfig struct {
	Timezone string `koanf:"timezone" validate:"required"`
	// Always notifies on every run, ignoring windows.
	Always  bool           `koanf:"always"`
	Scope   string         `koanf:"scope" validate:"oneof=label day"`
	Windows []WindowConfig `koanf:"windows" validate:"dive"`
}

// WindowConfig is one window. Exactly one of Hour, At or Start/End is set.
type WindowConfig struct {
	Label     string        `koanf:"label"`
	Hour      *int          `koanf:"hour" validate:"omitempty,min=0,max=23"`
	At        string        `koanf:"at"`
	Tolerance time.Duration `koanf:"tolerance" validate:"min=0"`
	Start     string        `koanf:"start"`
	End       string        `koanf:"end"`
}

// ReaderConfig tunes counter stabilization.
type ReaderConfig struct {
	Interval         time.Duration `koanf:"interval" validate:"gt=0"`
	MaxTicks         int           `koanf:"max_ticks" validate:"min=2,max=1000"`
	ElementTimeout   time.Duration `koanf:"element_timeout" validate:"gt=0"`
	ContainerTimeout time.Duration `koanf:"container_timeout" validate:"gt=0"`
}

// BrowserConfig selects how the page is loaded.
type BrowserConfig struct {
	// Mode is browser (Chrome), http (static fetch) or auto (static first,
	// Chrome when the static page lacks the counters).
	Mode             string   `koanf:"mode" validate:"oneof=browser http auto"`
	Display          string   `koanf:"display" validate:"oneof=headless headful"`
	Remote           string   `koanf:"remote"`
	Bin              string   `koanf:"bin"`
	NoSandbox        bool     `koanf:"no_sandbox"`
	ResourceBlocking []string `koanf:"resource_blocking"`
	XvfbDisplay      string   `koanf:"xvfb_display"`
	UserAgent        string   `koanf:"user_agent"`
	CloudflareBypass bool     `koanf:"cloudflare_bypass"`
}

// Sink kinds.
const (
	SinkWebhook   = "webhook"
	SinkMailRelay = "mailrelay"
	SinkSMTP      = "smtp"
	SinkStdout    = "stdout"
)

// SinkConfig selects one or more notifiers. Only the settings of the
// selected kinds are validated.
type SinkConfig struct {
	Kinds     []string        `koanf:"kinds" validate:"min=1,dive,oneof=webhook mailrelay smtp stdout"`
	Subject   string          `koanf:"subject"`
	HTML      string          `koanf:"html"`
	Webhook   WebhookConfig   `koanf:"webhook" validate:"-"`
	MailRelay MailRelayConfig `koanf:"mailrelay" validate:"-"`
	SMTP      SMTPConfig      `koanf:"smtp" validate:"-"`
}

// WebhookConfig is the JSON webhook notifier.
type WebhookConfig struct {
	URL     string        `koanf:"url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
}

// MailRelayConfig is the HTTP mail relay notifier.
type MailRelayConfig struct {
	Endpoint string        `koanf:"endpoint" validate:"omitempty,url"`
	APIKey   string        `koanf:"api_key" validate:"required"`
	Domain   string        `koanf:"domain" validate:"required,hostname"`
	From     string        `koanf:"from" validate:"required"`
	To       []string      `koanf:"to" validate:"min=1,dive,email"`
	Timeout  time.Duration `koanf:"timeout" validate:"min=0"`
}

// SMTPConfig is the SMTP notifier.
type SMTPConfig struct {
	Host     string   `koanf:"host" validate:"required,hostname|ip"`
	Port     int      `koanf:"port" validate:"min=0,max=65535"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
	From     string   `koanf:"from" validate:"required"`
	To       []string `koanf:"to" validate:"min=1,dive,email"`
}

// Marker backends.
const (
	MarkerFile   = "file"
	MarkerSQLite = "sqlite"
	MarkerRedis  = "redis"
	MarkerNone   = "none"
)

// MarkerConfig selects where the last-sent window is remembered.
type MarkerConfig struct {
	Backend string      `koanf:"backend" validate:"oneof=file sqlite redis none"`
	Path    string      `koanf:"path"`
	Redis   RedisConfig `koanf:"redis" validate:"-"`
}

// RedisConfig is the Redis marker backend.
type RedisConfig struct {
	Addr     string        `koanf:"addr" validate:"required,hostname_port"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db" validate:"min=0"`
	Key      string        `koanf:"key"`
	TTL      time.Duration `koanf:"ttl" validate:"min=0"`
}

// MetricsConfig enables the Pushgateway push.
type MetricsConfig struct {
	Pushgateway string `koanf:"pushgateway" validate:"omitempty,url"`
	Job         string `koanf:"job"`
	Instance    string `koanf:"instance"`
}

// Defaults returns the built-in configuration as flat koanf keys.
func Defaults() map[string]any {
	return map[string]any{
		"target.url":                "https://live.ipms247.com/booking/book-rooms-hollywoodviphotel",
		"target.root":               "body",
		"target.selectors":          []string{"#leftroom_0", "#leftroom_4"},
		"schedule.timezone":         "America/Los_Angeles",
		"schedule.scope":            "label",
		"schedule.windows":          []any{map[string]any{"hour": 15}, map[string]any{"hour": 18}, map[string]any{"hour": 21}},
		"reader.interval":           "1s",
		"reader.max_ticks":          25,
		"reader.element_timeout":    "10s",
		"reader.container_timeout":  "30s",
		"browser.mode":              "browser",
		"browser.display":           "headless",
		"browser.xvfb_display":      ":99",
		"browser.resource_blocking": []string{"images", "fonts", "media"},
		"browser.cloudflare_bypass": true,
		"sink.kinds":                []string{SinkWebhook},
		"sink.webhook.timeout":      "15s",
		"sink.mailrelay.endpoint":   "https://api.mailgun.net",
		"sink.mailrelay.timeout":    "15s",
		"sink.smtp.port":            587,
		"marker.backend":            MarkerFile,
		"marker.path":               ".roomwatch-last-sent",
		"marker.redis.key":          "roomwatch:last_sent",
		"metrics.job":               "roomwatch",
	}
}

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"selectors":         true,
	"to":                true,
	"kinds":             true,
	"resource_blocking": true,
}

// envKey maps ROOMWATCH_SINK__MAILRELAY__API_KEY to sink.mailrelay.api_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func envValue(key, value string) (string, any) {
	k := envKey(key)
	leaf := k[strings.LastIndex(k, ".")+1:]
	if !listKeys[leaf] {
		return k, value
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return k, items
}

// Load builds the configuration from defaults, the file at path (skipped
// when path is empty) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, value := range Defaults() {
		k.Set(key, value)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("%w: load %s: %v", ErrInvalid, path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("%w: load env: %v", ErrInvalid, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", ErrInvalid, filepath.Ext(path))
	}
}

var validate = validator.New()

// Validate checks struct constraints, the selected sinks and marker
// backend, the time zone and every window.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for _, kind := range c.Sink.Kinds {
		var err error
		switch kind {
		case SinkWebhook:
			err = validate.Struct(c.Sink.Webhook)
		case SinkMailRelay:
			err = validate.Struct(c.Sink.MailRelay)
		case SinkSMTP:
			err = validate.Struct(c.Sink.SMTP)
		}
		if err != nil {
			return fmt.Errorf("%w: sink %s: %v", ErrInvalid, kind, err)
		}
	}
	if c.Marker.Backend == MarkerRedis {
		if err := validate.Struct(c.Marker.Redis); err != nil {
			return fmt.Errorf("%w: marker redis: %v", ErrInvalid, err)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.Windows(); err != nil {
		return err
	}
	if !c.Schedule.Always && len(c.Schedule.Windows) == 0 {
		return fmt.Errorf("%w: schedule: no windows and always is false", ErrInvalid)
	}
	return nil
}

// Location loads the schedule time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalid, c.Schedule.Timezone, err)
	}
	return loc, nil
}

// Windows converts the configured windows.
func (c *Config) Windows() ([]window.Window, error) {
	out := make([]window.Window, 0, len(c.Schedule.Windows))
	for i, wc := range c.Schedule.Windows {
		w, err := wc.build()
		if err != nil {
			return nil, fmt.Errorf("%w: schedule.windows[%d]: %v", ErrInvalid, i, err)
		}
		out = append(out, w)
	}
	return out, nil
}

func (wc WindowConfig) build() (window.Window, error) {
	switch {
	case wc.Hour != nil:
		if wc.At != "" || wc.Start != "" || wc.End != "" {
			return window.Window{}, errors.New("hour cannot be combined with at or start/end")
		}
		w := window.Hour(*wc.Hour)
		if wc.Label != "" {
			w.Label = wc.Label
		}
		return w, nil
	case wc.At != "":
		if wc.Start != "" || wc.End != "" {
			return window.Window{}, errors.New("at cannot be combined with start/end")
		}
		at, err := window.ParseClock(wc.At)
		if err != nil {
			return window.Window{}, err
		}
		return window.Point(wc.Label, at, wc.Tolerance), nil
	case wc.Start != "" && wc.End != "":
		start, err := window.ParseClock(wc.Start)
		if err != nil {
			return window.Window{}, err
		}
		end, err := window.ParseClock(wc.End)
		if err != nil {
			return window.Window{}, err
		}
		return window.Range(wc.Label, start, end), nil
	default:
		return window.Window{}, errors.New("one of hour, at or start/end is required")
	}
}
