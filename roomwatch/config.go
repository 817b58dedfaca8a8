package roomwatch

import (
	"github.com/hazyhaar/roomwatch/roomwatch/internal/config"
)

// Config is the top-level roomwatch configuration. Re-exported from internal.
type Config = config.Config

// TargetConfig is the page and the counters to read.
type TargetConfig = config.TargetConfig

// ScheduleConfig controls notification windows.
type ScheduleConfig = config.ScheduleConfig

// WindowConfig defines one notification window.
type WindowConfig = config.WindowConfig

// BrowserConfig selects how the page is loaded.
type BrowserConfig = config.BrowserConfig

// SinkConfig selects the notifiers.
type SinkConfig = config.SinkConfig

// MarkerConfig selects the last-sent marker backend.
type MarkerConfig = config.MarkerConfig

// MetricsConfig enables the Pushgateway push.
type MetricsConfig = config.MetricsConfig

// LoadConfig reads defaults, the optional file at path and ROOMWATCH_*
// environment variables. Errors match ErrConfig.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}
