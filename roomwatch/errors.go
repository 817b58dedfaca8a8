package roomwatch

import (
	"errors"

	"github.com/hazyhaar/roomwatch/roomwatch/internal/config"
)

var (
	// ErrConfig is returned for invalid or unreadable configuration.
	ErrConfig = config.ErrInvalid
	// ErrPageLoad is returned when the page or its root container cannot be
	// loaded.
	ErrPageLoad = errors.New("page load failed")
	// ErrDelivery is returned when the notification was not accepted.
	ErrDelivery = errors.New("delivery failed")
)

// Exit codes returned by ExitCode.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitConfig   = 2
	ExitDelivery = 3
)

// ExitCode maps a run error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfig):
		return ExitConfig
	case errors.Is(err, ErrDelivery):
		return ExitDelivery
	default:
		return ExitFailure
	}
}
