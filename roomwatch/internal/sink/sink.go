// Package sink delivers the computed room total to an external endpoint.
//
// Every sink performs exactly one attempt per Send. Retrying is left to the
// next scheduled invocation, which only happens while the window's marker
// is still unwritten.
package sink

import (
	"context"
	"fmt"
	"time"
)

// Notification is what a run hands to its sink.
type Notification struct {
	RunID     string    `json:"run_id"`
	Total     int       `json:"total"`
	Values    []int     `json:"values"`
	Label     string    `json:"label,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the human line sent everywhere: "7 rooms available".
func (n Notification) Summary() string {
	return fmt.Sprintf("%d rooms available", n.Total)
}

// Sink is an output backend.
type Sink interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	Close() error
}
