package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
)

// Stdout writes JSON lines to an io.Writer (default os.Stdout). Used for
// dry runs and local debugging.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

type envelope struct {
	Type    string       `json:"type"`
	Summary string       `json:"summary"`
	Data    Notification `json:"data"`
}

func (s *Stdout) Name() string { return "stdout" }

func (s *Stdout) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: "notification", Summary: n.Summary(), Data: n})
}

func (s *Stdout) Close() error { return nil }
