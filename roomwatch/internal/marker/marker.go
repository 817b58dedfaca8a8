// Package marker persists the label of the last window that was notified.
//
// It is a single string read once at the start of a run and overwritten
// once after a confirmed delivery. Runs are expected not to overlap, so no
// backend takes a lock.
package marker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is a one-value key/value store.
type Store interface {
	// Get returns the stored marker, "" when nothing was stored yet.
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, value string) error
	Close() error
}

// DefaultFile is the marker path used when none is configured.
const DefaultFile = ".roomwatch-last-sent"

// File stores the marker as a one-line text file.
type File struct {
	path string
}

// NewFile creates a File store at path.
func NewFile(path string) *File {
	if path == "" {
		path = DefaultFile
	}
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

func (f *File) Get(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("marker: read %s: %w", f.path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *File) Set(_ context.Context, value string) error {
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("marker: mkdir: %w", err)
		}
	}
	if err := os.WriteFile(f.path, []byte(value+"\n"), 0o644); err != nil {
		return fmt.Errorf("marker: write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Close() error { return nil }

// Memory is an in-process Store for tests and dry runs.
type Memory struct {
	mu    sync.Mutex
	value string
	sets  int
}

// NewMemory creates a Memory store holding initial.
func NewMemory(initial string) *Memory {
	return &Memory{value: initial}
}

func (m *Memory) Get(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, nil
}

func (m *Memory) Set(_ context.Context, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = value
	m.sets++
	return nil
}

// Sets returns how many times Set was called.
func (m *Memory) Sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

func (m *Memory) Close() error { return nil }

// Nop never remembers anything; every in-window run proceeds.
type Nop struct{}

func (Nop) Get(context.Context) (string, error) { return "", nil }
func (Nop) Set(context.Context, string) error { return nil }
func (Nop) Close() error { return nil }
