package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/roomwatch/roomwatch"
)

// staticPage serves fixed counter texts and never changes.
type staticPage struct{ texts map[string]string }

func (p staticPage) Navigate(context.Context, string) error { return nil }

func (p staticPage) WaitForElement(_ context.Context, sel string, _ time.Duration) bool {
	if sel == "body" {
		return true
	}
	_, ok := p.texts[sel]
	return ok
}

func (p staticPage) ReadText(_ context.Context, sel string) (string, bool) {
	v, ok := p.texts[sel]
	return v, ok
}

func (p staticPage) Close() error { return nil }

func pageOpener() roomwatch.Option {
	page := staticPage{texts: map[string]string{"#leftroom_0": "4", "#leftroom_4": "3"}}
	return roomwatch.WithPageOpener(func(context.Context) (roomwatch.Page, error) { return page, nil })
}

func clockAt(t *testing.T, rfc3339 string) roomwatch.Option {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		t.Fatal(err)
	}
	return roomwatch.WithClock(func() time.Time { return ts })
}

func writeConfig(t *testing.T, marker string) string {
	t.Helper()
	dir := t.TempDir()
	body := "sink:\n  kinds: [stdout]\nmarker:\n  backend: file\n  path: " + filepath.Join(dir, "last") + "\n"
	if marker != "" {
		os.WriteFile(filepath.Join(dir, "last"), []byte(marker+"\n"), 0o644)
	}
	return writeFile(t, dir, body)
}

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "roomwatch.yaml")
	body += "reader:\n  interval: 1ms\n  element_timeout: 10ms\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func cli(t *testing.T, opts []roomwatch.Option, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut, opts...)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func execute(t *testing.T, args ...string) (checkOutput, error) {
	t.Helper()
	out, err := cli(t, nil, args...)
	var got checkOutput
	if err == nil {
		if jerr := json.Unmarshal([]byte(out), &got); jerr != nil {
			t.Fatalf("decode %q: %v", out, jerr)
		}
	}
	return got, err
}

func TestCheck_InWindow(t *testing.T) {
	got, err := execute(t, "check", "--config", writeConfig(t, ""), "--at", "2026-10-17T15:05:00-07:00")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Proceed || got.Label != "3pm" || got.Reason != "in_window" || got.Marker != "3pm" {
		t.Errorf("check = %+v", got)
	}
}

func TestCheck_AlreadySent(t *testing.T) {
	// WHAT: the file marker from a previous run suppresses the window.
	got, err := execute(t, "check", "--config", writeConfig(t, "3pm"), "--at", "2026-10-17T22:30:00Z")
	if err != nil {
		t.Fatal(err)
	}
	if got.Proceed || got.Reason != "already_sent" {
		t.Errorf("check = %+v", got)
	}
}

func TestCheck_Outside(t *testing.T) {
	got, err := execute(t, "check", "--config", writeConfig(t, ""), "--at", "2026-10-17T10:00:00-07:00")
	if err != nil {
		t.Fatal(err)
	}
	if got.Proceed || got.Reason != "outside_window" {
		t.Errorf("check = %+v", got)
	}
}

func TestCheck_BadAt(t *testing.T) {
	_, err := execute(t, "check", "--config", writeConfig(t, ""), "--at", "tomorrow")
	if roomwatch.ExitCode(err) != roomwatch.ExitConfig {
		t.Fatalf("err = %v, exit = %d", err, roomwatch.ExitCode(err))
	}
}

func TestRun_BadConfigExitCode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("browser: {mode: telepathy}\nsink: {kinds: [stdout]}\n"), 0o644)
	_, err := execute(t, "run", "--config", path)
	if !errors.Is(err, roomwatch.ErrConfig) || roomwatch.ExitCode(err) != 2 {
		t.Fatalf("err = %v", err)
	}
}

func TestPoll(t *testing.T) {
	const inWindow = "2026-10-17T15:05:00-07:00"
	cases := []struct {
		name       string
		args       []string
		now        string
		wantOut    string
		wantMarker string
	}{
		// WHAT: a bare invocation is a run, the natural cron line.
		{"bare root in window", nil, inWindow, `"summary":"7 rooms available"`, "3pm"},
		{"run in window", []string{"run"}, inWindow, `"summary":"7 rooms available"`, "3pm"},
		// WHY: a dry run must never consume the window.
		{"dry run", []string{"run", "--dry-run"}, inWindow, `"type":"notification"`, ""},
		{"bare root outside window", nil, "2026-10-17T10:00:00-07:00", "", ""},
		{"forced outside window", []string{"--force"}, "2026-10-17T10:00:00-07:00", `"summary":"7 rooms available"`, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := writeConfig(t, "")
			args := append(append([]string{}, c.args...), "--config", cfg)
			out, err := cli(t, []roomwatch.Option{pageOpener(), clockAt(t, c.now)}, args...)
			if err != nil {
				t.Fatal(err)
			}
			if c.wantOut == "" && out != "" {
				t.Errorf("stdout = %q, want nothing", out)
			}
			if !strings.Contains(out, c.wantOut) {
				t.Errorf("stdout = %q, want %s", out, c.wantOut)
			}
			b, _ := os.ReadFile(filepath.Join(filepath.Dir(cfg), "last"))
			if got := strings.TrimSpace(string(b)); got != c.wantMarker {
				t.Errorf("marker = %q, want %q", got, c.wantMarker)
			}
		})
	}
}

func TestRead(t *testing.T) {
	out, err := cli(t, []roomwatch.Option{pageOpener()}, "read", "--config", writeConfig(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	var got readOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Total != 7 || len(got.Samples) != 2 || !got.Samples[0].Stable {
		t.Errorf("read = %+v", got)
	}
}

func TestRun_MissingWebhookURL(t *testing.T) {
	// WHAT: the default webhook sink without a URL is a configuration error.
	t.Setenv("ROOMWATCH_SINK__WEBHOOK__URL", "")
	os.Unsetenv("ROOMWATCH_SINK__WEBHOOK__URL")
	dir := t.TempDir()
	cfg := writeFile(t, dir, "sink:\n  kinds: [webhook]\nmarker:\n  backend: none\n")

	for _, args := range [][]string{{"--config", cfg}, {"run", "--config", cfg}, {"read", "--config", cfg}} {
		_, err := cli(t, []roomwatch.Option{pageOpener()}, args...)
		if code := roomwatch.ExitCode(err); code != roomwatch.ExitConfig {
			t.Errorf("%v: exit = %d (err = %v), want %d", args, code, err, roomwatch.ExitConfig)
		}
	}
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "sink:\n  kinds: [stdout]\nmarker:\n  backend: sqlite\n  path: "+filepath.Join(dir, "rw.db")+"\n")
	opts := []roomwatch.Option{pageOpener(), clockAt(t, "2026-10-17T18:02:00-07:00")}

	if _, err := cli(t, opts, "--config", cfg); err != nil {
		t.Fatal(err)
	}
	out, err := cli(t, opts, "history", "--config", cfg, "--limit", "5")
	if err != nil {
		t.Fatal(err)
	}
	var got []historyOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got) != 1 || got[0].Status != "sent" || got[0].Label != "6pm" || got[0].Total != 7 {
		t.Errorf("history = %+v", got)
	}

	if _, err := cli(t, nil, "history", "--config", writeConfig(t, "")); roomwatch.ExitCode(err) != roomwatch.ExitConfig {
		t.Errorf("history on file marker: err = %v", err)
	}
}
