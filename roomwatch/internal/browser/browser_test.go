package browser

import (
	"context"
	"testing"
)

func TestShouldBlock(t *testing.T) {
	block := map[string]bool{"images": true, "fonts": true}

	cases := []struct {
		resType string
		want    bool
	}{
		{"Image", true},
		{"Font", true},
		{"Media", false},
		{"Stylesheet", false},
		{"Document", false},
		{"Script", false},
	}
	for _, c := range cases {
		if got := shouldBlock(block, c.resType); got != c.want {
			t.Errorf("shouldBlock(%q) = %v, want %v", c.resType, got, c.want)
		}
	}
}

func TestShouldBlock_RawTypeName(t *testing.T) {
	// Names outside the plural aliases match the CDP type directly.
	if !shouldBlock(map[string]bool{"xhr": true}, "XHR") {
		t.Error("expected xhr to be blocked")
	}
}

func TestParseMode(t *testing.T) {
	if ParseMode("headful") != ModeHeadful {
		t.Error("headful")
	}
	for _, s := range []string{"", "headless", "bogus"} {
		if ParseMode(s) != ModeHeadless {
			t.Errorf("ParseMode(%q): want headless", s)
		}
	}
	if ModeHeadful.String() != "headful" || ModeHeadless.String() != "headless" {
		t.Error("Mode.String mismatch")
	}
}

func TestManager_ClosedRefusesStart(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := m.Start(context.Background()); err == nil {
		t.Fatal("Start after Close: expected error")
	}
	if m.Browser() != nil {
		t.Error("Browser should be nil after Close")
	}
}

func TestOpenTab_NoBrowser(t *testing.T) {
	if _, err := OpenTab(NewManager(Config{})); err == nil {
		t.Fatal("OpenTab without Start: expected error")
	}
}

func TestConfigDefaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.Mode != ModeHeadless || m.cfg.XvfbDisplay != ":99" || m.cfg.Logger == nil {
		t.Fatalf("defaults not applied: %+v", m.cfg)
	}
}
