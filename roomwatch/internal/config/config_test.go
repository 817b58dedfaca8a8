package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const hookURL = "https://maker.example.com/trigger/rooms/with/key/abc"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// WHAT: with only the webhook URL supplied, defaults reproduce the
	// original deployment.
	t.Setenv("ROOMWATCH_SINK__WEBHOOK__URL", hookURL)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target.URL != "https://live.ipms247.com/booking/book-rooms-hollywoodviphotel" {
		t.Errorf("url = %q", cfg.Target.URL)
	}
	if diff := cmp.Diff([]string{"#leftroom_0", "#leftroom_4"}, cfg.Target.Selectors); diff != "" {
		t.Errorf("selectors (-want +got):\n%s", diff)
	}
	if cfg.Reader.Interval != time.Second || cfg.Reader.MaxTicks != 25 {
		t.Errorf("reader = %+v", cfg.Reader)
	}
	if cfg.Sink.Webhook.URL != hookURL || cfg.Sink.Webhook.Timeout != 15*time.Second {
		t.Errorf("webhook = %+v", cfg.Sink.Webhook)
	}

	loc, err := cfg.Location()
	if err != nil || loc.String() != "America/Los_Angeles" {
		t.Fatalf("Location = %v, %v", loc, err)
	}
	ws, err := cfg.Windows()
	if err != nil {
		t.Fatal(err)
	}
	var labels []string
	for _, w := range ws {
		labels = append(labels, w.Label)
	}
	if diff := cmp.Diff([]string{"3pm", "6pm", "9pm"}, labels); diff != "" {
		t.Errorf("labels (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingWebhookURL(t *testing.T) {
	_, err := Load("")
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, "roomwatch.yaml", `
target:
  url: https://hotel.example.com/book
  root: "#rooms"
  selectors: ["#a", "#b", "#c"]
schedule:
  timezone: Europe/Paris
  scope: day
  windows:
    - at: "09:30"
      tolerance: 5m
    - start: "22:00"
      end: "02:00"
      label: night
reader:
  interval: 250ms
  max_ticks: 10
sink:
  kinds: [mailrelay, stdout]
  subject: "Rooms at {{.Label}}"
  mailrelay:
    api_key: key-1
    domain: mg.example.com
    from: rooms@example.com
    to: [ops@example.com]
marker:
  backend: sqlite
  path: /tmp/roomwatch.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Target.Root != "#rooms" || len(cfg.Target.Selectors) != 3 {
		t.Errorf("target = %+v", cfg.Target)
	}
	if cfg.Schedule.Scope != "day" || cfg.Reader.Interval != 250*time.Millisecond {
		t.Errorf("schedule/reader = %+v %+v", cfg.Schedule, cfg.Reader)
	}
	if cfg.Sink.MailRelay.Endpoint != "https://api.mailgun.net" {
		t.Errorf("endpoint default lost: %q", cfg.Sink.MailRelay.Endpoint)
	}
	ws, err := cfg.Windows()
	if err != nil {
		t.Fatal(err)
	}
	if len(ws) != 2 || ws[0].Label != "9:30am" || ws[0].Tolerance != 5*time.Minute {
		t.Errorf("point window = %+v", ws[0])
	}
	if !ws[1].IsRange || ws[1].Label != "night" {
		t.Errorf("range window = %+v", ws[1])
	}
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "roomwatch.json", `{
		"schedule": {"always": true, "windows": []},
		"sink": {"kinds": ["stdout"]},
		"marker": {"backend": "none"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Schedule.Always || cfg.Marker.Backend != MarkerNone {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	// WHAT: env wins over the file, __ nests and list keys split on commas.
	path := writeFile(t, "roomwatch.yaml", "sink:\n  kinds: [stdout]\n")
	t.Setenv("ROOMWATCH_TARGET__SELECTORS", "#x, #y")
	t.Setenv("ROOMWATCH_SINK__KINDS", "smtp")
	t.Setenv("ROOMWATCH_SINK__SMTP__HOST", "smtp.example.com")
	t.Setenv("ROOMWATCH_SINK__SMTP__FROM", "rooms@example.com")
	t.Setenv("ROOMWATCH_SINK__SMTP__TO", "a@example.com,b@example.com")
	t.Setenv("ROOMWATCH_READER__MAX_TICKS", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"#x", "#y"}, cfg.Target.Selectors); diff != "" {
		t.Errorf("selectors (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"smtp"}, cfg.Sink.Kinds); diff != "" {
		t.Errorf("kinds (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a@example.com", "b@example.com"}, cfg.Sink.SMTP.To); diff != "" {
		t.Errorf("to (-want +got):\n%s", diff)
	}
	if cfg.Reader.MaxTicks != 5 || cfg.Sink.SMTP.Port != 587 {
		t.Errorf("max_ticks=%d port=%d", cfg.Reader.MaxTicks, cfg.Sink.SMTP.Port)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad timezone":    "sink: {kinds: [stdout]}\nschedule: {timezone: Mars/Olympus}\n",
		"bad mode":        "sink: {kinds: [stdout]}\nbrowser: {mode: telepathy}\n",
		"bad window":      "sink: {kinds: [stdout]}\nschedule: {windows: [{at: '25:00'}]}\n",
		"ambiguous":       "sink: {kinds: [stdout]}\nschedule: {windows: [{hour: 3, at: '03:00'}]}\n",
		"no windows":      "sink: {kinds: [stdout]}\nschedule: {windows: []}\n",
		"no selectors":    "sink: {kinds: [stdout]}\ntarget: {selectors: []}\n",
		"unknown sink":    "sink: {kinds: [pager]}\n",
		"relay no key":    "sink: {kinds: [mailrelay], mailrelay: {domain: mg.example.com, from: a, to: [a@example.com]}}\n",
		"redis no addr":   "sink: {kinds: [stdout]}\nmarker: {backend: redis}\n",
		"bad hour":        "sink: {kinds: [stdout]}\nschedule: {windows: [{hour: 24}]}\n",
		"bad max ticks":   "sink: {kinds: [stdout]}\nreader: {max_ticks: 1}\n",
		"bad pushgateway": "sink: {kinds: [stdout]}\nmetrics: {pushgateway: 'not a url'}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", body))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := Load(writeFile(t, "c.toml", "x = 1"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v", err)
	}
}

func TestEnvValue(t *testing.T) {
	k, v := envValue("ROOMWATCH_SINK__MAILRELAY__API_KEY", "key")
	if k != "sink.mailrelay.api_key" || v != "key" {
		t.Errorf("got %q %v", k, v)
	}
	k, v = envValue("ROOMWATCH_SINK__MAILRELAY__TO", "a@x.io, ,b@x.io")
	if diff := cmp.Diff([]string{"a@x.io", "b@x.io"}, v); k != "sink.mailrelay.to" || diff != "" {
		t.Errorf("got %q %v", k, v)
	}
}
