package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPush(t *testing.T) {
	// WHAT: a run is PUT to the job's group in text exposition format.
	var method, path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := New(srv.URL).Push(context.Background(), Run{
		Total:     7,
		Selectors: []string{"#leftroom_0", "#leftroom_4"},
		Values:    []int{4, 3},
		Success:   true,
		At:        time.Unix(1700000000, 0),
	})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/roomwatch" {
		t.Errorf("path = %s", path)
	}
	// The default request format is protobuf delimited; metric names still
	// appear verbatim in the payload.
	for _, name := range []string{
		"roomwatch_rooms_available",
		"roomwatch_last_run_timestamp_seconds",
		"roomwatch_run_success",
		"roomwatch_selector_value",
		"#leftroom_4",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("payload missing %q", name)
		}
	}
}

func TestPush_InstanceGrouping(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := New(srv.URL, WithJob("rooms"), WithInstance("hollywood"))
	if err := p.Push(context.Background(), Run{}); err != nil {
		t.Fatal(err)
	}
	if path != "/metrics/job/rooms/instance/hollywood" {
		t.Errorf("path = %s", path)
	}
}

func TestPush_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := New(srv.URL).Push(context.Background(), Run{Total: 1}); err == nil {
		t.Fatal("expected error on 500")
	}
}
