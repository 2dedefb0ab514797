package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestSlogJSONBackend(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})
	log.With(String("component", "engine")).Info(context.Background(), "frame stepped", Int("frame", 7))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "frame stepped" || rec["component"] != "engine" || rec["frame"] != 7.0 {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestZerologJSONBackend(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Backend: "zerolog", Output: &buf})
	log.Debug(context.Background(), "hidden")
	log.With(String("transport", "ws")).Warn(context.Background(), "subscriber slow", Error(errors.New("buffer full")))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record above debug level, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["level"] != "warn" || rec["message"] != "subscriber slow" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["transport"] != "ws" || rec["error"] != "buffer full" {
		t.Fatalf("fields missing: %v", rec)
	}
}

func TestZerologConsoleBackend(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Backend: "ZEROLOG", Output: &buf})
	log.Info(context.Background(), "hello", String("body", "mars"))
	if out := buf.String(); !strings.Contains(out, "hello") || !strings.Contains(out, "body=mars") {
		t.Fatalf("console output = %q", out)
	}
}

func TestSubscriberLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})
	ctx, log, id := WithSubscriberLogger(context.Background(), base)
	if id == "" || SubscriberIDFromContext(ctx) != id {
		t.Fatalf("subscriber id not stored: %q vs %q", id, SubscriberIDFromContext(ctx))
	}
	log.Info(ctx, "subscribed")
	if !strings.Contains(buf.String(), id) {
		t.Fatalf("log line missing subscriber_id: %s", buf.String())
	}

	_, _, other := WithSubscriberLogger(context.Background(), nil)
	if other == id {
		t.Fatalf("subscriber ids must be unique")
	}
}

func TestContextLogger(t *testing.T) {
	ctx := context.Background()
	if LoggerFromContext(ctx) != nil {
		t.Fatalf("empty context returned a logger")
	}
	if LoggerFromContext(ContextWithLogger(ctx, nil)) == nil {
		t.Fatalf("ContextWithLogger(nil) should store a noop logger")
	}
	if SubscriberIDFromContext(ctx) != "" {
		t.Fatalf("empty context returned a subscriber id")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		" error ": LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
