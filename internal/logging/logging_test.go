package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	logger := New("error", "text")
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info enabled on an error-level logger")
	}
	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("error disabled on an error-level logger")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" {
		t.Error("unset request id should be empty")
	}
	ctx = WithRequestID(ctx, "req_42")
	if got := RequestID(ctx); got != "req_42" {
		t.Errorf("RequestID = %q", got)
	}
}

func TestLAnnotatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req_7")
	L(ctx).Info("resolving dispute", "dispute_id", "dsp_1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if rec["request_id"] != "req_7" {
		t.Errorf("request_id = %v", rec["request_id"])
	}
	if rec["dispute_id"] != "dsp_1" {
		t.Errorf("dispute_id = %v", rec["dispute_id"])
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext must never return nil")
	}
}
