package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLoggerToJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLoggerTo(&buf, "warn", "json")

	log.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("info record emitted below warn level: %q", buf.String())
	}

	log.Warn("boom", "k", "v")
	out := buf.String()
	for _, want := range []string{`"msg":"boom"`, `"k":"v"`, `"level":"WARN"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestNewLoggerToPretty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLoggerTo(&buf, "debug", "pretty")

	log.Debug("ws.accept", "session_id", "01X")
	out := buf.String()
	for _, want := range []string{"lvl=[DEBUG]", "msg=ws.accept", "session_id=01X"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, `"msg"`) {
		t.Fatalf("pretty format emitted JSON: %q", out)
	}
}
