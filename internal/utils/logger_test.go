package utils

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerToFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn", true)
	logger.Info("dropped")
	logger.Warn("kept", slog.String("phase", "phase1"))

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"phase":"phase1"`) {
		t.Fatalf("expected JSON record, got %s", out)
	}
}

func TestNewLoggerDefaultsToStdout(t *testing.T) {
	logger := NewLogger("debug", false)
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("expected debug level enabled")
	}
}
