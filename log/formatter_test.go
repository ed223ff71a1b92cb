package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// fixed timestamp used across tests for deterministic output.
var testTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func makeRecord(level slog.Level, msg string, args ...any) slog.Record {
	r := slog.NewRecord(testTime, level, msg, 0)
	r.Add(args...)
	return r
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		" info ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := LevelFromString(in); got != want {
			t.Errorf("LevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConsoleHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelDebug, false)

	if err := h.Handle(context.Background(), makeRecord(slog.LevelInfo, "synced", "blocks", 42, "batch", 10)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := buf.String()
	want := "[2024-01-01 12:00:00] INFO  synced batch=10 blocks=42\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestConsoleHandler_FieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelDebug, false)

	r := makeRecord(slog.LevelWarn, "retry", "zeta", 1, "alpha", 2, "mid", 3)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "alpha=2 mid=3 zeta=1") {
		t.Fatalf("fields not sorted: %q", got)
	}
}

func TestConsoleHandler_LevelPadding(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelDebug, false)

	for _, tc := range []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "DEBUG msg"},
		{slog.LevelInfo, "INFO  msg"},
		{slog.LevelWarn, "WARN  msg"},
		{slog.LevelError, "ERROR msg"},
	} {
		buf.Reset()
		if err := h.Handle(context.Background(), makeRecord(tc.level, "msg")); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if !strings.Contains(buf.String(), tc.want) {
			t.Errorf("level %v: got %q, want substring %q", tc.level, buf.String(), tc.want)
		}
	}
}

func TestConsoleHandler_Color(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelDebug, true)

	if err := h.Handle(context.Background(), makeRecord(slog.LevelError, "boom")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, ansiRed) || !strings.Contains(got, ansiReset) {
		t.Fatalf("expected ANSI color codes in %q", got)
	}
}

func TestConsoleHandler_Enabled(t *testing.T) {
	h := NewConsoleHandler(&bytes.Buffer{}, slog.LevelWarn, false)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("error should be enabled at warn level")
	}
}

func TestConsoleHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := NewConsoleHandler(&buf, slog.LevelDebug, false)
	child := base.WithAttrs([]slog.Attr{slog.String("module", "indexer")})

	if err := child.Handle(context.Background(), makeRecord(slog.LevelInfo, "ready")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(buf.String(), "module=indexer") {
		t.Fatalf("base attr missing: %q", buf.String())
	}

	// The parent handler is unaffected.
	buf.Reset()
	if err := base.Handle(context.Background(), makeRecord(slog.LevelInfo, "ready")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if strings.Contains(buf.String(), "module=") {
		t.Fatalf("parent handler gained attrs: %q", buf.String())
	}
}

func TestConsoleHandler_ThroughLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithHandler(NewConsoleHandler(&buf, slog.LevelDebug, false))

	l.Module("syncdriver").Warn("range error, halving batch", "batch", 50)

	got := buf.String()
	if !strings.Contains(got, "WARN") || !strings.Contains(got, "module=syncdriver") || !strings.Contains(got, "batch=50") {
		t.Fatalf("unexpected line: %q", got)
	}
}

func TestConsoleHandler_CustomTimeFormat(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelDebug, false)
	h.TimeFormat = time.RFC3339

	if err := h.Handle(context.Background(), makeRecord(slog.LevelInfo, "msg")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(buf.String(), "2024-01-01T12:00:00Z") {
		t.Fatalf("custom time format not applied: %q", buf.String())
	}
}
