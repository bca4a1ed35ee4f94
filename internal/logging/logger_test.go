package logging

import (
	"log/slog"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"ERROR":   slog.LevelError,
	}
	for in, want := range cases {
		if got := parseLevel(in, slog.LevelInfo); got != want {
			t.Errorf("parseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
	if got := parseLevel("bogus", slog.LevelWarn); got != slog.LevelWarn {
		t.Errorf("expected fallback for unknown level, got %v", got)
	}
}

func TestGetLoggerReturnsSameInstance(t *testing.T) {
	a := GetLogger("testmodule")
	b := GetLogger("testmodule")
	if a != b {
		t.Error("expected the same logger instance per module")
	}
}

func TestModuleLevelOverride(t *testing.T) {
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"chatty": "error",
		},
	})

	logger := GetLogger("chatty")
	logger.Info("suppressed")
	logger.Error("recorded", "k", "v")

	found := false
	for _, entry := range Buffer().ReadAll() {
		if entry.Module == "chatty" && entry.Message == "recorded" {
			found = true
			if entry.Level != "error" {
				t.Errorf("expected error level, got %s", entry.Level)
			}
		}
		if entry.Module == "chatty" && entry.Message == "suppressed" {
			t.Error("info entry recorded despite error-level module override")
		}
	}
	if !found {
		t.Error("error entry not found in ring buffer")
	}
}

func TestSetModuleLevel(t *testing.T) {
	Initialize(Config{Level: "info", Format: "text"})

	SetModuleLevel("tunable", "error")
	GetLogger("tunable").Info("hidden")

	SetModuleLevel("tunable", "debug")
	GetLogger("tunable").Debug("visible")

	var sawHidden, sawVisible bool
	for _, entry := range Buffer().ReadAll() {
		if entry.Module != "tunable" {
			continue
		}
		switch entry.Message {
		case "hidden":
			sawHidden = true
		case "visible":
			sawVisible = true
		}
	}
	if sawHidden {
		t.Error("entry recorded below module level")
	}
	if !sawVisible {
		t.Error("debug entry missing after level change")
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Write(LogEntry{
			Timestamp: time.Now(),
			Message:   string(rune('a' + i)),
		})
	}

	entries := rb.ReadAll()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []string{"c", "d", "e"}
	for i, entry := range entries {
		if entry.Message != want[i] {
			t.Errorf("entry %d: expected %q, got %q", i, want[i], entry.Message)
		}
	}
	if rb.Count() != 3 {
		t.Errorf("expected count 3, got %d", rb.Count())
	}
}

func TestRingBufferPartial(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write(LogEntry{Message: "only"})

	entries := rb.ReadAll()
	if len(entries) != 1 || entries[0].Message != "only" {
		t.Errorf("unexpected entries: %v", entries)
	}
}
