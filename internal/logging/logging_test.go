package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/waabox/pakdeck/internal/logging"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, "WARN", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "platform", "npm")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one record, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("expected JSON record: %v", err)
	}
	if rec["msg"] != "shown" || rec["platform"] != "npm" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNew_TextIsDefault(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(&buf, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hello", "stage", "deploy")
	if !strings.Contains(buf.String(), "stage=deploy") {
		t.Errorf("expected text output, got %q", buf.String())
	}
}

func TestNew_RejectsUnknownValues(t *testing.T) {
	if _, err := logging.New(&bytes.Buffer{}, "verbose", "json"); err == nil {
		t.Error("expected unknown level to fail")
	}
	if _, err := logging.New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("expected unknown format to fail")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"Info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := logging.ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v (%v)", in, want, got, err)
		}
	}
}
