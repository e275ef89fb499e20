package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/afroash/sensorcheck/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"trace", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew_JSONLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	defer closer.Close()

	logger.Info().Msg("hidden")
	logger.Warn().Str("scenario", "reboot").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["message"] != "shown" || entry["scenario"] != "reboot" || entry["level"] != "warn" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := newLogger(config.LoggingConfig{Level: "info", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}

	logger.Info().Int("step", 2).Msg("Reboot sensor")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("text format should not produce JSON: %q", out)
	}
	if !strings.Contains(out, "Reboot sensor") || !strings.Contains(out, "step=") {
		t.Errorf("output = %q, want message and step field", out)
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sensorcheck.log")

	var buf bytes.Buffer
	logger, closer, err := newLogger(config.LoggingConfig{Level: "debug", Format: "text", FilePath: path}, &buf)
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	logger.Debug().Msg("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), `"message":"to file"`) {
		t.Errorf("log file = %q, want a JSON entry", string(data))
	}
	if !strings.Contains(buf.String(), "to file") {
		t.Error("console should also receive the entry")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, _, err := New(config.LoggingConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
