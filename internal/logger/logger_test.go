package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New("info").Output(&buf)

	log.Info().Msg("test message")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v, output: %s", err, buf.String())
	}
	if entry["message"] != "test message" {
		t.Errorf("expected message 'test message', got %v", entry["message"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in JSON output")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logLevel  string
		shouldLog bool
	}{
		{"info logger logs info", "info", "info", true},
		{"info logger skips debug", "info", "debug", false},
		{"debug logger logs debug", "debug", "debug", true},
		{"warn logger skips info", "warn", "info", false},
		{"empty level defaults to info", "", "debug", false},
		{"invalid level defaults to info", "loud", "info", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(tt.level).Output(&buf)

			switch tt.logLevel {
			case "debug":
				log.Debug().Msg("test")
			case "info":
				log.Info().Msg("test")
			}

			if hasOutput := buf.Len() > 0; hasOutput != tt.shouldLog {
				t.Errorf("level=%q, logAt=%s: expected shouldLog=%v, got output=%v",
					tt.level, tt.logLevel, tt.shouldLog, hasOutput)
			}
		})
	}
}

func TestNewFromConfig_Level(t *testing.T) {
	log := NewFromConfig(Config{Level: "warn"})
	if log.GetLevel() != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %s", log.GetLevel())
	}
}

func TestNewFromConfig_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	log := NewFromConfig(Config{Level: "info", Output: "file", FilePath: path, MaxSizeMB: 1, MaxFiles: 1})

	log.Info().Str("component", "test").Msg("to file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"to file"`) {
		t.Errorf("expected JSON entry in file, got %s", data)
	}
}

func TestNewFromConfig_ConsoleFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	log := NewFromConfig(Config{Format: "console", Output: "file", FilePath: path, MaxSizeMB: 1})

	log.Info().Msg("human readable")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		t.Errorf("expected console output, got JSON: %s", data)
	}
	if !strings.Contains(string(data), "human readable") {
		t.Errorf("expected message in output, got %s", data)
	}
}

func TestFromContext_WithCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	log := New("info").Output(&buf)

	ctx := WithLogger(context.Background(), log)
	ctx = WithCorrelationID(ctx, "req-abc-123")

	ctxLogger := FromContext(ctx)
	ctxLogger.Info().Msg("request handled")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON, got error: %v, output: %s", err, buf.String())
	}
	if entry["correlation_id"] != "req-abc-123" {
		t.Errorf("expected correlation_id 'req-abc-123', got %v", entry["correlation_id"])
	}
}

func TestFromContextOr_UsesBase(t *testing.T) {
	var buf bytes.Buffer
	base := New("info").Output(&buf)

	ctx := WithCorrelationID(context.Background(), "cid-1")
	l := FromContextOr(ctx, base)
	l.Info().Msg("fallback to base")

	if !strings.Contains(buf.String(), `"correlation_id":"cid-1"`) {
		t.Errorf("expected base logger with correlation id, got %s", buf.String())
	}
}

func TestCorrelationIDFromContext_Empty(t *testing.T) {
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty correlation id, got %q", got)
	}
}

func TestNewCorrelationID(t *testing.T) {
	id1 := NewCorrelationID()
	id2 := NewCorrelationID()

	if id1 == "" || id1 == id2 {
		t.Errorf("expected unique non-empty correlation IDs, got %q and %q", id1, id2)
	}
	if len(strings.Split(id1, "-")) != 5 {
		t.Errorf("expected UUID format (5 groups), got %s", id1)
	}
}
