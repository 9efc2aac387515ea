package zerolog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/servilista/servilista/pkg/market"
)

func TestNewLogger(t *testing.T) {
	var output bytes.Buffer
	logger := NewLogger(zerolog.New(&output))

	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name string
		log  func(l *Logger)
	}{
		{"debug", func(l *Logger) { l.Debug("msg") }},
		{"info", func(l *Logger) { l.Info("msg") }},
		{"warn", func(l *Logger) { l.Warn("msg") }},
		{"error", func(l *Logger) { l.Error("msg") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer
			logger := NewLogger(zerolog.New(&output))
			tt.log(logger)
			if output.Len() == 0 {
				t.Errorf("expected a %s log line", tt.name)
			}
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	var output bytes.Buffer
	logger := NewLogger(zerolog.New(&output))

	logger.Info("listing created",
		market.F("uid", "u1"),
		market.F("count", 3))

	var line map[string]any
	if err := json.Unmarshal(output.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if line["uid"] != "u1" {
		t.Errorf("uid field = %v", line["uid"])
	}
	if line["count"] != float64(3) {
		t.Errorf("count field = %v", line["count"])
	}
	if line["message"] != "listing created" {
		t.Errorf("message = %v", line["message"])
	}
}

func TestLogger_RespectsLevel(t *testing.T) {
	var output bytes.Buffer
	logger := NewLogger(zerolog.New(&output).Level(zerolog.WarnLevel))

	logger.Debug("suppressed")
	logger.Info("suppressed")
	if output.Len() != 0 {
		t.Errorf("expected debug/info suppressed at warn level, got %q", output.String())
	}

	logger.Warn("kept")
	if output.Len() == 0 {
		t.Error("expected warn line")
	}
}
