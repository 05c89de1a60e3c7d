package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

// Helper function to decode the last JSON entry written to buf
func lastEntry(buf *bytes.Buffer) (map[string]interface{}, error) {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, fmt.Errorf("no log output")
	}

	var entry map[string]interface{}
	err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry)
	return entry, err
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name          string
		log           func(l *Logger)
		expectedLevel string
	}{
		{"debug", func(l *Logger) { l.Debug("test message", map[string]interface{}{"field1": "value1"}) }, "DEBUG"},
		{"info", func(l *Logger) { l.Info("test message", map[string]interface{}{"action": "start"}) }, "INFO"},
		{"warn", func(l *Logger) { l.Warn("test message", map[string]interface{}{"retry": true}) }, "WARN"},
		{"error", func(l *Logger) { l.Error("test message", map[string]interface{}{"error": "boom"}) }, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(&buf, zapcore.DebugLevel)

			tt.log(l)

			entry, err := lastEntry(&buf)
			if err != nil {
				t.Fatalf("Expected valid JSON log entry, got error: %v", err)
			}
			if entry["level"] != tt.expectedLevel {
				t.Errorf("Expected level %s, got %v", tt.expectedLevel, entry["level"])
			}
			if entry["message"] != "test message" {
				t.Errorf("Expected message 'test message', got %v", entry["message"])
			}
			if _, ok := entry["timestamp"]; !ok {
				t.Errorf("Expected timestamp in entry")
			}
			if _, ok := entry["fields"].(map[string]interface{}); !ok {
				t.Errorf("Expected nested fields, got %v", entry["fields"])
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zapcore.WarnLevel)

	l.Debug("dropped")
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("Expected no output below WARN, got %s", buf.String())
	}

	l.SetLevel(zapcore.InfoLevel)
	l.Info("kept")
	if buf.Len() == 0 {
		t.Errorf("Expected output after lowering level")
	}
}

func TestLogWithoutFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zapcore.InfoLevel)

	l.Info("message without fields")
	l.Info("message with empty fields", map[string]interface{}{})

	entry, err := lastEntry(&buf)
	if err != nil {
		t.Fatalf("Expected valid JSON log entry, got error: %v", err)
	}
	if _, ok := entry["fields"]; ok {
		t.Errorf("Expected no fields key for empty fields, got %v", entry["fields"])
	}
}

func TestSensitiveFieldsRedacted(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, zapcore.InfoLevel)

	l.Info("redaction", map[string]interface{}{
		"license_key":    "ABCD-EFGH-IJKL-MNOP",
		"adminKey":       "short",
		"email":          "someone@example.com",
		"webhook_secret": "whsec_1234567890",
		"store_driver":   "sqlite",
	})

	entry, err := lastEntry(&buf)
	if err != nil {
		t.Fatalf("Expected valid JSON log entry, got error: %v", err)
	}
	fields := entry["fields"].(map[string]interface{})

	if fields["license_key"] != "ABC...NOP" {
		t.Errorf("Expected partially redacted license key, got %v", fields["license_key"])
	}
	if fields["adminKey"] != "[REDACTED]" {
		t.Errorf("Expected short secret fully redacted, got %v", fields["adminKey"])
	}
	if fields["email"] != "[REDACTED]" {
		t.Errorf("Expected email fully redacted, got %v", fields["email"])
	}
	if fields["webhook_secret"] != "whs...890" {
		t.Errorf("Expected partially redacted secret, got %v", fields["webhook_secret"])
	}
	if fields["store_driver"] != "sqlite" {
		t.Errorf("Expected non-sensitive field untouched, got %v", fields["store_driver"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
		wantErr  bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"Warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if level != tt.expected {
				t.Errorf("Expected level %v, got %v", tt.expected, level)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(New(&buf, zapcore.InfoLevel))

	Info("package level", map[string]interface{}{"component": "test"})

	entry, err := lastEntry(&buf)
	if err != nil {
		t.Fatalf("Expected valid JSON log entry, got error: %v", err)
	}
	if entry["message"] != "package level" {
		t.Errorf("Expected message 'package level', got %v", entry["message"])
	}
}

func BenchmarkInfo(b *testing.B) {
	var buf bytes.Buffer
	l := New(&buf, zapcore.InfoLevel)
	fields := map[string]interface{}{
		"component": "benchmark",
		"attempt":   1,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Info("benchmark info message", fields)
	}
}
