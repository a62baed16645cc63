package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"sonopix/features"
)

func setBuildMode(t *testing.T, mode, buildFeatures string) {
	t.Helper()
	originalMode := features.BuildMode
	originalFeatures := features.BuildFeatures
	t.Cleanup(func() {
		features.BuildMode = originalMode
		features.BuildFeatures = originalFeatures
		features.ResetCache()
	})
	features.BuildMode = mode
	features.BuildFeatures = buildFeatures
	features.ResetCache()
}

func TestLoggerMinimalMode(t *testing.T) {
	setBuildMode(t, "demo", "")

	var buf bytes.Buffer
	logger := NewLoggerWithOutput(&buf)

	logger.Debug("This should not appear")
	logger.Info("This should not appear either")
	logger.Startup("This should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") {
		t.Error("Debug or info message appeared in minimal logging mode")
	}
	if !strings.Contains(output, "This should appear") || !strings.Contains(output, "phase=startup") {
		t.Error("Startup message did not appear in minimal logging mode")
	}
}

func TestLoggerFullMode(t *testing.T) {
	setBuildMode(t, "production", "")

	var buf bytes.Buffer
	logger := NewLoggerWithOutput(&buf)

	logger.Debug("Debug message")
	logger.Info("Info message")
	logger.Startup("Startup message")

	output := buf.String()
	for _, want := range []string{"level=debug", "level=info", "Debug message", "Info message", "Startup message"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q in full logging mode", want)
		}
	}
}

func TestLoggingMode(t *testing.T) {
	tests := []struct {
		name         string
		buildMode    string
		expectedMode string
	}{
		{"demo mode", "demo", "minimal (startup only)"},
		{"production mode", "production", "full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuildMode(t, tt.buildMode, "")
			if mode := LoggingMode(); mode != tt.expectedMode {
				t.Errorf("LoggingMode() = %s, want %s", mode, tt.expectedMode)
			}
		})
	}
}

func TestGetLogger(t *testing.T) {
	defaultLogger = nil
	once = sync.Once{}

	logger1 := GetLogger()
	if logger1 == nil {
		t.Fatal("GetLogger() returned nil")
	}
	if logger2 := GetLogger(); logger1 != logger2 {
		t.Error("GetLogger() did not return the same instance")
	}
}

func TestSetLevel(t *testing.T) {
	setBuildMode(t, "production", "")
	logger := NewLoggerWithOutput(&bytes.Buffer{})

	tests := []struct {
		name     string
		level    LogLevel
		expected LogLevel
	}{
		{"set to debug", LevelDebug, LevelDebug},
		{"set to info", LevelInfo, LevelInfo},
		{"set to warn", LevelWarn, LevelWarn},
		{"set to error", LevelError, LevelError},
		{"set to startup", LevelStartup, LevelStartup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger.SetLevel(tt.level)
			if got := logger.state.get(); got != tt.expected {
				t.Errorf("SetLevel(%v) set minLevel to %v, want %v", tt.level, got, tt.expected)
			}
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	setBuildMode(t, "production", "")

	var buf bytes.Buffer
	logger := NewLoggerWithOutput(&buf)
	logger.SetLevel(LevelError)

	logger.Warn("warn suppressed")
	logger.Error("Error message: %s", "critical")

	output := buf.String()
	if strings.Contains(output, "warn suppressed") {
		t.Error("Warn message appeared when level was set to Error")
	}
	if !strings.Contains(output, "level=error") || !strings.Contains(output, "critical") {
		t.Error("Error message missing or unformatted")
	}

	buf.Reset()
	logger.SetLevel(LevelStartup)
	logger.Error("error suppressed")
	if buf.Len() != 0 {
		t.Error("Error message appeared when level was set to Startup")
	}
}

func TestWithField(t *testing.T) {
	setBuildMode(t, "production", "")

	var buf bytes.Buffer
	logger := NewLoggerWithOutput(&buf)
	child := logger.WithField("job_id", "abc").WithFields(map[string]interface{}{"direction": "encrypt"})

	child.Info("stage done")
	output := buf.String()
	if !strings.Contains(output, "job_id=abc") || !strings.Contains(output, "direction=encrypt") {
		t.Errorf("derived logger lost its fields: %s", output)
	}

	// level changes on the parent apply to children
	buf.Reset()
	logger.SetLevel(LevelError)
	child.Info("hidden")
	if buf.Len() != 0 {
		t.Error("child ignored parent level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConfigure(t *testing.T) {
	setBuildMode(t, "production", "")

	path := filepath.Join(t.TempDir(), "sonopix.log")
	logger := NewLoggerWithOutput(&bytes.Buffer{})
	if err := logger.Configure("warn", "json", path); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept %d", 1)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %s", len(lines), data)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "kept 1" || entry["level"] != "warning" {
		t.Errorf("unexpected entry %v", entry)
	}

	if err := logger.Configure("info", "xml", "stdout"); err == nil {
		t.Error("Configure() accepted an unknown format")
	}
	if err := logger.Configure("chatty", "text", "stdout"); err == nil {
		t.Error("Configure() accepted an unknown level")
	}
}

func TestPrintBuildInfo(t *testing.T) {
	setBuildMode(t, "production", "metrics,observability")
	originalVersion := features.BuildVersion
	originalTime := features.BuildTime
	defer func() {
		features.BuildVersion = originalVersion
		features.BuildTime = originalTime
	}()
	features.BuildVersion = "1.2.3"
	features.BuildTime = "2025-01-15T10:00:00Z"

	var buf bytes.Buffer
	logger := NewLoggerWithOutput(&buf)
	logger.PrintBuildInfo("test-service", "2.0.0")

	output := buf.String()
	for _, want := range []string{
		"test-service", "v2.0.0", "production", "1.2.3", "2025-01-15T10:00:00Z",
		"Enabled Features", "Full Logging", "Metrics", "Observability",
		"Rate Limiting", "Redis Jobs", "Audit", "Short Timeouts", "=====",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("PrintBuildInfo output missing %q", want)
		}
	}
}

func TestPrintBuildInfo_NoFeatures(t *testing.T) {
	setBuildMode(t, "production", "")

	var buf bytes.Buffer
	NewLoggerWithOutput(&buf).PrintBuildInfo("test-service", "1.0.0")

	if !strings.Contains(buf.String(), "none (production defaults)") {
		t.Error("PrintBuildInfo did not handle empty features correctly")
	}
}

func TestGlobalFunctions(t *testing.T) {
	setBuildMode(t, "production", "")
	defaultLogger = nil
	once = sync.Once{}

	var buf bytes.Buffer
	GetLogger().SetOutput(&buf)

	Debug("Global debug: %s", "test")
	Info("Global info: %s", "test")
	Warn("Global warn")
	Error("Global error")
	Startup("Global startup")

	output := buf.String()
	for _, want := range []string{"Global debug: test", "Global info: test", "Global warn", "Global error", "Global startup"} {
		if !strings.Contains(output, want) {
			t.Errorf("global output missing %q", want)
		}
	}

	defaultLogger = nil
	once = sync.Once{}
}
