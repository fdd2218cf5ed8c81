package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json format", config: &Config{Level: LevelInfo, Format: "json", Output: &bytes.Buffer{}}},
		{name: "text format", config: &Config{Level: LevelDebug, Format: "text", Output: &bytes.Buffer{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			require.NotNil(t, logger)
		})
	}
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &buf, Sync: true, NoColor: true})

	deviceLogger := logger.WithDevice(42)
	deviceLogger.Info("test message")
	assert.Contains(t, buf.String(), "device_id=42")

	buf.Reset()
	clientLogger := deviceLogger.WithClient(7)
	clientLogger.Info("client message")
	assert.Contains(t, buf.String(), "device_id=42")
	assert.Contains(t, buf.String(), "client_id=7")
}

func TestLoggerWithRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &buf, Sync: true, NoColor: true})

	requestLogger := logger.WithRequest(123, "READ_ATTR")
	requestLogger.Debug("processing request")

	output := buf.String()
	assert.Contains(t, output, "client_id=123")
	assert.Contains(t, output, "op=READ_ATTR")
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &buf, Sync: true, NoColor: true})

	errorLogger := logger.WithError(errors.New("test error"))
	errorLogger.Error("operation failed")

	assert.Contains(t, buf.String(), "test error")
}

func TestLoggerWithErrorNilIsNoop(t *testing.T) {
	logger := NewLogger(nil)
	assert.Same(t, logger, logger.WithError(nil))
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelInfo, Format: "json", Output: &buf})

	logger.WithDevice(1).Info("ready")

	output := buf.String()
	assert.Contains(t, output, `"msg":"ready"`)
	assert.Contains(t, output, `"device_id":"1"`)
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &buf, Sync: true, NoColor: true}))

	Debug("debug message", "key", "value")
	assert.Contains(t, buf.String(), "debug message")
	assert.Contains(t, buf.String(), "key=value")

	buf.Reset()
	Info("info message")
	assert.Contains(t, buf.String(), "info message")

	buf.Reset()
	Warn("warning message")
	assert.Contains(t, buf.String(), "warning message")

	buf.Reset()
	Error("error message")
	assert.Contains(t, buf.String(), "error message")
}
