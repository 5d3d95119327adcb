package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/moment/internal/backoff"
	"github.com/srg/moment/internal/device"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, device.FilterServiceUUID, cfg.Identifiers.FilterService)
	assert.Equal(t, device.DataServiceUUID, cfg.Identifiers.DataService)
	assert.Equal(t, device.WriteCharacteristicUUID, cfg.Identifiers.WriteCharacteristic)
	assert.Equal(t, 10, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 19, cfg.Payload.ChunkSize)
	assert.Equal(t, time.Duration(0), cfg.Payload.Pace)
	assert.False(t, cfg.Payload.WithoutResponse)
	assert.Equal(t, 10*time.Second, cfg.Scan.Timeout)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, backoff.Policy{MaxAttempts: 10, InitialDelay: 2 * time.Second}, cfg.RetryPolicy())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
retry:
  max_attempts: 3
  initial_delay: 500ms
payload:
  chunk_size: 20
  pace: 10ms
scan:
  timeout: 3s
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 20, cfg.Payload.ChunkSize)
	assert.Equal(t, 10*time.Millisecond, cfg.Payload.Pace)
	assert.Equal(t, 3*time.Second, cfg.Scan.Timeout)
	assert.Equal(t, device.DataServiceUUID, cfg.Identifiers.DataService, "missing fields MUST keep defaults")
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "reading config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "retry: [unclosed"))
		assert.ErrorContains(t, err, "parsing config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
log_level: chatty
retry:
  max_attempts: -1
payload:
  chunk_size: 0
identifiers:
  data_service: nope
`))
		require.Error(t, err)
		assert.ErrorContains(t, err, "invalid log level: chatty")
		assert.ErrorContains(t, err, "retry.max_attempts must be >= 0")
		assert.ErrorContains(t, err, "payload.chunk_size must be > 0")
		assert.ErrorContains(t, err, "identifiers: invalid UUID format at index 1: nope")
	})
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", expected: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "falls back to info on bad level", logLevel: "loud", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
