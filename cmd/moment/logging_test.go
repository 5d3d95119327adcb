package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().BoolP("verbose", "V", false, "")
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestConfigureLogger(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "moment.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log_level: warn\n"), 0o600))

	tests := []struct {
		name     string
		args     []string
		expected logrus.Level
	}{
		{name: "silent by default", args: nil, expected: logrus.PanicLevel},
		{name: "verbose enables debug", args: []string{"--verbose"}, expected: logrus.DebugLevel},
		{name: "log level wins over verbose", args: []string{"--verbose", "--log-level", "error"}, expected: logrus.ErrorLevel},
		{name: "config file level", args: []string{"--config", configPath}, expected: logrus.WarnLevel},
		{name: "log level wins over config", args: []string{"--config", configPath, "--log-level", "info"}, expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newFlagCommand(t, tt.args...)
			cfg, err := loadConfig(cmd)
			require.NoError(t, err)

			logger, err := configureLogger(cmd, cfg)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}

func TestConfigureLoggerInvalidLevel(t *testing.T) {
	cmd := newFlagCommand(t, "--log-level", "loud")

	_, err := configureLogger(cmd, nil)

	assert.EqualError(t, err, "invalid log level: loud (must be debug, info, warn, or error)")
}
