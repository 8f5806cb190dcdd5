package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/exchange-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		name              string
		logLevel          string
		expectedSlogLevel slog.Level
	}{
		{"DebugLevel", "debug", slog.LevelDebug},
		{"InfoLevel", "info", slog.LevelInfo},
		{"WarnLevel", "warn", slog.LevelWarn},
		{"ErrorLevel", "error", slog.LevelError},
		{"DefaultToInfo", "unknown", slog.LevelInfo},
		{"EmptyToInfo", "", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{
				Logging: config.LoggingConfig{
					Level: tc.logLevel,
				},
			}

			logger := NewLogger(cfg)
			require.NotNil(t, logger)

			assert.True(t, logger.Enabled(context.Background(), tc.expectedSlogLevel), "Logger should be enabled for level "+tc.expectedSlogLevel.String())
			if tc.expectedSlogLevel > slog.LevelDebug {
				assert.False(t, logger.Enabled(context.Background(), tc.expectedSlogLevel-4), "Logger should not be enabled below its level")
			}
		})
	}
}

func TestNewLogger_Format(t *testing.T) {
	t.Run("JSONByDefault", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&config.Config{Application: config.ApplicationConfig{Name: "bridge"}}, &buf)

		buf.Reset()
		logger.Info("Transaction created", "transaction_id", "abc")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "Transaction created", entry["msg"])
		assert.Equal(t, "abc", entry["transaction_id"])
		assert.Equal(t, "bridge", entry["app"])
	})

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(&config.Config{Logging: config.LoggingConfig{Format: "TEXT"}}, &buf)

		buf.Reset()
		logger.Info("Transaction created", "transaction_id", "abc")

		out := buf.String()
		assert.True(t, strings.Contains(out, "msg=\"Transaction created\""), out)
		assert.True(t, strings.Contains(out, "transaction_id=abc"), out)
	})
}
