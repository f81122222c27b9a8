package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remitbridge-transfer-orchestrator/internal/config"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		name              string
		logLevel          string
		expectedSlogLevel slog.Level
		belowDisabled     bool
	}{
		{"DebugLevel", "debug", slog.LevelDebug, false},
		{"InfoLevel", "info", slog.LevelInfo, true},
		{"WarnLevel", "WARN", slog.LevelWarn, true},
		{"WarningAlias", "warning", slog.LevelWarn, true},
		{"ErrorLevel", "error", slog.LevelError, true},
		{"DefaultToInfo", "unknown", slog.LevelInfo, true},
		{"EmptyToInfo", "", slog.LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &config.Config{Logging: config.LoggingConfig{Level: tc.logLevel}}

			logger := NewLogger(cfg)
			require.NotNil(t, logger)

			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tc.expectedSlogLevel))
			if tc.belowDisabled {
				assert.False(t, logger.Enabled(ctx, tc.expectedSlogLevel-4))
			}
		})
	}
}

func TestNewLogger_ServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{
		Application: config.ApplicationConfig{Name: "remit-bridge", Env: "test"},
		Logging:     config.LoggingConfig{Level: "info"},
	}

	logger := newLogger(cfg, &buf)
	buf.Reset()
	logger.Info("transfer created", "transaction_id", "TX-20240101-ABCDEF12")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "remit-bridge", record["service"])
	assert.Equal(t, "test", record["env"])
	assert.Equal(t, "TX-20240101-ABCDEF12", record["transaction_id"])
	assert.Equal(t, "transfer created", record["msg"])
}
