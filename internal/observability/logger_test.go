package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/storm-alert-service/internal/config"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestNewLogger_InstallsDefault(t *testing.T) {
	restoreDefaultLogger(t)

	logger := NewLogger(&config.Config{LogLevel: "info", LogFormat: "json"})

	assert.Same(t, logger, slog.Default())
	assert.IsType(t, &slog.JSONHandler{}, logger.Handler())
}

func TestNewLogger_TextFormat(t *testing.T) {
	restoreDefaultLogger(t)

	logger := NewLogger(&config.Config{LogLevel: "info", LogFormat: "text"})

	assert.IsType(t, &slog.TextHandler{}, logger.Handler())
}

func TestNewLogger_Level(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		level   string
		enabled slog.Level
		dropped slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"nonsense", slog.LevelInfo, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			restoreDefaultLogger(t)
			logger := NewLogger(&config.Config{LogLevel: tt.level, LogFormat: "json"})
			assert.True(t, logger.Enabled(ctx, tt.enabled))
			assert.False(t, logger.Enabled(ctx, tt.dropped))
		})
	}
}
