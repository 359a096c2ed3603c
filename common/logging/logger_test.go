package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestDispatchIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetDispatchID(ctx))

	ctx = WithDispatchID(ctx, "01939a9e-test")
	assert.Equal(t, "01939a9e-test", GetDispatchID(ctx))
}

func TestNewFormats(t *testing.T) {
	assert.NotNil(t, New(slog.LevelInfo, "json"))
	assert.NotNil(t, New(slog.LevelDebug, "text"))
	assert.NotNil(t, New(slog.LevelWarn, "unknown"))
}
