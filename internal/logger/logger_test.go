package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewWithWriter(&buf, "info", "json")
		log.Debug("hidden")
		log.Info("scraped", "sku", "B0001")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "scraped", entry["msg"])
		assert.Equal(t, "B0001", entry["sku"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&buf, "debug", "text").Debug("visible", "retailer", "Walmart")
		assert.Contains(t, buf.String(), "retailer=Walmart")
	})
}
