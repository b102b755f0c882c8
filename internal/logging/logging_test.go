package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewFanoutWritesBoth(t *testing.T) {
	var human, machine bytes.Buffer
	logger := NewFanout(&human, &machine, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("Batch complete.", "batch", 2)

	assert.Contains(t, human.String(), "Batch complete.")
	assert.NotContains(t, human.String(), "hidden")

	lines := strings.Split(strings.TrimSpace(machine.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Batch complete.", entry["msg"])
	assert.EqualValues(t, 2, entry["batch"])
}
