package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"trace", zerolog.TraceLevel},
		{"error", zerolog.ErrorLevel},
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
	_, err = ParseLevel("panic")
	assert.Error(t, err, "only the levels the config accepts are allowed")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Level: "info"})
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	engineLog := Component(log, "engine")
	engineLog.Info().Int("processed", 3).Msg("sync pass finished")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "sync pass finished", entry["message"])
	assert.EqualValues(t, 3, entry["processed"])
	assert.Contains(t, entry, "time")
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Options{Level: "debug", Format: FormatConsole, NoColor: true})
	require.NoError(t, err)

	log.Debug().Str("entity_id", "LOCAL-S1").Msg("item deferred")
	out := buf.String()
	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "item deferred")
	assert.Contains(t, out, "entity_id=LOCAL-S1")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Format: "xml"})
	assert.Error(t, err)
	_, err = New(&bytes.Buffer{}, Options{Level: "chatty"})
	assert.Error(t, err)
}
