package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	Setup(&buf, "warn", "json", false)

	log.Info().Msg("hidden")
	log.Warn().Str("source", "CNBC").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "shown", rec["message"])
	assert.Equal(t, "CNBC", rec["source"])
	assert.Equal(t, "warn", rec["level"])
}

func TestSetupVerboseForcesDebug(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	Setup(&buf, "error", "json", true)
	log.Debug().Msg("debug line")
	assert.Contains(t, buf.String(), "debug line")
}

func TestSetupUnknownLevelDefaultsToInfo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	Setup(&bytes.Buffer{}, "chatty", "console", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
