package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WithKeepsWrapper(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", JSON: true, Output: &buf})

	scoped := log.WithComponent("session").With("character_id", "c-1")
	scoped.LogError(nil, "reply failed", "status", "failed")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "session", record["component"])
	assert.Equal(t, "c-1", record["character_id"])
	assert.Equal(t, "failed", record["status"])
	assert.Equal(t, log.config, scoped.config)
}

func TestLogger_WithRequestIDEmpty(t *testing.T) {
	log := Nop()
	assert.Same(t, log, log.WithRequestID(""))
}
