package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRespectsLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json"}, &buf)

	log.Info("hidden")
	log.Warn("shown", "index", "byName")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "byName", rec["index"])
}

func TestGetFallsBack(t *testing.T) {
	assert.NotNil(t, Get())
	assert.NotNil(t, Discard())
}
