package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromZap_WritesKeyValuePairs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core))

	log.With("component", "server").Info("listening", "port", 4000)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "listening", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "server", fields["component"])
	assert.EqualValues(t, 4000, fields["port"])
}

func TestNew_FallsBackToInfoOnBadLevel(t *testing.T) {
	log := New(Config{Level: "not-a-level", Format: "console"})
	assert.NotNil(t, log)
}

func TestFields(t *testing.T) {
	kv := Fields(map[string]interface{}{"a": 1})
	assert.Equal(t, []interface{}{"a", 1}, kv)
}
