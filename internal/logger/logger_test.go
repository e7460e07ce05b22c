package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_RedactsSecretKeys(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core))

	log.Info("intent created", "client_secret", "pi_123_secret_abc", "provider", "stripe", "Signature", "deadbeef")

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["client_secret"])
	assert.Equal(t, "[REDACTED]", fields["Signature"])
	assert.Equal(t, "stripe", fields["provider"])
}

func TestLogger_WithKeepsContext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := FromZap(zap.New(core)).With("component", "checkout")

	log.Warn("odd kv", "dangling")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "checkout", entries[0].ContextMap()["component"])
}
