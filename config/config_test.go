package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "service", cfg.AuthMode)
	assert.Equal(t, "ws://localhost:4000/ws", cfg.DataServerURL)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("STORE", "memory")
	t.Setenv("AUTH_MODE", "token")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg := Load()

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "token", cfg.AuthMode)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}
