package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 0.3, cfg.Resolver.ConfidenceFloor)
	assert.Equal(t, 400*time.Millisecond, cfg.Router.ClassifyTimeout())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NotEmpty(t, cfg.Pricing.Anthropic)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SCHEME_RESOLVER_CONFIDENCE_FLOOR", "0.5")
	t.Setenv("SCHEME_ROUTER_CLASSIFY_TIMEOUT_MS", "250")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Resolver.ConfidenceFloor)
	assert.Equal(t, 250*time.Millisecond, cfg.Router.ClassifyTimeout())
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nonsense", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
