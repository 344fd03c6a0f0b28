package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DELEGACY_LOG_LEVEL", "")
	t.Setenv("DELEGACY_AUTHORITY_STORE_DSN", "")
	t.Setenv("DELEGACY_OTEL_ENABLED", "")

	cfg := Load()
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "", cfg.AuthorityStoreDSN)
	assert.False(t, cfg.OTELEnabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DELEGACY_LOG_LEVEL", "DEBUG")
	t.Setenv("DELEGACY_OTEL_ENABLED", "true")
	t.Setenv("DELEGACY_COOLDOWN_REDIS_ADDR", "localhost:6379")

	cfg := Load()
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.True(t, cfg.OTELEnabled)
	assert.Equal(t, "localhost:6379", cfg.CooldownRedisAddr)
}
