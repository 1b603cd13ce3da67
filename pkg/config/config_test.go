package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("FLEETMON_ENV", "does-not-exist-in-testdata")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30, cfg.Pinger.IntervalSec)
	assert.Equal(t, "pinger.events", cfg.Rabbit.PingerExchange)
	assert.Equal(t, "llm.events", cfg.Rabbit.LLMExchange)
	assert.Equal(t, "pinger.group", cfg.Rabbit.PingerRoutingKey)
	assert.Equal(t, "llm.group", cfg.Rabbit.LLMRoutingKey)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FLEETMON_ENV", "does-not-exist-in-testdata")
	t.Setenv("FLEETMON_PINGER_INTERVAL_SEC", "15")
	t.Setenv("FLEETMON_DISPATCHER_AUTOCREATE_SITES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Pinger.IntervalSec)
	assert.True(t, cfg.Dispatcher.AutocreateSites)
}

func TestLoad_LegacyAliases(t *testing.T) {
	t.Setenv("FLEETMON_ENV", "does-not-exist-in-testdata")
	os.Unsetenv("FLEETMON_RABBIT_URL")
	t.Setenv("RABBIT_URL", "amqp://legacy@localhost:5672/")
	t.Setenv("TG_TOKEN", "legacy-token-value")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "amqp://legacy@localhost:5672/", cfg.Rabbit.URL)
	assert.Equal(t, "legacy-token-value", cfg.Telegram.Token)
}

func TestLoad_RequiresRabbitInProduction(t *testing.T) {
	t.Setenv("FLEETMON_ENV", "production")
	os.Unsetenv("FLEETMON_RABBIT_URL")
	os.Unsetenv("RABBIT_URL")

	_, err := Load()
	require.Error(t, err)
}

func TestGet_PanicsWithoutLoad(t *testing.T) {
	globalConfig = nil
	assert.Panics(t, func() {
		Get()
	})
}
