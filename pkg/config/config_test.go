package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		orig, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, orig)
			}
		})
	}
}

func TestLoadRequiresAppSecretKey(t *testing.T) {
	clearEnv(t, "APP_SECRET_KEY")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_SECRET_KEY")
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t, "APP_PORT", "DEFAULT_TICK_LABEL", "DEFAULT_POST_GEN_DELAY_SEC")
	os.Setenv("APP_SECRET_KEY", "test-secret")
	t.Cleanup(func() { os.Unsetenv("APP_SECRET_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.AppPort)
	assert.Equal(t, "1 month", cfg.DefaultTickLabel)
	assert.Equal(t, 5, cfg.DefaultPostGenDelaySec)
	assert.Equal(t, MemoryOff, cfg.MemoryMode)
}

func TestLoadRejectsInvalidEventDiceRange(t *testing.T) {
	os.Setenv("APP_SECRET_KEY", "test-secret")
	os.Setenv("EVENT_DICE_MIN_EVENTS", "5")
	os.Setenv("EVENT_DICE_MAX_EVENTS", "1")
	t.Cleanup(func() {
		os.Unsetenv("APP_SECRET_KEY")
		os.Unsetenv("EVENT_DICE_MIN_EVENTS")
		os.Unsetenv("EVENT_DICE_MAX_EVENTS")
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EVENT_DICE_MAX_EVENTS")
}

func TestDebugRoundTrip(t *testing.T) {
	cfg := &Config{DefaultPostGenDelaySec: 5, DefaultTickLabel: "1 month"}
	patch := cfg.Debug()
	patch.DefaultTickLabel = "1 week"
	cfg.ApplyDebug(patch)
	assert.Equal(t, "1 week", cfg.DefaultTickLabel)
}
