// File: internal/config/config_test.go
package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "replay-cli", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 1280, cfg.Browser().Viewport.Width)
	assert.Equal(t, 60*time.Second, cfg.Browser().NavigationTimeout)
	assert.Equal(t, 30*time.Second, cfg.Replay().RunTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Replay().SleepInterval)
	assert.Equal(t, 0.6, cfg.Replay().SoftConditionFraction)
	assert.Equal(t, 18*time.Second, cfg.Replay().SoftThreshold())
	assert.Equal(t, ModePoll, cfg.Replay().Mode)
	assert.Equal(t, 2*time.Second, cfg.Frames().RelayTimeout)
	assert.NoError(t, cfg.Validate(), "defaults must always validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero run timeout", func(c *Config) { c.ReplayCfg.RunTimeout = 0 }, "run_timeout must be a positive duration"},
		{"fraction of one", func(c *Config) { c.ReplayCfg.SoftConditionFraction = 1 }, "soft_condition_fraction"},
		{"fraction of zero", func(c *Config) { c.ReplayCfg.SoftConditionFraction = 0 }, "soft_condition_fraction"},
		{"unknown mode", func(c *Config) { c.ReplayCfg.Mode = "push" }, `mode must be "poll" or "watch"`},
		{"watch without fallback", func(c *Config) {
			c.ReplayCfg.Mode = ModeWatch
			c.ReplayCfg.RecheckFallbackInterval = 0
		}, "recheck_fallback_interval"},
		{"negative network threshold", func(c *Config) { c.ReplayCfg.NetworkIdleThreshold = -1 }, "network_idle_threshold"},
		{"empty listener cache", func(c *Config) { c.ReplayCfg.ListenerCacheSize = 0 }, "listener_cache_size"},
		{"zero viewport", func(c *Config) { c.BrowserCfg.Viewport.Height = 0 }, "browser.viewport"},
		{"zero relay timeout", func(c *Config) { c.FramesCfg.RelayTimeout = 0 }, "frames.relay_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("watch mode valid", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.SetReplayMode(ModeWatch)
		assert.NoError(t, cfg.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
replay:
  run_timeout: 10s
  soft_condition_fraction: 0.5
  mode: watch
browser:
  headless: false
  args: ["disable-dev-shm-usage", "lang=en-US"]
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, cfg.Replay().RunTimeout)
		assert.Equal(t, 5*time.Second, cfg.Replay().SoftThreshold())
		assert.Equal(t, ModeWatch, cfg.Replay().Mode)
		assert.False(t, cfg.Browser().Headless)
		assert.Equal(t, []string{"disable-dev-shm-usage", "lang=en-US"}, cfg.Browser().Args)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("replay.soft_condition_fraction", 1.5)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "soft_condition_fraction")
	})

	t.Run("Environment Variable Override", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetEnvPrefix("REPLAY")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		t.Setenv("REPLAY_REPLAY_RUN_TIMEOUT", "45s")
		t.Setenv("REPLAY_FRAMES_RELAY_TIMEOUT", "750ms")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 45*time.Second, cfg.Replay().RunTimeout)
		assert.Equal(t, 750*time.Millisecond, cfg.Frames().RelayTimeout)
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetBrowserHeadless(false)
	cfg.SetReplayRunTimeout(5 * time.Second)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 5*time.Second, cfg.Replay().RunTimeout)
}
