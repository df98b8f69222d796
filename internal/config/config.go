// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Replay() ReplayConfig
	Frames() FramesConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Replay Setters
	SetReplayRunTimeout(d time.Duration)
	SetReplayMode(m ReplayMode)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	ReplayCfg  ReplayConfig  `mapstructure:"replay" yaml:"replay"`
	FramesCfg  FramesConfig  `mapstructure:"frames" yaml:"frames"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Replay() ReplayConfig   { return c.ReplayCfg }
func (c *Config) Frames() FramesConfig   { return c.FramesCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)            { c.BrowserCfg.Headless = b }
func (c *Config) SetReplayRunTimeout(d time.Duration) { c.ReplayCfg.RunTimeout = d }
func (c *Config) SetReplayMode(m ReplayMode)          { c.ReplayCfg.Mode = m }

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ViewportConfig is the size of the top-level browsing context.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// BrowserConfig configures the chromedp allocator and tab.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// ReplayMode selects how a step is rechecked between attempts.
type ReplayMode string

const (
	// ModePoll re-resolves on a fixed sleep interval.
	ModePoll ReplayMode = "poll"
	// ModeWatch re-resolves on browser signals, with a fallback timer.
	ModeWatch ReplayMode = "watch"
)

// ReplayConfig tunes the resolution engine.
type ReplayConfig struct {
	RunTimeout              time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	SleepInterval           time.Duration `mapstructure:"sleep_interval" yaml:"sleep_interval"`
	SoftConditionFraction   float64       `mapstructure:"soft_condition_fraction" yaml:"soft_condition_fraction"`
	NetworkIdleThreshold    int           `mapstructure:"network_idle_threshold" yaml:"network_idle_threshold"`
	Mode                    ReplayMode    `mapstructure:"mode" yaml:"mode"`
	RecheckFallbackInterval time.Duration `mapstructure:"recheck_fallback_interval" yaml:"recheck_fallback_interval"`
	RecheckMinInterval      time.Duration `mapstructure:"recheck_min_interval" yaml:"recheck_min_interval"`
	ListenerCacheTTL        time.Duration `mapstructure:"listener_cache_ttl" yaml:"listener_cache_ttl"`
	ListenerCacheSize       int           `mapstructure:"listener_cache_size" yaml:"listener_cache_size"`
	DocumentCompleteWait    time.Duration `mapstructure:"document_complete_wait" yaml:"document_complete_wait"`
}

// SoftThreshold is the elapsed time after which soft conditions are promoted.
func (r ReplayConfig) SoftThreshold() time.Duration {
	return time.Duration(float64(r.RunTimeout) * r.SoftConditionFraction)
}

// FramesConfig tunes the cross-frame bridge.
type FramesConfig struct {
	RelayTimeout time.Duration `mapstructure:"relay_timeout" yaml:"relay_timeout"`
	InboxSize    int           `mapstructure:"inbox_size" yaml:"inbox_size"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "replay-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 800)
	v.SetDefault("browser.navigation_timeout", "60s")

	// -- Replay --
	v.SetDefault("replay.run_timeout", "30s")
	v.SetDefault("replay.sleep_interval", "250ms")
	v.SetDefault("replay.soft_condition_fraction", 0.6)
	v.SetDefault("replay.network_idle_threshold", 0)
	v.SetDefault("replay.mode", string(ModePoll))
	v.SetDefault("replay.recheck_fallback_interval", "500ms")
	v.SetDefault("replay.recheck_min_interval", "25ms")
	v.SetDefault("replay.listener_cache_ttl", "2s")
	v.SetDefault("replay.listener_cache_size", 512)
	v.SetDefault("replay.document_complete_wait", "5s")

	// -- Frames --
	v.SetDefault("frames.relay_timeout", "2s")
	v.SetDefault("frames.inbox_size", 16)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.Viewport.Width <= 0 || c.BrowserCfg.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport width and height must be positive integers")
	}
	if c.BrowserCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if err := c.ReplayCfg.Validate(); err != nil {
		return fmt.Errorf("replay configuration invalid: %w", err)
	}
	if c.FramesCfg.RelayTimeout <= 0 {
		return fmt.Errorf("frames.relay_timeout must be a positive duration")
	}
	if c.FramesCfg.InboxSize < 0 {
		return fmt.Errorf("frames.inbox_size must not be negative")
	}
	return nil
}

// Validate checks the ReplayConfig settings.
func (r *ReplayConfig) Validate() error {
	if r.RunTimeout <= 0 {
		return fmt.Errorf("run_timeout must be a positive duration")
	}
	if r.SleepInterval <= 0 {
		return fmt.Errorf("sleep_interval must be a positive duration")
	}
	if r.SoftConditionFraction <= 0 || r.SoftConditionFraction >= 1 {
		return fmt.Errorf("soft_condition_fraction must be strictly between 0.0 and 1.0")
	}
	if r.SoftThreshold() >= r.RunTimeout {
		return fmt.Errorf("soft condition threshold must be below run_timeout")
	}
	if r.NetworkIdleThreshold < 0 {
		return fmt.Errorf("network_idle_threshold must not be negative")
	}
	switch r.Mode {
	case ModePoll, ModeWatch:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModePoll, ModeWatch, r.Mode)
	}
	if r.Mode == ModeWatch && r.RecheckFallbackInterval <= 0 {
		return fmt.Errorf("recheck_fallback_interval must be a positive duration in watch mode")
	}
	if r.RecheckMinInterval < 0 {
		return fmt.Errorf("recheck_min_interval must not be negative")
	}
	if r.ListenerCacheSize <= 0 {
		return fmt.Errorf("listener_cache_size must be a positive integer")
	}
	if r.ListenerCacheTTL <= 0 {
		return fmt.Errorf("listener_cache_ttl must be a positive duration")
	}
	if r.DocumentCompleteWait < 0 {
		return fmt.Errorf("document_complete_wait must not be negative")
	}
	return nil
}
