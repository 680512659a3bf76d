package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ClientConfig is the on-disk configuration of a SceneReel client.
// Zero fields take the defaults applied by Load and Default.
type ClientConfig struct {
	Version  int            `yaml:"version" toml:"version"`
	Backend  BackendConfig  `yaml:"backend" toml:"backend"`
	Polling  PollingConfig  `yaml:"polling" toml:"polling"`
	Playback PlaybackConfig `yaml:"playback" toml:"playback"`
	API      APIConfig      `yaml:"api" toml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt" toml:"mqtt"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
}

type BackendConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	TimeoutMS         int     `yaml:"timeout_ms" toml:"timeout_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// PollingConfig controls the task status loop. MaxConsecutiveFailures
// below zero disables the retry cap.
type PollingConfig struct {
	IntervalMS             int     `yaml:"interval_ms" toml:"interval_ms"`
	MaxConsecutiveFailures int     `yaml:"max_consecutive_failures" toml:"max_consecutive_failures"`
	BackoffMultiplier      float64 `yaml:"backoff_multiplier" toml:"backoff_multiplier"`
	MaxDelayMS             int     `yaml:"max_delay_ms" toml:"max_delay_ms"`
}

type PlaybackConfig struct {
	AutoAdvanceDebounceMS int `yaml:"auto_advance_debounce_ms" toml:"auto_advance_debounce_ms"`
	ClipDurationMS        int `yaml:"clip_duration_ms" toml:"clip_duration_ms"`
	InitialVolume         int `yaml:"initial_volume" toml:"initial_volume"`
}

type APIConfig struct {
	Port int `yaml:"port" toml:"port"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker" toml:"broker"`
	TopicPrefix string `yaml:"topic_prefix" toml:"topic_prefix"`
	ClientID    string `yaml:"client_id" toml:"client_id"`
}

type StorageConfig struct {
	Postgres        bool   `yaml:"postgres" toml:"postgres"`
	PreferencesPath string `yaml:"preferences_path" toml:"preferences_path"`
}

// Default returns a configuration with every default applied.
func Default() *ClientConfig {
	cfg := &ClientConfig{Version: 1}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML or TOML config, chosen by file extension.
func Load(path string) (*ClientConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ClientConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(b), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported config version: %d", cfg.Version)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *ClientConfig) applyDefaults() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://127.0.0.1:5000"
	}
	c.Backend.BaseURL = strings.TrimRight(c.Backend.BaseURL, "/")
	if c.Backend.TimeoutMS == 0 {
		c.Backend.TimeoutMS = 30000
	}
	if c.Backend.RequestsPerSecond == 0 {
		c.Backend.RequestsPerSecond = 10
	}
	if c.Backend.Burst == 0 {
		c.Backend.Burst = 5
	}
	if c.Polling.IntervalMS == 0 {
		c.Polling.IntervalMS = 2000
	}
	if c.Polling.MaxConsecutiveFailures == 0 {
		c.Polling.MaxConsecutiveFailures = 150
	}
	if c.Polling.BackoffMultiplier < 1 {
		c.Polling.BackoffMultiplier = 1
	}
	if c.Polling.MaxDelayMS == 0 {
		c.Polling.MaxDelayMS = 30000
	}
	if c.Playback.AutoAdvanceDebounceMS == 0 {
		c.Playback.AutoAdvanceDebounceMS = 500
	}
	if c.Playback.ClipDurationMS == 0 {
		c.Playback.ClipDurationMS = 3000
	}
	if c.Playback.InitialVolume == 0 {
		c.Playback.InitialVolume = 100
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "scenereel"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "scenereel-client"
	}
}

// PollInterval returns the delay between settled status fetches.
func (c *ClientConfig) PollInterval() time.Duration {
	return time.Duration(c.Polling.IntervalMS) * time.Millisecond
}

// PollMaxDelay caps the backoff delay after transient failures.
func (c *ClientConfig) PollMaxDelay() time.Duration {
	return time.Duration(c.Polling.MaxDelayMS) * time.Millisecond
}

// AutoAdvanceDebounce returns the delay before play() after an auto-advance.
func (c *ClientConfig) AutoAdvanceDebounce() time.Duration {
	return time.Duration(c.Playback.AutoAdvanceDebounceMS) * time.Millisecond
}

func (c *ClientConfig) ClipDuration() time.Duration {
	return time.Duration(c.Playback.ClipDurationMS) * time.Millisecond
}

func (c *ClientConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutMS) * time.Millisecond
}
