// Package config loads serialbridge configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level serialbridge configuration.
type Config struct {
	URL     string        `yaml:"url"`
	Browser BrowserConfig `yaml:"browser"`
	Bus     BusConfig     `yaml:"bus"`
	Poll    PollConfig    `yaml:"poll"`
	Parse   ParseConfig   `yaml:"parse"`
	Inject  InjectConfig  `yaml:"inject"`
	Inbound InboundConfig `yaml:"inbound"`
	Breaker BreakerConfig `yaml:"breaker"`
	Journal JournalConfig `yaml:"journal"`
}

// BrowserConfig controls Chrome and the simulator tab.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Bin              string   `yaml:"bin"`
	UserDataDir      string   `yaml:"user_data_dir"`
	Headless         bool     `yaml:"headless"`
	Stealth          bool     `yaml:"stealth"`
	XvfbDisplay      string   `yaml:"xvfb_display"`
	ResourceBlocking []string `yaml:"resource_blocking"`
	TextFrame        string   `yaml:"text_frame"`    // URL substring, empty = top document
	TextSelector     string   `yaml:"text_selector"` // CSS selector of the console
}

// BusConfig defines the broker connection.
type BusConfig struct {
	Kind         string `yaml:"kind"` // mqtt | nats
	Host         string `yaml:"host"`
	Port         string `yaml:"port"` // empty = 1883 for mqtt, 4222 for nats
	ClientID     string `yaml:"client_id"`
	ControlTopic string `yaml:"control_topic"`
}

// PollConfig controls the snapshot loop.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ParseConfig struct {
	MaxLines int `yaml:"max_lines"`
}

// InjectConfig selects the injection target.
type InjectConfig struct {
	FrameMatch string        `yaml:"frame_match"`
	Pick       string        `yaml:"pick"` // last | first
	Timeout    time.Duration `yaml:"timeout"`
}

type InboundConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// BreakerConfig controls the publish circuit breaker.
type BreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// JournalConfig enables the dead-letter journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML data and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no default can repair.
func (c *Config) Validate() error {
	switch c.Bus.Kind {
	case "mqtt", "nats":
	default:
		return fmt.Errorf("config: unknown bus kind %q", c.Bus.Kind)
	}
	switch c.Inject.Pick {
	case "last", "first":
	default:
		return fmt.Errorf("config: unknown inject pick %q", c.Inject.Pick)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Browser.TextSelector == "" {
		c.Browser.TextSelector = "body"
	}
	if c.Bus.Kind == "" {
		c.Bus.Kind = "mqtt"
	}
	if c.Bus.Host == "" {
		c.Bus.Host = "localhost"
	}
	if c.Bus.ControlTopic == "" {
		c.Bus.ControlTopic = "simulator/input"
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = 200 * time.Millisecond
	}
	if c.Poll.Timeout <= 0 {
		c.Poll.Timeout = 5 * time.Second
	}
	if c.Parse.MaxLines <= 0 {
		c.Parse.MaxLines = 10
	}
	if c.Inject.FrameMatch == "" {
		c.Inject.FrameMatch = "editor"
	}
	if c.Inject.Pick == "" {
		c.Inject.Pick = "last"
	}
	if c.Inject.Timeout <= 0 {
		c.Inject.Timeout = 10 * time.Second
	}
	if c.Inbound.QueueSize <= 0 {
		c.Inbound.QueueSize = 32
	}
	if c.Breaker.Threshold <= 0 {
		c.Breaker.Threshold = 5
	}
	if c.Breaker.ResetTimeout <= 0 {
		c.Breaker.ResetTimeout = 10 * time.Second
	}
}
