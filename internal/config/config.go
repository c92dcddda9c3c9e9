// Package config loads and watches the service's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/iskodirajga/sauce-hipchat-service/internal/logx"
	"github.com/iskodirajga/sauce-hipchat-service/internal/settings"
)

type Config struct {
	// Listen is the HTTP bind address, e.g. ":8080".
	Listen string `yaml:"listen"`

	Addon     AddonConfig     `yaml:"addon"`
	Logging   logx.Config     `yaml:"logging"`
	Settings  settings.Config `yaml:"settings"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Sauce     SauceConfig     `yaml:"sauce"`
}

type AddonConfig struct {
	// Name appears in the welcome message.
	Name string `yaml:"name"`
	// GlanceKey is the glance module key from the add-on descriptor.
	GlanceKey string `yaml:"glance_key"`
}

type BroadcastConfig struct {
	// Interval is a Go duration string (e.g. "30s").
	Interval   string `yaml:"interval"`
	RatePerSec int    `yaml:"rate_per_sec"`
}

type SauceConfig struct {
	// LinkHost is the hostname matched when scanning chat messages for
	// job links.
	LinkHost string `yaml:"link_host"`
}

// Load reads, strictly decodes, and normalizes a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

// Normalize applies defaults and validates field values.
func (c *Config) Normalize() error {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Addon.Name == "" {
		c.Addon.Name = "Sauce Labs for HipChat"
	}
	if c.Addon.GlanceKey == "" {
		c.Addon.GlanceKey = "sauce.glance"
	}
	if c.Broadcast.Interval == "" {
		c.Broadcast.Interval = "30s"
	}
	if _, err := c.BroadcastInterval(); err != nil {
		return err
	}
	if c.Broadcast.RatePerSec <= 0 {
		c.Broadcast.RatePerSec = 10
	}
	if c.Sauce.LinkHost == "" {
		c.Sauce.LinkHost = "saucelabs.com"
	}
	if c.Settings.Driver == "" {
		c.Settings.Driver = "redis"
	}
	return nil
}

// BroadcastInterval parses the sweep interval.
func (c *Config) BroadcastInterval() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.Broadcast.Interval))
	if err != nil {
		return 0, fmt.Errorf("broadcast.interval: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("broadcast.interval: must be > 0")
	}
	return d, nil
}
