// Package config loads the server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/hephaestus/internal/core/observability/log"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds server configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	// TickRate is the number of world ticks per second.
	TickRate int `yaml:"tick_rate"`
	// Workers is the number of views ticked in parallel.
	Workers int `yaml:"workers"`

	// WebSocketAddr serves /ws; empty disables the HTTP listener.
	WebSocketAddr string `yaml:"websocket_addr"`
	// QUICAddr serves QUIC viewers with a self-signed certificate; empty
	// disables it.
	QUICAddr string `yaml:"quic_addr"`
	// QueueSize bounds the outbound messages buffered per viewer.
	QueueSize int `yaml:"queue_size"`

	Blueprints []string     `yaml:"blueprints"`
	Views      []ViewPreset `yaml:"views"`
}

// ViewPreset is a view spawned at start.
type ViewPreset struct {
	Model    string     `yaml:"model"`
	Location [3]float32 `yaml:"location"`
	Scale    float32    `yaml:"scale"`
	// Animation is queued right after the view is spawned.
	Animation string `yaml:"animation"`
	// Policy is one of loop_boundary, never or immediate.
	Policy string `yaml:"policy"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		LogLevel:      "info",
		TickRate:      20,
		Workers:       4,
		WebSocketAddr: "127.0.0.1:8080",
		QUICAddr:      "",
		QueueSize:     256,
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Decode reads YAML over the defaults and validates the result.
func Decode(r io.Reader) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.TickRate <= 0 || c.TickRate > 1000 {
		return fmt.Errorf("%w: tick_rate must be in 1..1000, got %d", ErrInvalidConfig, c.TickRate)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	for i, v := range c.Views {
		if v.Model == "" {
			return fmt.Errorf("%w: views[%d] has no model", ErrInvalidConfig, i)
		}
		if v.Scale < 0 {
			return fmt.Errorf("%w: views[%d] has a negative scale", ErrInvalidConfig, i)
		}
		switch v.Policy {
		case "", "loop_boundary", "never", "immediate":
		default:
			return fmt.Errorf("%w: views[%d] has unknown policy %q", ErrInvalidConfig, i, v.Policy)
		}
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() log.Level {
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}
