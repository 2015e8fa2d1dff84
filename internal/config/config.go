// Package config defines the YAML configuration file consumed by the
// armctl command. Protocol-level session options live in the arm package;
// this file only carries what an operator wants to persist between runs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Arm ArmConfig `yaml:"arm"`
}

// ArmConfig mirrors the armctl command line. Zero values mean "use the
// built-in default"; explicit flags override the file.
type ArmConfig struct {
	Port string `yaml:"port"`

	PollIntervalMs   int `yaml:"poll_interval_ms"`
	CommandTimeoutMs int `yaml:"command_timeout_ms"`
	HomingTimeoutMs  int `yaml:"homing_timeout_ms"`
	OpenResetDelayMs int `yaml:"open_reset_delay_ms"`

	// RetryLimit is a pointer so 0 (no retries) is distinguishable from
	// "not set".
	RetryLimit *int `yaml:"retry_limit"`

	Verbose bool `yaml:"verbose"`

	// StartupCommand is an optional one-off command line executed
	// immediately after the session reaches Ready.
	StartupCommand string `yaml:"startup_command"`
}

// Load reads, parses, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return &cfg, nil
}
