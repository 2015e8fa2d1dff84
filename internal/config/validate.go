package config

import (
	"fmt"
)

const maxRetryLimit = 5

// Validate checks configuration correctness. It performs declarative
// validation only and MUST NOT mutate the configuration.
func Validate(cfg *Config) error {
	a := &cfg.Arm

	if a.Port == "" {
		return fmt.Errorf("arm.port is required")
	}

	if a.PollIntervalMs < 0 {
		return fmt.Errorf("arm.poll_interval_ms must not be negative")
	}

	if a.CommandTimeoutMs < 0 {
		return fmt.Errorf("arm.command_timeout_ms must not be negative")
	}

	if a.HomingTimeoutMs < 0 {
		return fmt.Errorf("arm.homing_timeout_ms must not be negative")
	}

	if a.OpenResetDelayMs < 0 {
		return fmt.Errorf("arm.open_reset_delay_ms must not be negative")
	}

	if a.RetryLimit != nil {
		if *a.RetryLimit < 0 || *a.RetryLimit > maxRetryLimit {
			return fmt.Errorf("arm.retry_limit must be within [0, %d]", maxRetryLimit)
		}
	}

	return nil
}
