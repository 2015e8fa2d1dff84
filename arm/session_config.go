package arm

import (
	"errors"
	"fmt"
	"time"

	"github.com/robosix/armlink/logger"
)

// Default session timing values, matching the robot firmware guidance.
const (
	DefaultCommandTimeout = 1 * time.Second

	// DefaultHomingTimeout is the acknowledgement ceiling for the startup
	// homing motion. G29 routinely takes several seconds; not reaching the
	// ceiling is not an error.
	DefaultHomingTimeout = 10 * time.Second

	DefaultPollInterval = 500 * time.Millisecond
	DefaultCloseTimeout = 3 * time.Second

	// DefaultOpenResetDelay is the settle time between opening the serial
	// device and the first probe. Zero by default; controllers that reboot
	// on DTR toggle need a second or two.
	DefaultOpenResetDelay = 0 * time.Second

	// DefaultRetryLimit is the bounded retry budget per startup step
	// (each probe and the homing command).
	DefaultRetryLimit = 1
)

// Configurable ranges.
const (
	MinCommandTimeout = 100 * time.Millisecond
	MaxCommandTimeout = 30 * time.Second

	MinHomingTimeout = 1 * time.Second
	MaxHomingTimeout = 60 * time.Second

	MinPollInterval = 50 * time.Millisecond
	MaxPollInterval = 1 * time.Minute

	MaxOpenResetDelay = 10 * time.Second

	MaxRetryLimit = 5
)

// SessionConfig holds all configuration for an arm session.
//
// The serial framing (115200 8-N-1) is fixed by the robot firmware and is
// deliberately not configurable.
type SessionConfig struct {
	portPath string

	// commandTimeout bounds the wait for an ordinary command response.
	commandTimeout time.Duration

	// homingTimeout bounds the wait for the G29 startup acknowledgement.
	homingTimeout time.Duration

	// pollInterval is the position monitor's query period.
	pollInterval time.Duration

	// closeTimeout bounds session teardown.
	closeTimeout time.Duration

	// openResetDelay is the settle time between link open and first probe.
	openResetDelay time.Duration

	// retryLimit is the bounded retry budget per startup step.
	retryLimit int

	logger logger.Logger
}

// NewSessionConfig creates a session configuration for the serial device
// at portPath. opts are functional options applied in order.
func NewSessionConfig(portPath string, opts ...SessionOption) (*SessionConfig, error) {
	if portPath == "" {
		return nil, errors.New("arm: port path is empty")
	}

	cfg := &SessionConfig{
		portPath:       portPath,
		commandTimeout: DefaultCommandTimeout,
		homingTimeout:  DefaultHomingTimeout,
		pollInterval:   DefaultPollInterval,
		closeTimeout:   DefaultCloseTimeout,
		openResetDelay: DefaultOpenResetDelay,
		retryLimit:     DefaultRetryLimit,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// PortPath returns the serial device path.
func (cfg *SessionConfig) PortPath() string { return cfg.portPath }

// CommandTimeout returns the default per-command response timeout.
func (cfg *SessionConfig) CommandTimeout() time.Duration { return cfg.commandTimeout }

// HomingTimeout returns the startup homing acknowledgement ceiling.
func (cfg *SessionConfig) HomingTimeout() time.Duration { return cfg.homingTimeout }

// PollInterval returns the position monitor query period.
func (cfg *SessionConfig) PollInterval() time.Duration { return cfg.pollInterval }

// CloseTimeout returns the session teardown timeout.
func (cfg *SessionConfig) CloseTimeout() time.Duration { return cfg.closeTimeout }

// OpenResetDelay returns the settle time applied after the link opens.
func (cfg *SessionConfig) OpenResetDelay() time.Duration { return cfg.openResetDelay }

// RetryLimit returns the bounded retry budget per startup step.
func (cfg *SessionConfig) RetryLimit() int { return cfg.retryLimit }

// GetLogger returns the configured logger.
func (cfg *SessionConfig) GetLogger() logger.Logger { return cfg.logger }

// --- SessionOption ---

// SessionOption is a functional option for configuring a SessionConfig.
type SessionOption interface {
	apply(*SessionConfig) error
}

type sessionOptFunc func(*SessionConfig) error

func (f sessionOptFunc) apply(cfg *SessionConfig) error { return f(cfg) }

// WithCommandTimeout sets the default per-command response timeout.
func WithCommandTimeout(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d < MinCommandTimeout || d > MaxCommandTimeout {
			return fmt.Errorf("arm: command timeout %v out of range [%v, %v]", d, MinCommandTimeout, MaxCommandTimeout)
		}
		cfg.commandTimeout = d

		return nil
	})
}

// WithHomingTimeout sets the startup homing acknowledgement ceiling.
func WithHomingTimeout(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d < MinHomingTimeout || d > MaxHomingTimeout {
			return fmt.Errorf("arm: homing timeout %v out of range [%v, %v]", d, MinHomingTimeout, MaxHomingTimeout)
		}
		cfg.homingTimeout = d

		return nil
	})
}

// WithPollInterval sets the position monitor query period.
func WithPollInterval(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("arm: poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithCloseTimeout sets the session teardown timeout.
func WithCloseTimeout(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d <= 0 {
			return errors.New("arm: close timeout must be positive")
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithOpenResetDelay sets the settle time between opening the serial
// device and the first probe, for controllers that reboot on open.
func WithOpenResetDelay(d time.Duration) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if d < 0 || d > MaxOpenResetDelay {
			return fmt.Errorf("arm: open reset delay %v out of range [0, %v]", d, MaxOpenResetDelay)
		}
		cfg.openResetDelay = d

		return nil
	})
}

// WithRetryLimit sets the bounded retry budget per startup step.
func WithRetryLimit(n int) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if n < 0 || n > MaxRetryLimit {
			return fmt.Errorf("arm: retry limit %d out of range [0, %d]", n, MaxRetryLimit)
		}
		cfg.retryLimit = n

		return nil
	})
}

// WithLogger sets the logger for the session.
func WithLogger(l logger.Logger) SessionOption {
	return sessionOptFunc(func(cfg *SessionConfig) error {
		if l == nil {
			return errors.New("arm: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
