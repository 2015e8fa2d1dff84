package arm

import (
	"context"
	"errors"
	"fmt"

	"github.com/robosix/armlink/logger"
)

// Identity holds the device identity captured by the startup probes.
type Identity struct {
	SerialNumber    string
	FirmwareVersion string
}

// healthSequencer runs the mandatory startup sequence: the three ordered
// health/identity probes, then the homing motion, advancing the state
// machine on each stage and faulting the session on failure.
//
// It owns no retry logic beyond the bounded per-step budget; everything
// else is straight-line orchestration through the dispatcher.
type healthSequencer struct {
	disp    *Dispatcher
	state   *StateMachine
	cfg     *SessionConfig
	logger  logger.Logger
	metrics *SessionMetrics
}

func newHealthSequencer(disp *Dispatcher, state *StateMachine, cfg *SessionConfig, metrics *SessionMetrics) *healthSequencer {
	return &healthSequencer{
		disp:    disp,
		state:   state,
		cfg:     cfg,
		logger:  cfg.logger,
		metrics: metrics,
	}
}

// run drives the session from Disconnected to Ready and returns the
// captured identity. Any exhausted retry budget or link failure leaves
// the session Faulted.
func (s *healthSequencer) run(ctx context.Context) (Identity, error) {
	var id Identity

	if err := s.state.ToProbing(); err != nil {
		return id, err
	}

	probes := []struct {
		cmd   Command
		apply func(*Response)
	}{
		{KeepAlive(), nil},
		{SerialNumber(), func(r *Response) { id.SerialNumber = r.Identity }},
		{FirmwareVersion(), func(r *Response) { id.FirmwareVersion = r.Identity }},
	}

	for _, probe := range probes {
		resp, err := s.step(ctx, probe.cmd)
		if err != nil {
			s.state.ToFaulted()
			return id, err
		}

		if probe.apply != nil {
			probe.apply(resp)
		}
	}

	s.logger.Info("startup probes complete",
		"serial", id.SerialNumber, "firmware", id.FirmwareVersion)

	if err := s.state.ToHoming(); err != nil {
		s.state.ToFaulted()
		return id, err
	}

	// The homing acknowledgement may legitimately take close to the full
	// ceiling; the extended timeout is applied by the dispatcher.
	if _, err := s.step(ctx, Home()); err != nil {
		s.state.ToFaulted()
		return id, err
	}

	if err := s.state.ToReady(); err != nil {
		s.state.ToFaulted()
		return id, err
	}

	s.logger.Info("arm homed, session ready")

	return id, nil
}

// step executes one startup command with the bounded retry budget.
// Timeouts and malformed responses count against the budget; link
// failures abort immediately.
func (s *healthSequencer) step(ctx context.Context, cmd Command) (*Response, error) {
	attempts := 1 + s.cfg.retryLimit

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			s.metrics.incRetryCount()
			s.logger.Warn("retrying startup step",
				"opcode", cmd.Opcode(), "attempt", attempt, "budget", attempts)
		}

		resp, err := s.disp.Execute(ctx, cmd)
		switch {
		case err == nil && resp.Ok():
			return resp, nil

		case err == nil:
			lastErr = fmt.Errorf("%w: %q", ErrMalformedResponse, resp.Raw)

		case errors.Is(err, ErrTimeout):
			lastErr = err

		default:
			// Link failure, fault, or cancellation: not retryable.
			return nil, err
		}
	}

	return nil, fmt.Errorf("arm: startup step %s failed after %d attempts: %w",
		cmd.Opcode(), attempts, lastErr)
}
