package arm

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/robosix/armlink/internal/pool"
	"github.com/robosix/armlink/internal/task"
	"github.com/robosix/armlink/logger"
)

// Session is one connection lifetime to the arm: a serial link, the
// command dispatcher guarding it, the session state machine, and the
// background position monitor.
//
// A session is single-use. Open drives the mandatory startup sequence to
// Ready; a Faulted session cannot be revived, mirroring the hardware,
// which requires a physical reset. Construct a new Session after a fault.
type Session struct {
	pctx      context.Context
	ctx       context.Context
	ctxCancel context.CancelFunc
	cfg       *SessionConfig
	logger    logger.Logger

	link    *Link
	disp    *Dispatcher
	state   *StateMachine
	monitor *Monitor
	taskMgr *task.Manager
	metrics SessionMetrics

	identity Identity
	opened   atomic.Bool
	closed   atomic.Bool
}

// Open is a convenience constructor: it builds a session configuration
// for portPath, creates the session, and runs the startup sequence.
func Open(ctx context.Context, portPath string, opts ...SessionOption) (*Session, error) {
	cfg, err := NewSessionConfig(portPath, opts...)
	if err != nil {
		return nil, err
	}

	s, err := NewSession(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// NewSession creates a Session with the given context and configuration.
// The serial device is not touched until Open.
func NewSession(ctx context.Context, cfg *SessionConfig) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("arm: session config is nil")
	}

	s := &Session{
		pctx:    ctx,
		cfg:     cfg,
		logger:  cfg.logger,
		taskMgr: task.NewManager(ctx, cfg.logger),
	}
	s.ctx, s.ctxCancel = context.WithCancel(ctx)

	s.state = NewStateMachine(cfg.logger, func(prev, next SessionState) {
		if next == Faulted {
			s.logger.Error("session faulted; " +
				"reset the arm controller and restart the process to recover")
		}
	})
	s.disp = newDispatcher(nil, s.state, cfg, &s.metrics)
	s.monitor = newMonitor(s.disp, s.state, cfg, s.taskMgr, &s.metrics)

	return s, nil
}

// Open opens the serial link and runs the mandatory startup sequence:
// the three ordered health/identity probes, then the homing motion. On
// return the session is Ready and the device identity is available.
//
// Open may be called once per session. The position monitor is not
// started automatically; call Monitor().Start() once Open returns.
func (s *Session) Open(ctx context.Context) error {
	if !s.opened.CompareAndSwap(false, true) {
		return ErrSessionOpen
	}

	link, err := openLink(s.cfg.portPath, s.logger)
	if err != nil {
		s.state.ToFaulted()
		return err
	}
	s.link = link
	s.disp.link = link

	if delay := s.cfg.openResetDelay; delay > 0 {
		s.logger.Debug("waiting for controller to settle", "delay", delay)

		settle := pool.GetTimer(delay)
		select {
		case <-settle.C:
		case <-ctx.Done():
			pool.PutTimer(settle)
			_ = link.Close()

			return ctx.Err()
		}
		pool.PutTimer(settle)
	}

	seq := newHealthSequencer(s.disp, s.state, s.cfg, &s.metrics)

	id, err := seq.run(ctx)
	if err != nil {
		_ = link.Close()
		return err
	}
	s.identity = id

	return nil
}

// Execute sends one command through the dispatcher and blocks until its
// response, timeout, or link failure. See Dispatcher.Execute.
func (s *Session) Execute(ctx context.Context, cmd Command) (*Response, error) {
	return s.disp.Execute(ctx, cmd)
}

// ExecuteRaw parses an operator-typed command line and dispatches it.
// The raw response line is available on the returned Response even when
// it does not match the expected payload schema.
func (s *Session) ExecuteRaw(ctx context.Context, line string) (*Response, error) {
	cmd, err := ParseCommand(line)
	if err != nil {
		return nil, err
	}

	return s.Execute(ctx, cmd)
}

// Monitor returns the session's position monitor.
func (s *Session) Monitor() *Monitor { return s.monitor }

// State returns the current session state.
func (s *Session) State() SessionState { return s.state.State() }

// Identity returns the device identity captured during startup.
func (s *Session) Identity() Identity { return s.identity }

// Metrics returns the session's metrics counters.
func (s *Session) Metrics() *SessionMetrics { return &s.metrics }

// GetLogger returns the logger associated with the session.
func (s *Session) GetLogger() logger.Logger { return s.logger }

// Close tears the session down: the position monitor stops first, then
// any in-flight transaction completes or times out, and only then is the
// link closed. Close is idempotent and safe to call on a faulted or
// never-opened session.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.logger.Debug("closing session", "state", s.state.State().String())

	s.monitor.Stop()
	s.taskMgr.Stop()

	done := make(chan struct{})
	go func() {
		s.taskMgr.Wait()
		close(done)
	}()

	closeTimer := pool.GetTimer(s.cfg.closeTimeout)
	defer pool.PutTimer(closeTimer)

	select {
	case <-done:
	case <-closeTimer.C:
		s.logger.Error("session close timeout waiting for background tasks",
			"timeout", s.cfg.closeTimeout)
	}

	// Never tear the link down mid read/write.
	s.disp.waitIdle()

	var closeErr error
	if s.link != nil {
		closeErr = s.link.Close()
	}

	s.ctxCancel()
	s.logger.Info("session closed")

	return closeErr
}
