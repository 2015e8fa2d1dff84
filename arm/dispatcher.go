package arm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robosix/armlink/logger"
)

// Dispatcher serializes all command traffic over the session's single
// serial link.
//
// The link is strictly half-duplex and synchronous: exactly one
// write-then-read round trip proceeds at a time, and responses correlate
// to requests by alternation alone. Foreground callers use Execute; the
// position monitor uses poll, which yields to any waiting foreground
// caller instead of queuing ahead of it.
type Dispatcher struct {
	link    *Link
	state   *StateMachine
	cfg     *SessionConfig
	logger  logger.Logger
	metrics *SessionMetrics

	// mu is the single critical section guarding link access. Admission
	// is FIFO among foreground callers; the monitor never waits on it.
	mu sync.Mutex

	// foreground counts callers inside Execute, whether waiting for or
	// holding mu. The monitor backs off while it is non-zero.
	foreground atomic.Int32
}

func newDispatcher(link *Link, state *StateMachine, cfg *SessionConfig, metrics *SessionMetrics) *Dispatcher {
	return &Dispatcher{
		link:    link,
		state:   state,
		cfg:     cfg,
		logger:  cfg.logger,
		metrics: metrics,
	}
}

// Execute sends one command and blocks until its response, timeout, or
// link failure.
//
// The command is gated against the session state before any link I/O:
// only the startup probes are accepted while Probing, only the homing
// command while Homing, and nothing once the session is Faulted. On
// timeout no retry is attempted and the link state stays unambiguous (the
// protocol defines no partial frames). An I/O failure faults the session;
// callers queued behind the failed transaction fail without touching the
// link.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) (*Response, error) {
	d.foreground.Add(1)
	defer d.foreground.Add(-1)

	if err := d.gate(cmd); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.roundTrip(ctx, cmd)
}

// poll is the position monitor's dispatch path. It never waits for the
// link: if a foreground caller holds or awaits the critical section, it
// returns ErrBusy and the monitor retries on its own next interval.
func (d *Dispatcher) poll(ctx context.Context, cmd Command) (*Response, error) {
	switch st := d.state.State(); {
	case st.IsFaulted():
		return nil, ErrSessionFaulted
	case !st.IsReady():
		return nil, ErrNotReady
	}

	if d.foreground.Load() > 0 {
		d.metrics.incPollSkipCount()
		return nil, ErrBusy
	}

	if !d.mu.TryLock() {
		d.metrics.incPollSkipCount()
		return nil, ErrBusy
	}
	defer d.mu.Unlock()

	d.metrics.incPollCount()

	return d.roundTrip(ctx, cmd)
}

// gate rejects commands that are illegal in the current session state,
// before any link I/O happens.
func (d *Dispatcher) gate(cmd Command) error {
	switch st := d.state.State(); st {
	case Ready:
		return nil
	case Probing:
		if isProbe(cmd.opcode) {
			return nil
		}
		return ErrNotReady
	case Homing:
		if cmd.opcode == OpHome {
			return nil
		}
		return ErrNotReady
	case Faulted:
		return ErrSessionFaulted
	default: // Disconnected
		return ErrNotReady
	}
}

// roundTrip performs one write-then-read transaction. The caller must
// hold mu.
func (d *Dispatcher) roundTrip(ctx context.Context, cmd Command) (*Response, error) {
	// Re-check after acquiring the critical section: the transaction we
	// queued behind may have faulted the session.
	if d.state.State().IsFaulted() {
		return nil, ErrSessionFaulted
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := d.link.WriteLine(cmd.Encode()); err != nil {
		d.escalate(cmd, err)
		return nil, err
	}

	d.metrics.incCommandSendCount()

	timeout := cmd.timeout
	if timeout <= 0 {
		if cmd.opcode == OpHome {
			timeout = d.cfg.homingTimeout
		} else {
			timeout = d.cfg.commandTimeout
		}
	}

	raw, err := d.link.ReadLine(time.Now().Add(timeout))
	switch {
	case err == nil:
	case errors.Is(err, ErrTimeout):
		d.metrics.incTimeoutCount()
		d.logger.Warn("command timeout", "opcode", cmd.opcode, "timeout", timeout)

		return nil, ErrTimeout
	default:
		d.escalate(cmd, err)
		return nil, err
	}

	d.metrics.incResponseRecvCount()

	resp := DecodeResponse(cmd, raw)
	if !resp.Ok() {
		d.metrics.incMalformedCount()
		d.logger.Warn("malformed response", "opcode", cmd.opcode, "raw", raw)
	}

	return resp, nil
}

// escalate handles a mid-transaction I/O failure: the session faults
// terminally and every pending or future dispatch fails immediately.
func (d *Dispatcher) escalate(cmd Command, err error) {
	d.logger.Error("serial link failure, session faulted",
		"opcode", cmd.opcode, "error", err)

	d.state.ToFaulted()
}

// waitIdle blocks until no transaction is in flight. Used during session
// teardown so the link is never closed mid read/write.
func (d *Dispatcher) waitIdle() {
	d.mu.Lock()
	//nolint:staticcheck // empty critical section is the point
	d.mu.Unlock()
}
