package arm

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/robosix/armlink/logger"
)

// SessionState represents the protocol-level stage of an arm session.
type SessionState uint32

// Session states, in startup order. Faulted is terminal.
const (
	// Disconnected indicates the serial link is not yet opened.
	Disconnected SessionState = iota
	// Probing indicates the link is open and the ordered health probes
	// (T01, T02, T03) are in flight.
	Probing
	// Homing indicates the probes succeeded and the homing motion (G29)
	// is in flight.
	Homing
	// Ready indicates the startup sequence completed; all commands are
	// accepted and the position monitor may poll.
	Ready
	// Faulted indicates an unrecoverable failure. The state is terminal
	// for the session: recovery requires a hardware reset and a new
	// session.
	Faulted
)

// String returns the string representation of the session state.
func (s SessionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Probing:
		return "probing"
	case Homing:
		return "homing"
	case Ready:
		return "ready"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// IsReady returns true if the session accepts arbitrary commands.
func (s SessionState) IsReady() bool { return s == Ready }

// IsFaulted returns true if the session has terminally failed.
func (s SessionState) IsFaulted() bool { return s == Faulted }

// StateChangeHandler is invoked on every session state transition.
//
// Handlers run synchronously on the transitioning goroutine while the
// state machine lock is held; keep them short and never dispatch commands
// from one.
type StateChangeHandler func(prev, next SessionState)

// StateMachine tracks the session state and gates its transitions.
//
// Transitions follow the fixed startup order Disconnected → Probing →
// Homing → Ready; any state may transition to Faulted. There is no path
// out of Faulted and no Ready → Probing path: a session never re-homes.
// All methods are safe for concurrent use.
type StateMachine struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	handlers []StateChangeHandler
}

// NewStateMachine creates a StateMachine in the Disconnected state.
func NewStateMachine(l logger.Logger, handlers ...StateChangeHandler) *StateMachine {
	sm := &StateMachine{
		logger:   l,
		handlers: append([]StateChangeHandler(nil), handlers...),
	}
	sm.cond = sync.NewCond(&sm.mu)
	sm.state.Store(uint32(Disconnected))

	return sm
}

// State returns the current session state.
func (sm *StateMachine) State() SessionState {
	return SessionState(sm.state.Load())
}

// AddHandler registers additional state change handlers.
func (sm *StateMachine) AddHandler(handlers ...StateChangeHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.handlers = append(sm.handlers, handlers...)
}

// WaitState blocks until the session reaches the given state, the session
// faults, or ctx is done. Because Faulted is terminal, waiting for any
// other state fails with ErrSessionFaulted once the session faults.
func (sm *StateMachine) WaitState(ctx context.Context, state SessionState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	stopFunc := context.AfterFunc(ctx, func() {
		sm.cond.Broadcast()
	})
	defer stopFunc()

	for {
		cur := sm.State()
		if cur == state {
			return nil
		}
		if cur == Faulted {
			return ErrSessionFaulted
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			sm.cond.Wait()
		}
	}
}

// ToProbing transitions Disconnected → Probing when the link opens.
func (sm *StateMachine) ToProbing() error {
	return sm.to(Probing, Disconnected)
}

// ToHoming transitions Probing → Homing after all three probes succeed.
func (sm *StateMachine) ToHoming() error {
	return sm.to(Homing, Probing)
}

// ToReady transitions Homing → Ready after the homing acknowledgement.
func (sm *StateMachine) ToReady() error {
	return sm.to(Ready, Homing)
}

// ToFaulted transitions any state to Faulted. It is a no-op when the
// session is already faulted. Faulted is terminal.
func (sm *StateMachine) ToFaulted() {
	_ = sm.to(Faulted, Disconnected, Probing, Homing, Ready)
}

// to performs a locked transition to next, allowed only from the listed
// states. A transition to the current state is a no-op.
func (sm *StateMachine) to(next SessionState, allowed ...SessionState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	cur := sm.State()
	if cur == next {
		return nil
	}

	ok := false
	for _, s := range allowed {
		if cur == s {
			ok = true
			break
		}
	}
	if !ok {
		sm.logger.Warn("rejected session state transition",
			"from", cur.String(), "to", next.String())

		return ErrInvalidTransition
	}

	sm.setState(next)
	sm.logger.Debug("session state transition", "from", cur.String(), "to", next.String())

	for _, handler := range sm.handlers {
		if handler != nil {
			handler(cur, next)
		}
	}

	return nil
}

// setState atomically stores the new state and wakes all waiters.
func (sm *StateMachine) setState(next SessionState) {
	sm.state.Store(uint32(next))
	sm.cond.Broadcast()
}
