package arm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/robosix/armlink/internal/task"
	"github.com/robosix/armlink/logger"
)

const monitorTaskName = "positionMonitor"

// PoseSample is one position monitor observation delivered to subscribers.
//
// When Missed is true the poll produced no pose (timeout or malformed
// payload); Err carries the reason and Pose is zero. Missed samples still
// consume a sequence number, so gaps in delivered poses are visible.
type PoseSample struct {
	Pose   Pose
	Seq    uint64
	Missed bool
	Err    error
}

// PoseSubscription is one subscriber's feed of pose samples.
//
// Samples are delivered in capture order. The channel is never closed;
// when the subscriber falls behind, the oldest undelivered samples are
// dropped rather than stalling the monitor.
type PoseSubscription struct {
	id uint64
	m  *Monitor
	ch chan PoseSample
}

// Samples returns the subscriber's sample channel.
func (s *PoseSubscription) Samples() <-chan PoseSample { return s.ch }

// Cancel removes the subscription. After Cancel returns no further
// samples are delivered; already-buffered samples may still be read.
func (s *PoseSubscription) Cancel() {
	s.m.subs.Delete(s.id)
}

// Monitor is the background position poller.
//
// Once the session is Ready it issues a T06 query through the dispatcher
// every poll interval and publishes each resulting pose to subscribers.
// It reads the session state but never mutates it, and it never preempts
// a foreground command: a busy link skips the poll until the next
// interval.
type Monitor struct {
	disp    *Dispatcher
	state   *StateMachine
	cfg     *SessionConfig
	logger  logger.Logger
	taskMgr *task.Manager
	metrics *SessionMetrics

	subs   *xsync.MapOf[uint64, *PoseSubscription]
	nextID atomic.Uint64

	seq     atomic.Uint64
	last    atomic.Pointer[Pose]
	started atomic.Bool
}

func newMonitor(disp *Dispatcher, state *StateMachine, cfg *SessionConfig, taskMgr *task.Manager, metrics *SessionMetrics) *Monitor {
	return &Monitor{
		disp:    disp,
		state:   state,
		cfg:     cfg,
		logger:  cfg.logger,
		taskMgr: taskMgr,
		metrics: metrics,
		subs:    xsync.NewMapOf[uint64, *PoseSubscription](),
	}
}

// Subscribe registers a new pose feed with the given channel buffer size.
// A non-positive buffer defaults to 1.
func (m *Monitor) Subscribe(buffer int) *PoseSubscription {
	if buffer <= 0 {
		buffer = 1
	}

	sub := &PoseSubscription{
		id: m.nextID.Add(1),
		m:  m,
		ch: make(chan PoseSample, buffer),
	}
	m.subs.Store(sub.id, sub)

	return sub
}

// Start begins background polling at the session's poll interval.
// Starting an already-running monitor is a no-op.
func (m *Monitor) Start() error {
	if !m.started.CompareAndSwap(false, true) {
		return nil
	}

	_, err := m.taskMgr.StartInterval(monitorTaskName, m.pollOnce, m.cfg.pollInterval, false)
	if err != nil {
		m.started.Store(false)
		return fmt.Errorf("arm: start position monitor: %w", err)
	}

	m.logger.Info("position monitor started", "interval", m.cfg.pollInterval)

	return nil
}

// Stop halts background polling. It is idempotent. The poll task winds
// down by its next tick; session teardown cancels it immediately.
func (m *Monitor) Stop() {
	if m.started.CompareAndSwap(true, false) {
		m.logger.Info("position monitor stopped")
	}
}

// Running reports whether the monitor is polling.
func (m *Monitor) Running() bool { return m.started.Load() }

// LastPose returns a copy of the most recent pose, or nil if no pose has
// been captured yet.
func (m *Monitor) LastPose() *Pose {
	p := m.last.Load()
	if p == nil {
		return nil
	}

	pose := *p

	return &pose
}

// pollOnce performs a single poll tick. Returning false terminates the
// background task.
func (m *Monitor) pollOnce() bool {
	if !m.started.Load() {
		return false
	}

	st := m.state.State()
	if st.IsFaulted() {
		m.logger.Error("position monitor stopped: session faulted, " +
			"reset the controller and start a new session")
		m.started.Store(false)

		return false
	}
	if !st.IsReady() {
		// Not ready yet; keep waiting.
		return true
	}

	resp, err := m.disp.poll(context.Background(), QueryPose())
	switch {
	case errors.Is(err, ErrBusy):
		// A foreground command owns the link. Back off and retry on the
		// next interval; no sequence number is consumed.
		return true

	case errors.Is(err, ErrTimeout):
		m.publishMissed(err)
		return true

	case errors.Is(err, ErrNotReady):
		return true

	case err != nil:
		// Link failure or session fault: the monitor stops for good.
		m.logger.Error("position monitor stopped", "error", err)
		m.started.Store(false)

		return false
	}

	if !resp.Ok() || resp.Pose == nil {
		m.publishMissed(fmt.Errorf("%w: %q", ErrMalformedResponse, resp.Raw))
		return true
	}

	pose := *resp.Pose
	pose.Seq = m.seq.Add(1)
	pose.CapturedAt = time.Now()

	m.last.Store(&pose)
	m.publish(PoseSample{Pose: pose, Seq: pose.Seq})

	return true
}

// publishMissed reports a missed sample. The failure stays local to the
// feed: the last pose is not updated and the session state is untouched.
func (m *Monitor) publishMissed(err error) {
	m.metrics.incPollMissCount()

	seq := m.seq.Add(1)
	m.logger.Warn("missed position sample", "seq", seq, "error", err)
	m.publish(PoseSample{Seq: seq, Missed: true, Err: err})
}

// publish delivers a sample to every subscriber without blocking: a full
// subscriber has its oldest sample dropped to make room for the newest.
func (m *Monitor) publish(sample PoseSample) {
	m.subs.Range(func(_ uint64, sub *PoseSubscription) bool {
		for {
			select {
			case sub.ch <- sample:
				return true
			default:
			}

			select {
			case <-sub.ch: // drop the oldest
			default:
			}
		}
	})
}
