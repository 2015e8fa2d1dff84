package arm

import (
	"sync/atomic"
)

// SessionMetrics contains atomic counters for an arm session.
// Counters can back a prometheus CounterFunc or GaugeFunc.
type SessionMetrics struct {
	// CommandSendCount is the number of command lines written to the link.
	CommandSendCount atomic.Uint64
	// ResponseRecvCount is the number of response lines received.
	ResponseRecvCount atomic.Uint64
	// TimeoutCount is the number of commands that hit their deadline.
	TimeoutCount atomic.Uint64
	// MalformedCount is the number of responses that failed to parse.
	MalformedCount atomic.Uint64
	// RetryCount is the number of startup step retries performed.
	RetryCount atomic.Uint64

	// PollCount is the number of position queries issued by the monitor.
	PollCount atomic.Uint64
	// PollMissCount is the number of missed position samples.
	PollMissCount atomic.Uint64
	// PollSkipCount is the number of polls skipped because a foreground
	// command held or was waiting for the link.
	PollSkipCount atomic.Uint64
}

func (m *SessionMetrics) incCommandSendCount() {
	m.CommandSendCount.Add(1)
}

func (m *SessionMetrics) incResponseRecvCount() {
	m.ResponseRecvCount.Add(1)
}

func (m *SessionMetrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *SessionMetrics) incMalformedCount() {
	m.MalformedCount.Add(1)
}

func (m *SessionMetrics) incRetryCount() {
	m.RetryCount.Add(1)
}

func (m *SessionMetrics) incPollCount() {
	m.PollCount.Add(1)
}

func (m *SessionMetrics) incPollMissCount() {
	m.PollMissCount.Add(1)
}

func (m *SessionMetrics) incPollSkipCount() {
	m.PollSkipCount.Add(1)
}
