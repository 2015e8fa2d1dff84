package arm

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePort is an in-memory scripted serial port. A respond callback plays
// the role of the robot firmware: it receives each written command line
// and returns the reply line, if any.
type fakePort struct {
	t *testing.T

	mu          sync.Mutex
	pending     []byte
	availableAt time.Time
	written     []string
	readTimeout time.Duration
	readErr     error
	writeErr    error
	closed      bool

	// respond returns the device reply for a command line. ok=false
	// means the device stays silent (reply timeout).
	respond func(line string) (reply string, ok bool)

	// delay postpones each reply's availability, simulating slow motions.
	delay time.Duration
}

func newFakePort(t *testing.T) *fakePort {
	return &fakePort{t: t}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil {
		return 0, p.writeErr
	}

	// Half-duplex check: a new command must never arrive while a prior
	// reply is still undelivered.
	if len(p.pending) > 0 {
		p.t.Errorf("half-duplex violation: command %q written while reply %q pending",
			strings.TrimSpace(string(b)), string(p.pending))
	}

	line := strings.TrimSpace(string(b))
	p.written = append(p.written, line)

	if p.respond != nil {
		if reply, ok := p.respond(line); ok {
			p.pending = append(p.pending, []byte(reply+"\n")...)
			p.availableAt = time.Now().Add(p.delay)
		}
	}

	return len(b), nil
}

func (p *fakePort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = d

	return nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	timeout := p.readTimeout
	p.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		p.mu.Lock()
		if p.readErr != nil {
			err := p.readErr
			p.mu.Unlock()

			return 0, err
		}

		if len(p.pending) > 0 && !time.Now().Before(p.availableAt) {
			n := copy(b, p.pending)
			p.pending = p.pending[n:]
			p.mu.Unlock()

			return n, nil
		}
		p.mu.Unlock()

		if !time.Now().Before(deadline) {
			return 0, nil // poll window expired, no data
		}

		time.Sleep(time.Millisecond)
	}
}

func (p *fakePort) ResetInputBuffer() error { return nil }

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true

	return nil
}

func (p *fakePort) writtenLines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]string(nil), p.written...)
}

func (p *fakePort) setReadErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// fakeArm scripts the robot firmware's fixed command table on top of a
// fakePort: T01..T03 identity probes, G29 homing, T06 pose queries, and
// "OK" acknowledgements for any other motion command.
type fakeArm struct {
	port *fakePort

	mu     sync.Mutex
	pose   [6]float64
	serial string
	fw     string

	// silent holds opcodes the device ignores entirely; an entry is
	// decremented per ignored command, so "time out once" is scriptable.
	silent map[string]int

	// garbled holds opcodes answered with a scripted malformed line.
	garbled map[string]string

	homeDelay time.Duration
}

func newFakeArm(t *testing.T) *fakeArm {
	a := &fakeArm{
		port:    newFakePort(t),
		serial:  "SN-1234",
		fw:      "v2.1.0",
		silent:  make(map[string]int),
		garbled: make(map[string]string),
	}
	a.port.respond = a.handle

	return a
}

func (a *fakeArm) handle(line string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	opcode := strings.Fields(line)[0]

	if n := a.silent[opcode]; n > 0 {
		a.silent[opcode] = n - 1
		return "", false
	}

	if reply, ok := a.garbled[opcode]; ok {
		delete(a.garbled, opcode)
		return reply, true
	}

	switch opcode {
	case OpKeepAlive:
		return OpKeepAlive, true
	case OpSerialNumber:
		return OpSerialNumber + " " + a.serial, true
	case OpFirmwareVersion:
		return OpFirmwareVersion + " " + a.fw, true
	case OpQueryPose:
		return fmt.Sprintf("T06 X%g Y%g Z%g A%g B%g C%g",
			a.pose[0], a.pose[1], a.pose[2], a.pose[3], a.pose[4], a.pose[5]), true
	case OpHome:
		a.port.delay = a.homeDelay
		a.pose = [6]float64{}
		return "OK", true
	default:
		return "OK", true
	}
}

func (a *fakeArm) setPose(x, y, z, aa, b, c float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pose = [6]float64{x, y, z, aa, b, c}
}

func (a *fakeArm) silenceOnce(opcode string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.silent[opcode]++
}

func (a *fakeArm) silenceAlways(opcode string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.silent[opcode] = 1 << 20
}

func (a *fakeArm) garbleOnce(opcode, reply string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.garbled[opcode] = reply
}

// harness wires a fake arm to a real link, state machine, and dispatcher.
type harness struct {
	arm     *fakeArm
	link    *Link
	state   *StateMachine
	disp    *Dispatcher
	cfg     *SessionConfig
	metrics *SessionMetrics
}

func newHarness(t *testing.T, opts ...SessionOption) *harness {
	t.Helper()

	base := []SessionOption{
		WithCommandTimeout(200 * time.Millisecond),
		WithHomingTimeout(1 * time.Second),
		WithPollInterval(50 * time.Millisecond),
	}

	cfg, err := NewSessionConfig("/dev/fake", append(base, opts...)...)
	if err != nil {
		t.Fatalf("session config: %v", err)
	}

	device := newFakeArm(t)
	link := newLink(device.port, cfg.PortPath(), cfg.GetLogger())
	state := NewStateMachine(cfg.GetLogger())
	metrics := &SessionMetrics{}

	return &harness{
		arm:     device,
		link:    link,
		state:   state,
		disp:    newDispatcher(link, state, cfg, metrics),
		cfg:     cfg,
		metrics: metrics,
	}
}

// toReady walks the state machine straight to Ready, bypassing the
// sequencer, for tests that only exercise steady-state behavior.
func (h *harness) toReady(t *testing.T) {
	t.Helper()

	if err := h.state.ToProbing(); err != nil {
		t.Fatalf("to probing: %v", err)
	}
	if err := h.state.ToHoming(); err != nil {
		t.Fatalf("to homing: %v", err)
	}
	if err := h.state.ToReady(); err != nil {
		t.Fatalf("to ready: %v", err)
	}
}
