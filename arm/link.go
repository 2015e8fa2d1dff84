package arm

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/robosix/armlink/logger"
)

// Serial framing required by the robot firmware. The parameters are fixed
// and not user-overridable.
const (
	BaudRate = 115200

	// readPollTimeout is the per-read poll window while waiting for a
	// response line. It trades off CPU usage against deadline accuracy.
	readPollTimeout = 50 * time.Millisecond
)

// serialPort is the subset of [serial.Port] the link uses. Tests provide
// scripted in-memory implementations.
type serialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Link owns the physical half-duplex serial transport.
//
// It exposes exactly two primitive operations, WriteLine and ReadLine;
// no multi-line buffering is needed because the protocol is strictly
// request-then-response. Link is not safe for concurrent use: the
// dispatcher serializes all access (invariant: one transaction at a time).
type Link struct {
	port    serialPort
	path    string
	logger  logger.Logger
	closed  atomic.Bool
	pending []byte // bytes read past the last line terminator
}

// openLink opens and configures the serial device at path with the fixed
// 115200 8-N-1 framing, then flushes boot-time noise from the input
// buffer so the first read belongs to the first command.
func openLink(path string, l logger.Logger) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrLinkOpen, path, err)
	}

	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w %s: reset input buffer: %v", ErrLinkOpen, path, err)
	}

	l.Debug("serial link opened", "path", path, "baud", BaudRate)

	return newLink(port, path, l), nil
}

func newLink(port serialPort, path string, l logger.Logger) *Link {
	return &Link{port: port, path: path, logger: l}
}

// WriteLine writes one command line to the device, appending the line
// terminator if the caller did not.
func (l *Link) WriteLine(line string) error {
	if l.closed.Load() {
		return ErrLinkClosed
	}

	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	l.logger.Debug("--> "+strings.TrimSpace(line), "path", l.path)

	if _, err := l.port.Write([]byte(line)); err != nil {
		return fmt.Errorf("%w: write: %v", ErrLinkFailure, err)
	}

	return nil
}

// ReadLine reads one terminated, non-empty line from the device.
//
// It polls the port in short windows until a line arrives or the deadline
// fires. Empty lines (terminator-only noise) are skipped. It returns
// ErrTimeout when the deadline elapses, and an ErrLinkFailure-wrapped
// error on transport failure.
func (l *Link) ReadLine(deadline time.Time) (string, error) {
	if l.closed.Load() {
		return "", ErrLinkClosed
	}

	buf := make([]byte, 256)
	for {
		if line, ok := l.takeLine(); ok {
			l.logger.Debug("<-- "+line, "path", l.path)
			return line, nil
		}

		remain := time.Until(deadline)
		if remain <= 0 {
			return "", ErrTimeout
		}

		poll := readPollTimeout
		if remain < poll {
			poll = remain
		}
		if err := l.port.SetReadTimeout(poll); err != nil {
			return "", fmt.Errorf("%w: set read timeout: %v", ErrLinkFailure, err)
		}

		n, err := l.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("%w: read: %v", ErrLinkFailure, err)
		}
		if n == 0 {
			// Poll window expired with no data; loop re-checks the deadline.
			continue
		}

		l.pending = append(l.pending, buf[:n]...)
	}
}

// takeLine extracts the next complete non-empty line from the pending
// buffer, trimming the terminator and surrounding whitespace.
func (l *Link) takeLine() (string, bool) {
	for {
		idx := -1
		for i, b := range l.pending {
			if b == '\n' {
				idx = i
				break
			}
		}
		if idx < 0 {
			return "", false
		}

		line := strings.TrimSpace(string(l.pending[:idx]))
		l.pending = l.pending[idx+1:]

		if line != "" {
			return line, true
		}
		// Terminator-only noise, keep scanning.
	}
}

// Close closes the serial device. It is idempotent.
func (l *Link) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	l.logger.Debug("serial link closed", "path", l.path)

	return l.port.Close()
}
