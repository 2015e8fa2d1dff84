package arm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Opcodes from the arm's fixed command table that the engine itself needs
// to know about. Any other G/M/T opcode is transported opaquely.
const (
	OpKeepAlive       = "T01" // health probe, echoes the opcode
	OpSerialNumber    = "T02" // identity probe, replies "T02 <serial>"
	OpFirmwareVersion = "T03" // identity probe, replies "T03 <version>"
	OpQueryPose       = "T06" // position query, replies a six-field pose
	OpHome            = "G29" // startup homing motion, replies "OK"
)

// ResponseKind declares the payload schema a command expects back.
type ResponseKind uint8

const (
	// KindAck expects a bare "OK" acknowledgement (motion and M commands).
	KindAck ResponseKind = iota
	// KindEcho expects the opcode echoed back verbatim (T01).
	KindEcho
	// KindIdentity expects "<opcode> <string>" (T02, T03).
	KindIdentity
	// KindPose expects a six-field numeric pose (T06).
	KindPose
)

// String returns the string representation of the response kind.
func (k ResponseKind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindEcho:
		return "echo"
	case KindIdentity:
		return "identity"
	case KindPose:
		return "pose"
	default:
		return "unknown"
	}
}

// Param is a single command parameter: a key letter and a numeric value,
// encoded on the wire as "<Letter><number>" (e.g. "X0", "F150").
type Param struct {
	Key   byte
	Value float64
}

// String returns the wire token for the parameter.
func (p Param) String() string {
	return string(p.Key) + strconv.FormatFloat(p.Value, 'f', -1, 64)
}

// Command is an immutable arm command: an opcode, its ordered parameters,
// the expected response kind, and an optional per-command timeout.
//
// A zero timeout means the session's default command timeout applies.
type Command struct {
	opcode  string
	params  []Param
	kind    ResponseKind
	timeout time.Duration
}

// NewCommand creates a Command for the given opcode and parameters.
//
// The opcode must be one ASCII letter in {G, M, T} followed by two digits.
// The expected response kind is derived from the engine's command table;
// opcodes the engine does not know expect a plain acknowledgement.
func NewCommand(opcode string, params ...Param) (Command, error) {
	if err := validateOpcode(opcode); err != nil {
		return Command{}, err
	}

	for _, p := range params {
		if p.Key < 'A' || p.Key > 'Z' {
			return Command{}, fmt.Errorf("%w: key %q", ErrInvalidParam, string(p.Key))
		}
	}

	return Command{
		opcode: opcode,
		params: append([]Param(nil), params...),
		kind:   kindForOpcode(opcode),
	}, nil
}

// ParseCommand parses an operator-typed command line (e.g. "M02 F200",
// "G05 X0 Y0 Z0 A0 B0 C0") into a Command.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrEmptyCommand
	}

	params := make([]Param, 0, len(fields)-1)
	for _, tok := range fields[1:] {
		if len(tok) < 2 {
			return Command{}, fmt.Errorf("%w: token %q", ErrInvalidParam, tok)
		}

		val, err := strconv.ParseFloat(tok[1:], 64)
		if err != nil {
			return Command{}, fmt.Errorf("%w: token %q", ErrInvalidParam, tok)
		}

		params = append(params, Param{Key: tok[0], Value: val})
	}

	return NewCommand(strings.ToUpper(fields[0]), params...)
}

// KeepAlive creates the first startup probe (T01).
func KeepAlive() Command {
	return Command{opcode: OpKeepAlive, kind: KindEcho}
}

// SerialNumber creates the second startup probe (T02).
func SerialNumber() Command {
	return Command{opcode: OpSerialNumber, kind: KindIdentity}
}

// FirmwareVersion creates the third startup probe (T03).
func FirmwareVersion() Command {
	return Command{opcode: OpFirmwareVersion, kind: KindIdentity}
}

// Home creates the startup homing command (G29). The dispatcher applies
// the session's extended homing timeout when the command timeout is zero.
func Home() Command {
	return Command{opcode: OpHome, kind: KindAck}
}

// QueryPose creates the position query command (T06).
func QueryPose() Command {
	return Command{opcode: OpQueryPose, kind: KindPose}
}

// Opcode returns the command's opcode token.
func (c Command) Opcode() string { return c.opcode }

// Params returns a copy of the command's ordered parameters.
func (c Command) Params() []Param {
	return append([]Param(nil), c.params...)
}

// Kind returns the expected response kind.
func (c Command) Kind() ResponseKind { return c.kind }

// Timeout returns the per-command timeout; zero means the session default.
func (c Command) Timeout() time.Duration { return c.timeout }

// WithTimeout returns a copy of the command with the given timeout.
func (c Command) WithTimeout(d time.Duration) Command {
	c.timeout = d
	return c
}

// Encode renders the command into its wire line, without the terminator:
// the opcode followed by space-separated parameter tokens.
func (c Command) Encode() string {
	if len(c.params) == 0 {
		return c.opcode
	}

	var b strings.Builder
	b.WriteString(c.opcode)
	for _, p := range c.params {
		b.WriteByte(' ')
		b.WriteString(p.String())
	}

	return b.String()
}

// isProbe reports whether the opcode is one of the three startup probes.
func isProbe(opcode string) bool {
	return opcode == OpKeepAlive || opcode == OpSerialNumber || opcode == OpFirmwareVersion
}

func kindForOpcode(opcode string) ResponseKind {
	switch opcode {
	case OpKeepAlive:
		return KindEcho
	case OpSerialNumber, OpFirmwareVersion:
		return KindIdentity
	case OpQueryPose:
		return KindPose
	default:
		return KindAck
	}
}

func validateOpcode(opcode string) error {
	if len(opcode) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidOpcode, opcode)
	}

	switch opcode[0] {
	case 'G', 'M', 'T':
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOpcode, opcode)
	}

	if opcode[1] < '0' || opcode[1] > '9' || opcode[2] < '0' || opcode[2] > '9' {
		return fmt.Errorf("%w: %q", ErrInvalidOpcode, opcode)
	}

	return nil
}
