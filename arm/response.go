package arm

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseStatus classifies a decoded response line.
type ParseStatus uint8

const (
	// StatusOk indicates the line matched the command's expected schema.
	StatusOk ParseStatus = iota
	// StatusMalformed indicates a line arrived but failed to parse.
	// Malformed responses are surfaced, not raised; callers decide
	// whether they are retryable.
	StatusMalformed
)

// String returns the string representation of the parse status.
func (s ParseStatus) String() string {
	if s == StatusOk {
		return "ok"
	}
	return "malformed"
}

// Pose is the six coordinates describing arm position and orientation.
// Values are reported as-is from the device; no unit conversion applies.
//
// Seq is a monotonically increasing sample sequence number and CapturedAt
// the capture timestamp; both are assigned by the position monitor.
type Pose struct {
	X, Y, Z float64
	A, B, C float64

	Seq        uint64
	CapturedAt time.Time
}

// String renders the pose coordinates in wire order.
func (p Pose) String() string {
	return fmt.Sprintf("X%g Y%g Z%g A%g B%g C%g", p.X, p.Y, p.Z, p.A, p.B, p.C)
}

// Response is a decoded device response line.
type Response struct {
	// Raw is the response line as received, trimmed of the terminator.
	Raw string
	// Status reports whether Raw matched the expected payload schema.
	Status ParseStatus
	// Kind echoes the expected response kind of the originating command.
	Kind ResponseKind

	// Identity is the payload string for identity responses (T02, T03).
	Identity string
	// Pose is the decoded pose for pose responses (T06).
	Pose *Pose
}

// Ok reports whether the response parsed successfully.
func (r *Response) Ok() bool { return r.Status == StatusOk }

// DecodeResponse classifies and decodes a raw response line against the
// schema the command expects. Parse failures yield StatusMalformed with
// Raw preserved; they never return an error.
func DecodeResponse(cmd Command, raw string) *Response {
	resp := &Response{Raw: raw, Kind: cmd.kind}

	switch cmd.kind {
	case KindEcho:
		if raw != cmd.opcode {
			resp.Status = StatusMalformed
		}

	case KindAck:
		if raw != "OK" {
			resp.Status = StatusMalformed
		}

	case KindIdentity:
		payload, ok := strings.CutPrefix(raw, cmd.opcode+" ")
		payload = strings.TrimSpace(payload)
		if !ok || payload == "" {
			resp.Status = StatusMalformed
			break
		}
		resp.Identity = payload

	case KindPose:
		pose, ok := parsePose(cmd.opcode, raw)
		if !ok {
			resp.Status = StatusMalformed
			break
		}
		resp.Pose = pose

	default:
		resp.Status = StatusMalformed
	}

	return resp
}

// poseAxes is the fixed wire order of pose coordinates.
var poseAxes = [6]byte{'X', 'Y', 'Z', 'A', 'B', 'C'}

// parsePose decodes a six-field pose payload. The opcode token may or may
// not be echoed first, and each field may carry its axis letter prefix
// ("X1.5") or be a bare number; mixed forms are accepted field by field.
func parsePose(opcode, raw string) (*Pose, bool) {
	fields := strings.Fields(raw)
	if len(fields) > 0 && fields[0] == opcode {
		fields = fields[1:]
	}

	if len(fields) != len(poseAxes) {
		return nil, false
	}

	var vals [6]float64
	for i, tok := range fields {
		if len(tok) > 1 && tok[0] == poseAxes[i] {
			tok = tok[1:]
		}

		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, false
		}
		vals[i] = v
	}

	return &Pose{X: vals[0], Y: vals[1], Z: vals[2], A: vals[3], B: vals[4], C: vals[5]}, true
}
