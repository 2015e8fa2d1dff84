// Package arm implements the serial command/response protocol engine for
// a six-axis robotic arm driven over a half-duplex ASCII link.
//
// The arm speaks a fixed vocabulary of G-, M-, and T-prefixed opcodes
// over 115200 8-N-1 serial. The engine transports opaque command lines
// and parses response payloads; it does not interpret kinematics or
// validate that a target pose is reachable.
//
// # Protocol Overview
//
// The link is strictly half-duplex and synchronous: exactly one request
// is outstanding at a time, and the response always follows its request
// before the next request may be sent. Responses therefore correlate to
// requests by alternation alone; no request IDs exist on the wire.
//
// Commands are ASCII lines: an opcode token (one letter in {G, M, T}
// plus two digits) optionally followed by space-separated parameter
// tokens of the form "<Letter><number>", e.g.
//
//	G05 X0 Y0 Z0 A0 B0 C0
//	M02 F200
//
// # Session Lifecycle
//
// Every session runs the mandatory startup sequence before accepting
// arbitrary commands:
//
//  1. Open the serial link (flushing boot-time noise).
//  2. Probe T01 (keep-alive), T02 (serial number), T03 (firmware
//     version), in that fixed order.
//  3. Execute G29 to home the arm, with an extended acknowledgement
//     ceiling (homing routinely takes several seconds).
//
// The session state machine (Disconnected → Probing → Homing → Ready)
// gates which commands are legal at each stage. Any mid-transaction I/O
// failure, or an exhausted retry budget during startup, faults the
// session terminally; recovery requires a hardware reset and a new
// session.
//
// # Concurrency
//
// All traffic, foreground commands and the background position
// monitor's T06 polls alike, flows through a single dispatcher critical
// section, so at most one write-then-read transaction touches the link
// at any instant. Foreground commands take priority: the monitor backs
// off to its next interval rather than queuing ahead of an operator
// command.
//
// # Usage
//
//	s, err := arm.Open(ctx, "/dev/ttyUSB0")
//	if err != nil {
//		// startup failed; hardware reset required if faulted
//	}
//	defer s.Close()
//
//	sub := s.Monitor().Subscribe(8)
//	if err := s.Monitor().Start(); err != nil { ... }
//
//	resp, err := s.ExecuteRaw(ctx, "G05 X0 Y0 Z0 A0 B0 C0")
package arm
