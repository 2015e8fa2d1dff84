package arm

import "errors"

// Sentinel errors for the arm serial protocol.
var (
	// Link-level errors.
	ErrLinkOpen    = errors.New("arm: cannot open serial port")
	ErrLinkClosed  = errors.New("arm: serial link is closed")
	ErrLinkFailure = errors.New("arm: serial link failure")
	ErrTimeout     = errors.New("arm: no response within command deadline")

	// Codec errors.
	ErrInvalidOpcode     = errors.New("arm: invalid opcode")
	ErrInvalidParam      = errors.New("arm: invalid command parameter")
	ErrEmptyCommand      = errors.New("arm: empty command line")
	ErrMalformedResponse = errors.New("arm: malformed response")

	// Session-level errors.
	ErrNotReady          = errors.New("arm: command not permitted in current session state")
	ErrBusy              = errors.New("arm: link busy with a foreground command")
	ErrSessionFaulted    = errors.New("arm: session faulted, hardware reset and process restart required")
	ErrSessionOpen       = errors.New("arm: session already opened")
	ErrInvalidTransition = errors.New("arm: invalid session state transition")
)
