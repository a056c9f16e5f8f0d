package ipc

import (
	"errors"
	"fmt"
	"strings"
)

// Transport carries signals between the VSM and the outside world.
//
// Send and Receive work on raw name/value text; literal parsing and
// numeric-ID translation happen at the driver boundary. Receive blocks
// until a message arrives and returns io.EOF when the peer goes away.
type Transport interface {
	Send(name, value string) error
	Receive() (name, value string, err error)
	Close() error
}

// ErrMalformed marks a message that does not split into name and value.
// The driver logs and drops such messages; they are never fatal.
var ErrMalformed = errors.New("malformed message")

// SignalQuit is the reserved input closing the VSM endpoint.
const SignalQuit = "quit"

// splitMessage parses the wire format "name=value". The bare word "quit"
// passes through as a signal with no value.
func splitMessage(line string) (name, value string, err error) {
	if line == SignalQuit {
		return SignalQuit, "", nil
	}
	name, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	return strings.TrimSpace(name), strings.TrimSpace(value), nil
}
