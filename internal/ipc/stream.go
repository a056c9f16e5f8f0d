package ipc

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
)

// Stream is a line-oriented transport over an input/output stream pair,
// speaking "name=value" per line. It backs both the default stdio
// transport and the TCP client transport.
type Stream struct {
	in      *bufio.Scanner
	out     io.Writer
	closers []io.Closer
}

// NewStream wraps a reader/writer pair as a transport.
func NewStream(r io.Reader, w io.Writer, closers ...io.Closer) *Stream {
	return &Stream{in: bufio.NewScanner(r), out: w, closers: closers}
}

// Stdio returns the default transport: stdin in, stdout out.
func Stdio() *Stream {
	return NewStream(os.Stdin, os.Stdout)
}

// DialTCP connects to a line-protocol server and uses the connection for
// both directions.
func DialTCP(addr string) (*Stream, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewStream(conn, conn, conn), nil
}

// Send writes one "name=value" line.
func (s *Stream) Send(name, value string) error {
	if _, err := fmt.Fprintf(s.out, "%s=%s\n", name, value); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

// Receive blocks for the next non-blank line and splits it.
// Returns io.EOF when the stream ends.
func (s *Stream) Receive() (string, string, error) {
	for s.in.Scan() {
		line := strings.TrimSpace(s.in.Text())
		if line == "" {
			continue
		}
		return splitMessage(line)
	}
	if err := s.in.Err(); err != nil {
		return "", "", err
	}
	return "", "", io.EOF
}

// Close closes any underlying connections.
func (s *Stream) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
