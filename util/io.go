package util

import (
	"errors"
	"io"
	"net"
	"os"
)

// DefaultBufSize is the initial capacity of pooled frame buffers.
const DefaultBufSize = 32 * 1024

// teardownErrors are what readers and writers see when their own side
// closes the connection or fires a deadline to unblock them.
var teardownErrors = []error{io.EOF, io.ErrClosedPipe, net.ErrClosed, os.ErrDeadlineExceeded}

// IsHarmless reports whether err is an expected result of tearing a
// session down rather than a failure worth logging.
func IsHarmless(err error) bool {
	if err == nil {
		return true
	}
	for _, target := range teardownErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// TuneConn turns off Nagle's algorithm on TCP connections so small
// input and heartbeat messages go out immediately.
func TuneConn(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true) //nolint:errcheck
	}
}
