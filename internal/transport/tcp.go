package transport

import (
	"context"
	"net"
	"time"

	dserrors "deskshare/internal/errors"
	"deskshare/util"
)

// TCPDialer establishes plain TCP connections.
type TCPDialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration // zero uses the net package default
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, dserrors.Transport("dial", address, err)
	}
	util.TuneConn(conn)
	return conn, nil
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }

// Listen opens the host's TCP listener.  Accepted connections are
// tuned for interactive traffic before they are returned.
func Listen(ctx context.Context, address string) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return nil, dserrors.Transport("listen", address, err)
	}
	return tunedListener{ln}, nil
}

type tunedListener struct{ net.Listener }

func (l tunedListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	util.TuneConn(conn)
	return conn, nil
}
