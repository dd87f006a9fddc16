// Package transport provides connection establishment for sessions.
// Transports handle how the byte stream is carried (direct TCP or an
// SSH tunnel) independent of the session protocol spoken over it.
//
// Every connection handed to a session has Nagle's algorithm disabled
// where the transport allows it: input events are a few bytes each and
// must not wait behind the frame stream for coalescing.
package transport

import (
	"context"
	"net"
)

// Dialer opens the viewer's connection to a host.  Implementations
// include a plain TCP dialer and an SSH-tunnelled dialer that routes
// traffic through a bastion.
type Dialer interface {
	// Dial establishes a stream connection to address (host:port).
	Dial(ctx context.Context, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
