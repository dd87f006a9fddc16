// Package tunnel carries viewer connections through an SSH gateway,
// for hosts that are only reachable from a bastion.
package tunnel

import (
	"context"
	"net"
	"time"
)

// Tunnel is a connection to a gateway that forwards TCP streams.
// [SSHTunnel] is the only implementation outside tests.
type Tunnel interface {
	Connect(ctx context.Context) error
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Ping fails when the gateway does not answer within timeout.
	Ping(timeout time.Duration) error

	IsAlive() bool
	Close() error
}

var _ Tunnel = (*SSHTunnel)(nil)
