package transport

import (
	"context"
	"net"

	dserrors "deskshare/internal/errors"
	"deskshare/tunnel"
	"deskshare/util"
)

// SSHDialer routes connections through an SSH tunnel, for hosts that
// are only reachable from a bastion.  The tunnel is connected lazily on
// the first Dial and kept alive between calls, so a reconnecting viewer
// reuses one SSH session until the gateway drops it.
type SSHDialer struct {
	manager *tunnel.Manager
	user    string
	gateway string
	logger  *util.Logger
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH tunnel.  The tunnel is not connected until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	t := tunnel.NewSSHTunnel(cfg, logger)
	return &SSHDialer{
		manager: tunnel.NewManager(t, tunnel.DefaultKeepalive, logger),
		user:    cfg.User,
		gateway: t.Gateway(),
		logger:  logger,
	}
}

// Dial connects to address through the SSH tunnel, establishing or
// re-establishing the tunnel first if needed.
func (d *SSHDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	if !d.manager.Tunnel().IsAlive() {
		d.logger.Verbose("establishing SSH tunnel to %s@%s", d.user, d.gateway)
	}
	if err := d.manager.Ensure(ctx); err != nil {
		return nil, dserrors.Transport("dial", d.gateway, err)
	}
	conn, err := d.manager.Tunnel().Dial(ctx, "tcp", address)
	if err != nil {
		return nil, dserrors.Transport("dial", address, err)
	}
	return conn, nil
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	return d.manager.Stop()
}
