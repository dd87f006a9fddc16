package tunnel

import (
	"context"
	"sync"
	"time"

	"deskshare/util"
)

// DefaultKeepalive is how often Manager probes the gateway.
const DefaultKeepalive = 10 * time.Second

// Manager keeps one Tunnel usable across viewer reconnects.  It
// probes the gateway with keepalive requests, so a silently dead SSH
// connection is noticed before the next dial, and reconnects on demand.
type Manager struct {
	tunnel   Tunnel
	logger   *util.Logger
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc // stops the current keepalive loop
}

// NewManager returns a Manager for the given tunnel.  A non-positive
// interval uses DefaultKeepalive.
func NewManager(t Tunnel, interval time.Duration, logger *util.Logger) *Manager {
	if interval <= 0 {
		interval = DefaultKeepalive
	}
	return &Manager{tunnel: t, logger: logger, interval: interval}
}

// Tunnel is the managed tunnel.
func (m *Manager) Tunnel() Tunnel { return m.tunnel }

// Ensure connects the tunnel unless it is already alive, and starts the
// keepalive loop for the new connection.
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tunnel.IsAlive() {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
		m.logger.Verbose("SSH tunnel lost, reconnecting")
	}
	if err := m.tunnel.Connect(ctx); err != nil {
		return err
	}

	// The loop outlives the dial context that created the tunnel.
	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.keepalive(loopCtx)
	return nil
}

// Stop ends keepalives and shuts down the tunnel.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	return m.tunnel.Close()
}

func (m *Manager) keepalive(ctx context.Context) {
	tick := time.NewTicker(m.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if !m.tunnel.IsAlive() {
				return
			}
			if err := m.tunnel.Ping(m.interval); err != nil {
				m.logger.Warn("SSH keepalive failed: %v", err)
				m.tunnel.Close() //nolint:errcheck
				return
			}
		}
	}
}
