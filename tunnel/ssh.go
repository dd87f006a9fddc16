package tunnel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	dserrors "deskshare/internal/errors"
	"deskshare/util"
)

// SSHConfig describes the gateway and the credentials offered to it.
type SSHConfig struct {
	User string
	Host string
	Port int

	KeyPath    string
	PromptPass bool
	UseAgent   bool

	StrictHostKey bool
	KnownHosts    string

	ConnTimeout time.Duration
}

// Addr is the gateway's host:port.
func (c *SSHConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SSHTunnel forwards streams through an SSH client connection using
// direct-tcpip channels.
type SSHTunnel struct {
	cfg    SSHConfig
	logger *util.Logger

	mu     sync.RWMutex
	client *ssh.Client // nil while disconnected
}

// NewSSHTunnel returns a disconnected tunnel.  Port defaults to 22 and
// ConnTimeout to 30s.
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	t := &SSHTunnel{cfg: *cfg, logger: logger.Named("ssh")}
	if t.cfg.Port == 0 {
		t.cfg.Port = 22
	}
	if t.cfg.ConnTimeout <= 0 {
		t.cfg.ConnTimeout = 30 * time.Second
	}
	return t
}

// Gateway is the address Connect dials.
func (t *SSHTunnel) Gateway() string { return t.cfg.Addr() }

func (t *SSHTunnel) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := authMethods(&t.cfg)
	if err != nil {
		return nil, err
	}
	hk, err := hostKeys(&t.cfg)
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            t.cfg.User,
		Auth:            auth,
		HostKeyCallback: hk,
		Timeout:         t.cfg.ConnTimeout,
	}, nil
}

// Connect opens the SSH connection, replacing any previous one.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	addr := t.cfg.Addr()
	sc, err := t.clientConfig()
	if err != nil {
		return dserrors.Transport("ssh setup", addr, err)
	}

	d := net.Dialer{Timeout: t.cfg.ConnTimeout}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return dserrors.Transport("dial", addr, err)
	}
	// The handshake has no context of its own.
	if deadline, ok := ctx.Deadline(); ok {
		raw.SetDeadline(deadline) //nolint:errcheck
	}
	c, chans, reqs, err := ssh.NewClientConn(raw, addr, sc)
	if err != nil {
		raw.Close()
		return dserrors.Transport("ssh handshake", addr, err)
	}
	raw.SetDeadline(time.Time{}) //nolint:errcheck
	client := ssh.NewClient(c, chans, reqs)
	t.logger.Debug("connected to %s as %s (%s)", addr, t.cfg.User, c.ServerVersion())

	t.mu.Lock()
	prev := t.client
	t.client = client
	t.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	go t.watch(client)
	return nil
}

func (t *SSHTunnel) current() *ssh.Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client
}

// Dial opens a stream to address on the gateway's side.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	client := t.current()
	if client == nil {
		return nil, dserrors.ErrNotConnected
	}
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", address, err)
	}
	return conn, nil
}

// Ping sends an OpenSSH keepalive request.  A refusal still proves the
// gateway is there; only silence past timeout is an error.
func (t *SSHTunnel) Ping(timeout time.Duration) error {
	client := t.current()
	if client == nil {
		return dserrors.ErrNotConnected
	}
	reply := make(chan error, 1)
	go func() {
		_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
		reply <- err
	}()
	select {
	case err := <-reply:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("keepalive: no reply within %v", timeout)
	}
}

// IsAlive reports whether the SSH connection is up.
func (t *SSHTunnel) IsAlive() bool { return t.current() != nil }

// Close drops the SSH connection.  It is safe to call twice.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

// watch clears the tunnel when client goes away, unless a newer
// connection has replaced it.
func (t *SSHTunnel) watch(client *ssh.Client) {
	err := client.Wait()
	t.mu.Lock()
	if t.client == client {
		t.client = nil
	}
	t.mu.Unlock()
	t.logger.Debug("connection closed: %v", err)
}
