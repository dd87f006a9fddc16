// Package session implements the session manager: the handshake that
// takes a connection from Connecting to Authenticated, the writer that
// arbitrates the single transport, the reader that demultiplexes
// incoming messages by tag, the heartbeat, and teardown.
//
// Serve runs the host side of one connection and Join the viewer side.
// Both run every unit of the session (writer, reader, heartbeat and the
// role's pipelines) in one errgroup, so the first fatal error tears
// down all of them.
package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"deskshare/config"
	"deskshare/internal/compress"
	dserrors "deskshare/internal/errors"
	"deskshare/internal/metrics"
	"deskshare/internal/wire"
	"deskshare/util"
)

// BYE reasons with a meaning to the peer.
const (
	ReasonClosing    = "closing"
	ReasonHostBusy   = "host busy"
	ReasonBadVersion = "unsupported protocol version"
)

// Config holds the settings shared by both roles.
type Config struct {
	Codec *wire.Codec
	// Name is advertised in HELLO.
	Name string

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	DrainTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.Codec == nil {
		c.Codec = wire.NewCodec(compress.None, 0)
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = config.DefaultHeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = config.DefaultHeartbeatTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = config.DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = config.DefaultWriteTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = config.DefaultDrainTimeout
	}
	return c
}

// unit is one concurrent part of a running session.
type unit func(ctx context.Context) error

// Session is one authenticated (or authenticating) connection.
type Session struct {
	ID string

	role    wire.Role
	conn    *countingConn
	cfg     Config
	log     *util.Logger
	metrics *metrics.Collector

	state stateMachine
	w     *Writer
	r     *wire.Reader

	peer      *wire.Hello
	lastSeen  atomic.Int64 // unix nanoseconds of the last message read
	opened    time.Time
	closeOnce sync.Once
}

func newSession(conn net.Conn, role wire.Role, cfg Config, log *util.Logger, m *metrics.Collector) *Session {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	cc := &countingConn{Conn: conn, metrics: m}
	s := &Session{
		ID:      id,
		role:    role,
		conn:    cc,
		cfg:     cfg,
		log:     log.Named(string(role) + " " + id[:8]),
		metrics: m,
		w:       NewWriter(cc, cfg.Codec, cfg.WriteTimeout),
		r:       wire.NewReader(cc, cfg.Codec),
	}
	s.state.onChange = func(from, to State) {
		s.log.Verbose("%s -> %s", from, to)
	}
	s.touch()
	return s
}

// State is the session's current lifecycle state.
func (s *Session) State() State { return s.state.get() }

// Peer is the HELLO received from the other side, nil before it
// arrives.
func (s *Session) Peer() *wire.Hello { return s.peer }

// RemoteAddr is the peer's transport address.
func (s *Session) RemoteAddr() string { return s.conn.RemoteAddr().String() }

func (s *Session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *Session) seen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// abort closes the transport without ceremony.  Safe to call more than
// once.
func (s *Session) abort() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !util.IsHarmless(err) {
			s.log.Debug("close: %v", err)
		}
	})
}

// fail ends a session that never reached Authenticated.
func (s *Session) fail(err error) error {
	if !s.state.get().Terminal() {
		s.state.to(StateClosed) //nolint:errcheck
	}
	s.abort()
	return err
}

// run drives an authenticated session until one unit fails, the peer
// says BYE or ctx is cancelled.
func (s *Session) run(ctx context.Context, demux func(context.Context, wire.Message) error, units ...unit) error {
	s.opened = time.Now()
	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()

	all := []unit{
		s.w.Run,
		func(ctx context.Context) error { return s.readLoop(ctx, demux) },
		s.heartbeat,
	}
	all = append(all, units...)

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range all {
		g.Go(func() error {
			err := u(gctx)
			if err != nil {
				// Forced shutdown: nothing is drained.
				s.abort()
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		// Wake the reader; the writer finishes the message it is on.
		s.conn.SetReadDeadline(time.Now()) //nolint:errcheck
		return nil
	})

	return s.finish(g.Wait())
}

// finish performs the Closing -> Closed half of the lifecycle.
func (s *Session) finish(err error) error {
	s.state.to(StateClosing) //nolint:errcheck

	switch {
	case err == nil:
		deadline := time.Now().Add(s.cfg.DrainTimeout)
		if derr := s.w.Drain(deadline, &wire.Bye{Reason: ReasonClosing}); derr != nil {
			s.log.Debug("drain: %v", derr)
		}
	case dserrors.Is(err, dserrors.ErrPeerClosed):
		s.log.Info("%v", err)
	case dserrors.Is(err, dserrors.ErrHeartbeatTimeout):
		s.log.Warn("%v", err)
	case dserrors.IsTransport(err) && util.IsHarmless(dserrors.Unwrap(err)):
		s.log.Warn("connection lost: %v", err)
	default:
		s.log.Error("%v", err)
	}

	s.abort()
	s.state.to(StateClosed) //nolint:errcheck
	s.log.Info("closed after %s: sent %s, received %s",
		time.Since(s.opened).Round(time.Second),
		humanize.Bytes(uint64(s.conn.out.Load())),
		humanize.Bytes(uint64(s.conn.in.Load())))
	return err
}

// readLoop decodes incoming messages and hands each to demux.
func (s *Session) readLoop(ctx context.Context, demux func(context.Context, wire.Message) error) error {
	for {
		m, err := s.r.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if dserrors.IsProtocol(err) {
				return err
			}
			return dserrors.Transport("read", s.RemoteAddr(), err)
		}
		s.touch()
		if err := demux(ctx, m); err != nil {
			return err
		}
	}
}

// control handles the messages both roles treat alike.
func (s *Session) control(m wire.Message) error {
	switch m := m.(type) {
	case *wire.Ping:
		if !s.w.TrySend(&wire.Pong{Nonce: m.Nonce, Sent: m.Sent}) {
			s.log.Debug("urgent queue full, pong %d skipped", m.Nonce)
		}
	case *wire.Pong:
		if m.Sent > 0 {
			rtt := time.Since(time.Unix(0, m.Sent))
			s.metrics.RecordRTT(rtt)
			s.log.Debug("rtt %v", rtt)
		}
	case *wire.Bye:
		return fmt.Errorf("%w: %s", dserrors.ErrPeerClosed, m.Reason)
	case *wire.Auth:
		return dserrors.Protocol(byte(m.Tag()), "only one AUTH per connection")
	default:
		return dserrors.Protocol(byte(m.Tag()), "unexpected %s from %s", m.Tag(), s.peerRole())
	}
	return nil
}

func (s *Session) peerRole() wire.Role {
	if s.role == wire.RoleHost {
		return wire.RoleViewer
	}
	return wire.RoleHost
}

// countingConn tallies bytes in each direction for the session summary
// and the process-wide counters.
type countingConn struct {
	net.Conn
	metrics *metrics.Collector
	in, out atomic.Int64
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.in.Add(int64(n))
		c.metrics.BytesReceived(int64(n))
	}
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if n > 0 {
		c.out.Add(int64(n))
		c.metrics.BytesSent(int64(n))
	}
	return n, err
}
