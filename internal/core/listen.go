package core

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"deskshare/config"
	"deskshare/internal/compress"
	dserrors "deskshare/internal/errors"
	"deskshare/internal/metrics"
	"deskshare/internal/pipeline"
	"deskshare/internal/session"
	"deskshare/internal/transport"
	"deskshare/internal/wire"
	"deskshare/util"
)

// Screen is the display a host shares.
type Screen interface {
	pipeline.Grabber
	// Size is the current resolution, advertised to each new viewer.
	Size() (int, int)
}

// HostMode accepts viewers and serves at most one session at a time.
// A viewer that connects while another is being served is told the
// host is busy and disconnected.
type HostMode struct {
	Address string // ":port"
	// Listener overrides Address when set.  Run closes it.
	Listener net.Listener
	Screen   Screen
	// Session is the template for every session.  Grabber, Width and
	// Height are filled from Screen per connection.
	Session session.HostOptions
	Logger  *util.Logger
	Metrics *metrics.Collector

	active atomic.Bool
	wg     sync.WaitGroup
}

// Run listens until ctx is cancelled, then waits for the current
// session to say goodbye.
func (m *HostMode) Run(ctx context.Context) error {
	ln := m.Listener
	if ln == nil {
		var err error
		if ln, err = transport.Listen(ctx, m.Address); err != nil {
			return err
		}
	}
	defer m.wg.Wait()
	defer ln.Close()

	m.Logger.Info("listening on %s", ln.Addr())

	// Shut the listener down when the context expires.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return dserrors.Transport("accept", "", err)
		}

		m.wg.Add(1)
		if !m.active.CompareAndSwap(false, true) {
			go m.refuse(conn)
			continue
		}
		go m.serve(ctx, conn)
	}
}

// Busy reports whether a session is in progress.
func (m *HostMode) Busy() bool { return m.active.Load() }

func (m *HostMode) serve(ctx context.Context, conn net.Conn) {
	defer m.wg.Done()
	defer m.active.Store(false)

	opts := m.Session
	opts.Grabber = m.Screen
	opts.Width, opts.Height = m.Screen.Size()

	err := session.Serve(ctx, conn, opts, m.Logger, m.Metrics)
	switch {
	case err == nil, errors.Is(err, dserrors.ErrPeerClosed), dserrors.IsAuth(err):
	default:
		m.Metrics.RecordError(err.Error())
	}
}

func (m *HostMode) refuse(conn net.Conn) {
	defer m.wg.Done()

	addr := conn.RemoteAddr().String()
	m.Logger.Info("refusing %s: a session is already active", addr)

	codec := m.Session.Codec
	if codec == nil {
		codec = wire.NewCodec(compress.None, 0)
	}
	timeout := m.Session.HandshakeTimeout
	if timeout <= 0 {
		timeout = config.DefaultHandshakeTimeout
	}
	if err := session.Refuse(conn, codec, session.ReasonHostBusy, timeout); err != nil {
		m.Logger.Debug("refuse %s: %v", addr, err)
	}
}
