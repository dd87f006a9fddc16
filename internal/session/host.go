package session

import (
	"context"
	"net"
	"time"

	"deskshare/internal/auth"
	dserrors "deskshare/internal/errors"
	"deskshare/internal/input"
	"deskshare/internal/metrics"
	"deskshare/internal/pipeline"
	"deskshare/internal/wire"
	"deskshare/util"
)

// inputQueue bounds events decoded but not yet injected.
const inputQueue = 256

// HostOptions configures the host side of a session.
type HostOptions struct {
	Config

	Verifier *auth.Verifier
	Guard    *auth.Guard

	// Width and Height are advertised in HELLO.
	Width, Height int

	Grabber pipeline.Grabber
	Capture pipeline.CaptureConfig

	// Device injects the viewer's input.  Nil makes the session view
	// only: input events are counted and dropped.
	Device   input.Device
	Injector input.InjectorConfig
}

// Serve runs the host side of a session on conn: handshake, then the
// capture pipeline, the input injector and the heartbeat until the
// session ends.  conn is closed when Serve returns.
//
// A nil error means ctx was cancelled and the viewer was sent BYE.
func Serve(ctx context.Context, conn net.Conn, opts HostOptions, log *util.Logger, m *metrics.Collector) error {
	s := newSession(conn, wire.RoleHost, opts.Config, log, m)
	s.log.Verbose("connection from %s", s.RemoteAddr())

	if err := s.hostHandshake(&opts); err != nil {
		if dserrors.IsAuth(err) {
			s.log.Warn("%v", err)
		}
		return s.fail(err)
	}
	s.log.Info("viewer %s authenticated", s.RemoteAddr())

	capture := pipeline.NewCapture(opts.Capture, opts.Grabber, s.w, s.log.Named("capture"), m)
	units := []unit{capture.Run}

	var events chan *wire.InputEvent
	if opts.Device != nil {
		events = make(chan *wire.InputEvent, inputQueue)
		inj := input.NewInjector(opts.Device, opts.Injector, s.log.Named("input"), m)
		units = append(units, func(ctx context.Context) error { return inj.Run(ctx, events) })
	} else {
		s.log.Verbose("no input device, session is view only")
	}

	return s.run(ctx, s.hostDemux(capture, events), units...)
}

// hostDemux routes what a viewer may send.
func (s *Session) hostDemux(c *pipeline.Capture, events chan<- *wire.InputEvent) func(context.Context, wire.Message) error {
	return func(_ context.Context, m wire.Message) error {
		switch m := m.(type) {
		case *wire.InputEvent:
			if events == nil {
				s.metrics.InputDropped()
				return nil
			}
			select {
			case events <- m:
			default:
				s.metrics.InputDropped()
				s.log.Debug("input queue full, dropped event %d", m.Seq)
			}
			return nil
		case *wire.ResyncRequest:
			s.log.Debug("viewer asked for a full frame after seq %d", m.LastSeq)
			c.RequestResync()
			return nil
		case *wire.Ping, *wire.Pong, *wire.Bye, *wire.Auth:
			return s.control(m)
		case *wire.Hello, *wire.AuthAck, *wire.FullFrame, *wire.RegionDelta, *wire.Resize:
			return s.control(m)
		default:
			return dserrors.Protocol(byte(m.Tag()), "unhandled message %s", m.Tag())
		}
	}
}

// Refuse turns away a connection the host cannot serve.  The viewer's
// HELLO is read first so the close is orderly and the BYE is not lost
// to a connection reset.
func Refuse(conn net.Conn, codec *wire.Codec, reason string, timeout time.Duration) error {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout)) //nolint:errcheck

	r := wire.NewReader(conn, codec)
	if _, err := r.ReadMessage(); err != nil {
		return dserrors.Transport("read", conn.RemoteAddr().String(), err)
	}
	w := NewWriter(conn, codec, timeout)
	return w.WriteDirect(&wire.Bye{Reason: reason})
}
