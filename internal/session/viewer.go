package session

import (
	"context"
	"net"
	"time"

	dserrors "deskshare/internal/errors"
	"deskshare/internal/input"
	"deskshare/internal/metrics"
	"deskshare/internal/pipeline"
	"deskshare/internal/wire"
	"deskshare/util"
)

// ViewerOptions configures the viewer side of a session.
type ViewerOptions struct {
	Config

	Secret []byte

	// Width and Height of the local display, advertised in HELLO.
	Width, Height int

	Sink  pipeline.Sink
	Inbox int

	// Source produces local input.  Nil makes the session view only.
	Source       input.Source
	InputQueue   int
	MoveThrottle time.Duration
}

// Join runs the viewer side of a session on conn: handshake, then the
// render pipeline, the input relay and the heartbeat until the session
// ends.  conn is closed when Join returns.
//
// A nil error means ctx was cancelled and the host was sent BYE.  A BYE
// from the host is returned as errors.ErrPeerClosed.
func Join(ctx context.Context, conn net.Conn, opts ViewerOptions, log *util.Logger, m *metrics.Collector) error {
	s := newSession(conn, wire.RoleViewer, opts.Config, log, m)

	if err := s.viewerHandshake(&opts); err != nil {
		return s.fail(err)
	}

	render := pipeline.NewRender(opts.Sink, s.w, opts.Inbox, s.log.Named("render"), m)
	units := []unit{render.Run}
	if opts.Source != nil {
		queue := opts.InputQueue
		if queue < 1 {
			queue = inputQueue
		}
		relay := input.NewRelay(input.NewQueue(queue), s.w, opts.MoveThrottle, s.log.Named("input"), m)
		units = append(units, func(ctx context.Context) error { return relay.Run(ctx, opts.Source) })
	}

	return s.run(ctx, s.viewerDemux(render), units...)
}

// viewerDemux routes what a host may send.
func (s *Session) viewerDemux(r *pipeline.Render) func(context.Context, wire.Message) error {
	return func(_ context.Context, m wire.Message) error {
		switch m := m.(type) {
		case *wire.FullFrame, *wire.RegionDelta, *wire.Resize:
			r.Offer(m)
			return nil
		case *wire.Ping, *wire.Pong, *wire.Bye, *wire.Auth:
			return s.control(m)
		case *wire.Hello, *wire.AuthAck, *wire.InputEvent, *wire.ResyncRequest:
			return s.control(m)
		default:
			return dserrors.Protocol(byte(m.Tag()), "unhandled message %s", m.Tag())
		}
	}
}
