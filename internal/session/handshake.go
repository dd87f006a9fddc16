package session

import (
	"fmt"
	"slices"
	"time"

	"deskshare/internal/compress"
	dserrors "deskshare/internal/errors"
	"deskshare/internal/wire"
	"deskshare/util"
)

// readHandshake reads one message under the handshake deadline.
func (s *Session) readHandshake() (wire.Message, error) {
	m, err := s.r.ReadMessage()
	if err != nil {
		if dserrors.IsProtocol(err) {
			return nil, err
		}
		return nil, dserrors.Transport("read", s.RemoteAddr(), err)
	}
	s.touch()
	return m, nil
}

// checkHello validates the peer's HELLO.  A version mismatch is
// answered with a BYE so the peer can report something useful.
func (s *Session) checkHello(h *wire.Hello, want wire.Role) error {
	if h.Version != wire.ProtocolVersion {
		s.w.WriteDirect(&wire.Bye{Reason: ReasonBadVersion}) //nolint:errcheck
		return dserrors.Protocol(byte(wire.TagHello), "peer speaks protocol version %d, want %d", h.Version, wire.ProtocolVersion)
	}
	if h.Role != want {
		return dserrors.Protocol(byte(wire.TagHello), "peer role %q, want %q", h.Role, want)
	}
	if h.Width < 0 || h.Height < 0 {
		return dserrors.Protocol(byte(wire.TagHello), "negative screen size %dx%d", h.Width, h.Height)
	}
	return nil
}

// negotiate picks the compression the host uses for pixel payloads:
// its preference if the viewer can decode it, otherwise none.
func negotiate(preferred compress.Tag, peer []string) compress.Tag {
	if slices.Contains(peer, preferred.String()) {
		return preferred
	}
	return compress.None
}

// hostHandshake takes the connection from Connecting to Authenticated
// or Rejected.  Exactly one AUTH is read.
func (s *Session) hostHandshake(opts *HostOptions) error {
	addr := s.RemoteAddr()
	s.conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout)) //nolint:errcheck
	defer s.conn.SetDeadline(time.Time{})

	m, err := s.readHandshake()
	if err != nil {
		return err
	}
	hello, ok := m.(*wire.Hello)
	if !ok {
		return dserrors.Protocol(byte(m.Tag()), "expected HELLO, got %s", m.Tag())
	}
	if err := s.checkHello(hello, wire.RoleViewer); err != nil {
		return err
	}
	s.peer = hello

	codec := *s.cfg.Codec
	codec.Compression = negotiate(codec.Compression, hello.Compression)
	if err := s.w.WriteDirect(&wire.Hello{
		Version:     wire.ProtocolVersion,
		Role:        wire.RoleHost,
		Width:       opts.Width,
		Height:      opts.Height,
		Compression: compress.Names(),
		Name:        s.cfg.Name,
	}); err != nil {
		return err
	}
	s.w.codec = &codec
	s.log.Verbose("viewer %q (%dx%d), sending %s", hello.Name, hello.Width, hello.Height, codec.Compression)

	if err := s.state.to(StateAwaitingAuth); err != nil {
		return err
	}

	m, err = s.readHandshake()
	if err != nil {
		return err
	}
	a, ok := m.(*wire.Auth)
	if !ok {
		if bye, isBye := m.(*wire.Bye); isBye {
			return fmt.Errorf("%w: %s", dserrors.ErrPeerClosed, bye.Reason)
		}
		return dserrors.Protocol(byte(m.Tag()), "expected AUTH, got %s", m.Tag())
	}

	// A locked-out address has its secret discarded unchecked.
	ip := util.RemoteIP(s.conn.RemoteAddr())
	if !opts.Guard.Allowed(ip) {
		wait := opts.Guard.RetryAfter(ip).Round(time.Second)
		reason := fmt.Sprintf("retry in %v", wait)
		s.w.WriteDirect(&wire.AuthAck{Status: wire.AuthLockedOut, Reason: reason}) //nolint:errcheck
		s.metrics.AuthFailed()
		s.state.to(StateRejected) //nolint:errcheck
		return &dserrors.AuthError{Addr: addr, Reason: reason, Err: dserrors.ErrLockedOut}
	}

	if !opts.Verifier.Verify(a.Secret) {
		opts.Guard.Fail(ip)
		s.metrics.AuthFailed()
		s.w.WriteDirect(&wire.AuthAck{Status: wire.AuthRejected, Reason: "wrong password"}) //nolint:errcheck
		if err := s.state.to(StateRejected); err != nil {
			return err
		}
		return dserrors.Auth(addr, "wrong password")
	}

	opts.Guard.Succeed(ip)
	if err := s.w.WriteDirect(&wire.AuthAck{Status: wire.AuthAccepted}); err != nil {
		return err
	}
	return s.state.to(StateAuthenticated)
}

// viewerHandshake is the client half of hostHandshake.
func (s *Session) viewerHandshake(opts *ViewerOptions) error {
	addr := s.RemoteAddr()
	s.conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout)) //nolint:errcheck
	defer s.conn.SetDeadline(time.Time{})

	if err := s.w.WriteDirect(&wire.Hello{
		Version:     wire.ProtocolVersion,
		Role:        wire.RoleViewer,
		Width:       opts.Width,
		Height:      opts.Height,
		Compression: compress.Names(),
		Name:        s.cfg.Name,
	}); err != nil {
		return err
	}

	m, err := s.readHandshake()
	if err != nil {
		return err
	}
	switch m := m.(type) {
	case *wire.Hello:
		if err := s.checkHello(m, wire.RoleHost); err != nil {
			return err
		}
		s.peer = m
	case *wire.Bye:
		if m.Reason == ReasonHostBusy {
			return dserrors.ErrHostBusy
		}
		return fmt.Errorf("%w: %s", dserrors.ErrPeerClosed, m.Reason)
	default:
		return dserrors.Protocol(byte(m.Tag()), "expected HELLO, got %s", m.Tag())
	}

	if err := s.state.to(StateAwaitingAuth); err != nil {
		return err
	}
	if err := s.w.WriteDirect(&wire.Auth{Secret: opts.Secret}); err != nil {
		return err
	}

	m, err = s.readHandshake()
	if err != nil {
		return err
	}
	ack, ok := m.(*wire.AuthAck)
	if !ok {
		return dserrors.Protocol(byte(m.Tag()), "expected AUTH_ACK, got %s", m.Tag())
	}
	switch ack.Status {
	case wire.AuthAccepted:
		s.log.Info("connected to %q, screen %dx%d", s.peer.Name, s.peer.Width, s.peer.Height)
		return s.state.to(StateAuthenticated)
	case wire.AuthLockedOut:
		s.state.to(StateRejected) //nolint:errcheck
		return &dserrors.AuthError{Addr: addr, Reason: ack.Reason, Err: dserrors.ErrLockedOut}
	default:
		s.state.to(StateRejected) //nolint:errcheck
		return dserrors.Auth(addr, ack.Reason)
	}
}
