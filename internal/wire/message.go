// Package wire implements the session's framed message protocol.
//
// Every message on the byte stream is
//
//	[uint32 big-endian length][tag byte][payload]
//
// where length counts the tag byte plus the payload.  The Decoder is
// resumable: it accumulates partial reads and yields exactly one
// Message per logical send, consuming exactly that message's bytes.
package wire

import (
	"fmt"

	"deskshare/internal/frame"
)

// ProtocolVersion is advertised in HELLO.  Peers with a different
// major version are rejected during the handshake.
const ProtocolVersion = 1

// Tag identifies a message type on the wire.  The values are protocol
// constants.
type Tag uint8

const (
	TagHello         Tag = 0x01
	TagAuth          Tag = 0x02
	TagAuthAck       Tag = 0x03
	TagFullFrame     Tag = 0x10
	TagRegionDelta   Tag = 0x11
	TagResyncRequest Tag = 0x12
	TagResize        Tag = 0x13
	TagInputEvent    Tag = 0x20
	TagPing          Tag = 0x30
	TagPong          Tag = 0x31
	TagBye           Tag = 0xFF
)

func (t Tag) String() string {
	switch t {
	case TagHello:
		return "HELLO"
	case TagAuth:
		return "AUTH"
	case TagAuthAck:
		return "AUTH_ACK"
	case TagFullFrame:
		return "FULL_FRAME"
	case TagRegionDelta:
		return "REGION_DELTA"
	case TagResyncRequest:
		return "RESYNC_REQUEST"
	case TagResize:
		return "RESIZE"
	case TagInputEvent:
		return "INPUT_EVENT"
	case TagPing:
		return "PING"
	case TagPong:
		return "PONG"
	case TagBye:
		return "BYE"
	default:
		return fmt.Sprintf("TAG(0x%02x)", uint8(t))
	}
}

// Message is the closed set of protocol messages.  The unexported
// method keeps implementations inside this package, so a type switch
// over the types below is exhaustive.
type Message interface {
	Tag() Tag
	message()
}

// Role is the side a peer plays in a session.
type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// Hello opens a connection in both directions.  It is CBOR-encoded so
// fields can be added without a version bump.
type Hello struct {
	Version     int      `cbor:"version"`
	Role        Role     `cbor:"role"`
	Width       int      `cbor:"width"`
	Height      int      `cbor:"height"`
	Compression []string `cbor:"compression"`
	Name        string   `cbor:"name,omitempty"`
}

// Auth carries the shared secret.  It is sent at most once per
// connection.
type Auth struct {
	Secret []byte
}

// String keeps the secret out of logs.
func (a *Auth) String() string { return fmt.Sprintf("AUTH{%d bytes}", len(a.Secret)) }

// AuthStatus is the outcome reported in AUTH_ACK.
type AuthStatus uint8

const (
	AuthAccepted AuthStatus = iota
	AuthRejected
	AuthLockedOut
)

func (s AuthStatus) String() string {
	switch s {
	case AuthAccepted:
		return "accepted"
	case AuthRejected:
		return "rejected"
	case AuthLockedOut:
		return "locked out"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// AuthAck answers Auth.
type AuthAck struct {
	Status AuthStatus
	Reason string
}

// FullFrame replaces the receiver's bitmap wholesale.
type FullFrame struct {
	Seq    uint64
	Bitmap *frame.Bitmap
}

// RegionDelta overwrites rectangles of the receiver's bitmap.
type RegionDelta struct {
	Seq     uint64
	Regions []frame.Region
}

// ResyncRequest asks the host for a FullFrame on its next tick.
// LastSeq is the last sequence number the viewer accepted.
type ResyncRequest struct {
	LastSeq uint64
}

// Resize announces new screen dimensions.  A FullFrame of that size
// always follows.
type Resize struct {
	Width  int
	Height int
}

// InputKind selects which InputEvent fields are meaningful.
type InputKind uint8

const (
	InputPointerMove InputKind = iota + 1
	InputPointerButton
	InputKey
	InputScroll
)

func (k InputKind) String() string {
	switch k {
	case InputPointerMove:
		return "pointer-move"
	case InputPointerButton:
		return "pointer-button"
	case InputKey:
		return "key"
	case InputScroll:
		return "scroll"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Pointer buttons.
const (
	ButtonLeft   uint8 = 1
	ButtonMiddle uint8 = 2
	ButtonRight  uint8 = 3
)

// InputEvent is one local input action.  X and Y are normalised to
// [0,1] against the sender's screen; Code is a Windows virtual-key
// code.
type InputEvent struct {
	Seq       uint64
	Timestamp int64 // unix nanoseconds at the source
	Kind      InputKind

	X, Y    float64 // InputPointerMove
	Button  uint8   // InputPointerButton
	Code    uint32  // InputKey
	Pressed bool    // InputPointerButton, InputKey
	Delta   int32   // InputScroll; positive scrolls up
}

// Ping is a liveness probe; the peer answers with a Pong carrying the
// same nonce and timestamp.
type Ping struct {
	Nonce uint64
	Sent  int64
}

// Pong answers Ping.
type Pong struct {
	Nonce uint64
	Sent  int64
}

// Bye announces an orderly close.
type Bye struct {
	Reason string
}

func (*Hello) Tag() Tag         { return TagHello }
func (*Auth) Tag() Tag          { return TagAuth }
func (*AuthAck) Tag() Tag       { return TagAuthAck }
func (*FullFrame) Tag() Tag     { return TagFullFrame }
func (*RegionDelta) Tag() Tag   { return TagRegionDelta }
func (*ResyncRequest) Tag() Tag { return TagResyncRequest }
func (*Resize) Tag() Tag        { return TagResize }
func (*InputEvent) Tag() Tag    { return TagInputEvent }
func (*Ping) Tag() Tag          { return TagPing }
func (*Pong) Tag() Tag          { return TagPong }
func (*Bye) Tag() Tag           { return TagBye }

func (*Hello) message()         {}
func (*Auth) message()          {}
func (*AuthAck) message()       {}
func (*FullFrame) message()     {}
func (*RegionDelta) message()   {}
func (*ResyncRequest) message() {}
func (*Resize) message()        {}
func (*InputEvent) message()    {}
func (*Ping) message()          {}
func (*Pong) message()          {}
func (*Bye) message()           {}

// IsFrameUpdate reports whether m belongs to the frame stream rather
// than the urgent control/input stream.
func IsFrameUpdate(m Message) bool {
	switch m.(type) {
	case *FullFrame, *RegionDelta:
		return true
	}
	return false
}
