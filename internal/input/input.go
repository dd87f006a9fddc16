// Package input carries local input from the viewer to the host.
//
// On the viewer a platform Source feeds a bounded Queue, and the Relay
// drains it, stamping each event with a sequence number and
// normalising pointer coordinates to the viewer's screen.  On the host
// the Injector replays events strictly in sequence order against a
// Device, rescaling coordinates to the host's screen at injection
// time.
package input

import (
	"context"
	"time"

	"deskshare/internal/wire"
)

// Device is the host's input-injection primitive.  Coordinates are
// absolute pixels on the host screen; keys are named as in KeyName.
type Device interface {
	ScreenSize() (width, height int)
	SetPointer(x, y int) error
	ClickButton(button uint8, pressed bool) error
	SendKey(name string, pressed bool) error
	Scroll(delta int) error
}

// RawEvent is a local input event in device coordinates, as reported
// by a Source.
type RawEvent struct {
	Kind wire.InputKind
	Time time.Time

	// Pointer position in pixels.
	X, Y int

	// Size of the screen X and Y were measured on.
	ScreenWidth, ScreenHeight int

	Button  uint8
	Code    uint32 // Windows virtual-key code
	Pressed bool
	Delta   int32
}

// Source is the viewer's input-capture primitive.  Run delivers events
// through emit until ctx is cancelled or the source is exhausted, in
// which case it returns nil.  emit never blocks.
type Source interface {
	Run(ctx context.Context, emit func(RawEvent)) error
}

// Sender transmits a message on the session's urgent path.
type Sender interface {
	Send(ctx context.Context, m wire.Message) error
}
