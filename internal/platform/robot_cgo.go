//go:build cgo

package platform

import (
	"fmt"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"

	"deskshare/internal/input"
	"deskshare/internal/wire"
)

// robotKeys renames injector key names robotgo spells differently.
var robotKeys = map[string]string{
	"win":        "cmd",
	"numlock":    "num_lock",
	"scrolllock": "scroll_lock",
}

// Robot injects input with robotgo.  Pointer positions are relative to
// the captured display.
type Robot struct {
	display int
}

// OpenInput returns the host's input device for display.
func OpenInput(display int) (input.Device, error) {
	return &Robot{display: display}, nil
}

// ScreenSize is the size of the captured display, which is what the
// viewer's normalised coordinates refer to.
func (r *Robot) ScreenSize() (int, int) {
	b := screenshot.GetDisplayBounds(r.display)
	return b.Dx(), b.Dy()
}

func (r *Robot) SetPointer(x, y int) error {
	b := screenshot.GetDisplayBounds(r.display)
	robotgo.Move(b.Min.X+x, b.Min.Y+y)
	return nil
}

func (r *Robot) ClickButton(button uint8, pressed bool) error {
	var name string
	switch button {
	case wire.ButtonLeft:
		name = "left"
	case wire.ButtonMiddle:
		name = "center"
	case wire.ButtonRight:
		name = "right"
	default:
		return fmt.Errorf("unknown pointer button %d", button)
	}
	return robotgo.Toggle(name, direction(pressed))
}

func (r *Robot) SendKey(name string, pressed bool) error {
	if alias, ok := robotKeys[name]; ok {
		name = alias
	}
	return robotgo.KeyToggle(name, direction(pressed))
}

func (r *Robot) Scroll(delta int) error {
	robotgo.Scroll(0, delta)
	return nil
}

func direction(pressed bool) string {
	if pressed {
		return "down"
	}
	return "up"
}
