// Package platform binds the session pipelines to the local machine:
// the screen grabber and input device on the host, and display sinks
// on the viewer.
package platform

import (
	"fmt"

	"github.com/kbinani/screenshot"

	dserrors "deskshare/internal/errors"
	"deskshare/internal/frame"
)

// Screen grabs one display.
type Screen struct {
	display int
}

// OpenScreen checks that display exists.  A machine without any active
// display fails permanently.
func OpenScreen(display int) (*Screen, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, dserrors.Device("screen", "open", fmt.Errorf("%w: no active display", dserrors.ErrDeviceUnavailable))
	}
	if display < 0 || display >= n {
		return nil, dserrors.Device("screen", "open",
			fmt.Errorf("%w: display %d out of range, %d active", dserrors.ErrDeviceUnavailable, display, n))
	}
	return &Screen{display: display}, nil
}

// Size is the display's current resolution.
func (s *Screen) Size() (int, int) {
	b := screenshot.GetDisplayBounds(s.display)
	return b.Dx(), b.Dy()
}

// Grab captures the whole display into a new bitmap.
func (s *Screen) Grab() (*frame.Bitmap, error) {
	bounds := screenshot.GetDisplayBounds(s.display)
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: display %d has no bounds", dserrors.ErrDeviceUnavailable, s.display)
	}
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", s.display, err)
	}
	return frame.FromRGBA(img), nil
}
