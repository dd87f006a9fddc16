//go:build !cgo

package platform

import (
	"fmt"

	dserrors "deskshare/internal/errors"
	"deskshare/internal/input"
)

// OpenInput fails: input injection needs robotgo, which needs cgo.
// Hosts built this way serve view-only sessions.
func OpenInput(int) (input.Device, error) {
	return nil, dserrors.Device("input", "open",
		fmt.Errorf("%w: built without cgo", dserrors.ErrDeviceUnavailable))
}
