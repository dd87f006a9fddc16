package input

import "fmt"

// Windows virtual-key codes used on the wire.
const (
	VKBack     = 0x08
	VKTab      = 0x09
	VKReturn   = 0x0D
	VKShift    = 0x10
	VKControl  = 0x11
	VKMenu     = 0x12 // alt
	VKCapital  = 0x14
	VKEscape   = 0x1B
	VKSpace    = 0x20
	VKDelete   = 0x2E
	VKLWin     = 0x5B
	VKF1       = 0x70
	VKF4       = 0x73
	VKNumpad0  = 0x60
	VKLShift   = 0xA0
	VKRShift   = 0xA1
	VKLControl = 0xA2
	VKRControl = 0xA3
	VKLMenu    = 0xA4
	VKRMenu    = 0xA5
)

var keyNames = buildKeyNames()

func buildKeyNames() map[uint32]string {
	m := map[uint32]string{
		VKBack:    "backspace",
		VKTab:     "tab",
		VKReturn:  "enter",
		VKShift:   "shift",
		VKControl: "ctrl",
		VKMenu:    "alt",
		VKCapital: "capslock",
		VKEscape:  "esc",
		VKSpace:   "space",
		0x21:      "pageup",
		0x22:      "pagedown",
		0x23:      "end",
		0x24:      "home",
		0x25:      "left",
		0x26:      "up",
		0x27:      "right",
		0x28:      "down",
		0x2C:      "printscreen",
		0x2D:      "insert",
		VKDelete:  "delete",
		VKLWin:    "win",
		0x5C:      "win",
		0x5D:      "menu",
		0x90:      "numlock",
		0x91:      "scrolllock",
		0xBA:      ";",
		0xBB:      "=",
		0xBC:      ",",
		0xBD:      "-",
		0xBE:      ".",
		0xBF:      "/",
		0xC0:      "`",
		0xDB:      "[",
		0xDC:      `\`,
		0xDD:      "]",
		0xDE:      "'",
		// Left/right modifier variants collapse to the generic name.
		VKLShift:   "shift",
		VKRShift:   "shift",
		VKLControl: "ctrl",
		VKRControl: "ctrl",
		VKLMenu:    "alt",
		VKRMenu:    "alt",
	}
	for i := uint32(0); i < 12; i++ {
		m[VKF1+i] = fmt.Sprintf("f%d", i+1)
	}
	for i := uint32(0); i < 10; i++ {
		m['0'+i] = string(rune('0' + i))
		m[VKNumpad0+i] = fmt.Sprintf("num%d", i)
	}
	for i := uint32(0); i < 26; i++ {
		m['A'+i] = string(rune('a' + i))
	}
	return m
}

// KeyName maps a virtual-key code to the injector's key name.
func KeyName(code uint32) (string, bool) {
	name, ok := keyNames[code]
	return name, ok
}

// KeyCode is the inverse of KeyName for the canonical code of name.
// Used by script sources that spell keys by name.
func KeyCode(name string) (uint32, bool) {
	code, ok := keyCodes[name]
	return code, ok
}

var keyCodes = func() map[string]uint32 {
	m := make(map[string]uint32, len(keyNames))
	for code, name := range keyNames {
		// Prefer the lowest code, which is the generic variant.
		if prev, ok := m[name]; !ok || code < prev {
			m[name] = code
		}
	}
	return m
}()
