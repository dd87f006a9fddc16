package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"deskshare/internal/wire"
)

// ScriptSource replays input from a line-oriented script, for headless
// viewers and tests.  Lines are
//
//	screen W H          coordinate space for following moves
//	move X Y
//	down|up|click [left|middle|right]
//	keydown|keyup|key NAME   (a key name such as "a" or "f4", or 0xNN)
//	scroll N
//	sleep DURATION
//
// Blank lines and lines starting with '#' are ignored.
type ScriptSource struct {
	r             io.Reader
	width, height int
	now           func() time.Time
}

// NewScriptSource reads a script from r.  width and height are the
// initial coordinate space, normally the host's screen size.
func NewScriptSource(r io.Reader, width, height int) *ScriptSource {
	return &ScriptSource{r: r, width: width, height: height, now: time.Now}
}

// Run implements Source.
func (s *ScriptSource) Run(ctx context.Context, emit func(RawEvent)) error {
	sc := bufio.NewScanner(s.r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if err := s.exec(ctx, fields, emit); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("script line %d: %w", line, err)
		}
	}
	return sc.Err()
}

func (s *ScriptSource) exec(ctx context.Context, f []string, emit func(RawEvent)) error {
	ev := RawEvent{Time: s.now(), ScreenWidth: s.width, ScreenHeight: s.height}
	switch f[0] {
	case "screen":
		w, h, err := pair(f)
		if err != nil {
			return err
		}
		if w <= 0 || h <= 0 {
			return fmt.Errorf("invalid screen size %dx%d", w, h)
		}
		s.width, s.height = w, h
		return nil

	case "move":
		x, y, err := pair(f)
		if err != nil {
			return err
		}
		ev.Kind, ev.X, ev.Y = wire.InputPointerMove, x, y
		emit(ev)

	case "down", "up", "click":
		b, err := button(f)
		if err != nil {
			return err
		}
		ev.Kind, ev.Button = wire.InputPointerButton, b
		ev.Pressed = f[0] != "up"
		emit(ev)
		if f[0] == "click" {
			ev.Pressed = false
			emit(ev)
		}

	case "keydown", "keyup", "key":
		if len(f) != 2 {
			return fmt.Errorf("%s takes one key", f[0])
		}
		code, err := parseKey(f[1])
		if err != nil {
			return err
		}
		ev.Kind, ev.Code = wire.InputKey, code
		ev.Pressed = f[0] != "keyup"
		emit(ev)
		if f[0] == "key" {
			ev.Pressed = false
			emit(ev)
		}

	case "scroll":
		if len(f) != 2 {
			return fmt.Errorf("scroll takes one delta")
		}
		d, err := strconv.ParseInt(f[1], 10, 32)
		if err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		ev.Kind, ev.Delta = wire.InputScroll, int32(d)
		emit(ev)

	case "sleep":
		if len(f) != 2 {
			return fmt.Errorf("sleep takes one duration")
		}
		d, err := time.ParseDuration(f[1])
		if err != nil {
			return err
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

	default:
		return fmt.Errorf("unknown command %q", f[0])
	}
	return nil
}

func pair(f []string) (int, int, error) {
	if len(f) != 3 {
		return 0, 0, fmt.Errorf("%s takes two integers", f[0])
	}
	a, err := strconv.Atoi(f[1])
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(f[2])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func button(f []string) (uint8, error) {
	if len(f) == 1 {
		return wire.ButtonLeft, nil
	}
	switch f[1] {
	case "left":
		return wire.ButtonLeft, nil
	case "middle":
		return wire.ButtonMiddle, nil
	case "right":
		return wire.ButtonRight, nil
	}
	return 0, fmt.Errorf("unknown button %q", f[1])
}

func parseKey(s string) (uint32, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("key code %q: %w", s, err)
		}
		return uint32(v), nil
	}
	if code, ok := KeyCode(strings.ToLower(s)); ok {
		return code, nil
	}
	return 0, fmt.Errorf("unknown key %q", s)
}
