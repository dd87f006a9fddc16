package input

import (
	"context"
	"math"
	"time"

	dserrors "deskshare/internal/errors"
	"deskshare/internal/metrics"
	"deskshare/internal/wire"
	"deskshare/util"
)

// InjectorConfig tunes sequencing and safety.
type InjectorConfig struct {
	// GapTimeout is how long a missing sequence number is waited for
	// before it is treated as lost.
	GapTimeout time.Duration
	// Window bounds the number of early events held while waiting.
	// Reaching it skips the gap immediately.
	Window int
	// BlockedCombos are chords that are never injected.
	BlockedCombos [][]string
}

// Injector applies input events to a Device in strictly increasing
// sequence order.  It is owned by a single goroutine.
type Injector struct {
	dev     Device
	cfg     InjectorConfig
	filter  *ComboFilter
	log     *util.Logger
	metrics *metrics.Collector
	now     func() time.Time

	next     uint64 // next sequence number to apply
	pending  map[uint64]*wire.InputEvent
	gapSince time.Time // zero when nothing is waiting

	keys    map[string]bool
	buttons map[uint8]bool
}

// NewInjector returns an Injector driving dev.
func NewInjector(dev Device, cfg InjectorConfig, log *util.Logger, m *metrics.Collector) *Injector {
	if cfg.Window < 1 {
		cfg.Window = 1
	}
	return &Injector{
		dev:     dev,
		cfg:     cfg,
		filter:  NewComboFilter(cfg.BlockedCombos),
		log:     log,
		metrics: m,
		now:     time.Now,
		next:    1,
		pending: make(map[uint64]*wire.InputEvent),
		keys:    make(map[string]bool),
		buttons: make(map[uint8]bool),
	}
}

// Run applies events from in until ctx is cancelled, in is closed, or
// the device fails permanently.  Everything still held down is
// released before Run returns.
func (in *Injector) Run(ctx context.Context, events <-chan *wire.InputEvent) error {
	defer in.ReleaseAll()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	rearm := func() {
		timer.Stop()
		if deadline, ok := in.GapDeadline(); ok {
			timer.Reset(time.Until(deadline))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := in.Deliver(ev); err != nil {
				return err
			}
			rearm()
		case <-timer.C:
			if err := in.Expire(); err != nil {
				return err
			}
			rearm()
		}
	}
}

// Deliver accepts one event.  It is applied immediately if it is the
// next in sequence, held if it arrived early, and dropped if it is
// stale or a duplicate.
func (in *Injector) Deliver(ev *wire.InputEvent) error {
	switch {
	case ev.Seq < in.next:
		in.drop(ev, "stale")
		return nil
	case in.pending[ev.Seq] != nil:
		in.drop(ev, "duplicate")
		return nil
	case ev.Seq > in.next:
		in.pending[ev.Seq] = ev
		if in.gapSince.IsZero() {
			in.gapSince = in.now()
		}
		if len(in.pending) >= in.cfg.Window {
			return in.skipGap()
		}
		return nil
	}

	if err := in.apply(ev); err != nil {
		return err
	}
	in.next++
	return in.drain()
}

// GapDeadline is when the current gap will be skipped, if any.
func (in *Injector) GapDeadline() (time.Time, bool) {
	if in.gapSince.IsZero() {
		return time.Time{}, false
	}
	return in.gapSince.Add(in.cfg.GapTimeout), true
}

// Expire skips the current gap if it has been waited on long enough.
func (in *Injector) Expire() error {
	deadline, ok := in.GapDeadline()
	if !ok || in.now().Before(deadline) {
		return nil
	}
	return in.skipGap()
}

// Next is the sequence number the injector is waiting for.
func (in *Injector) Next() uint64 { return in.next }

// skipGap gives up on the missing events and resumes at the earliest
// held one.
func (in *Injector) skipGap() error {
	if len(in.pending) == 0 {
		in.gapSince = time.Time{}
		return nil
	}
	lowest := uint64(math.MaxUint64)
	for seq := range in.pending {
		lowest = min(lowest, seq)
	}
	in.log.Debug("input gap: skipping %d..%d", in.next, lowest-1)
	in.metrics.InputGap()
	in.next = lowest
	return in.drain()
}

// drain applies held events that are now in sequence and restarts the
// gap clock if some remain.
func (in *Injector) drain() error {
	for {
		ev, ok := in.pending[in.next]
		if !ok {
			break
		}
		delete(in.pending, in.next)
		if err := in.apply(ev); err != nil {
			return err
		}
		in.next++
	}
	if len(in.pending) == 0 {
		in.gapSince = time.Time{}
	} else {
		in.gapSince = in.now()
	}
	return nil
}

func (in *Injector) drop(ev *wire.InputEvent, why string) {
	in.log.Debug("input %d (%s) dropped: %s", ev.Seq, ev.Kind, why)
	in.metrics.InputDropped()
}

func (in *Injector) apply(ev *wire.InputEvent) error {
	var (
		op  string
		err error
	)
	switch ev.Kind {
	case wire.InputPointerMove:
		w, h := in.dev.ScreenSize()
		op, err = "move", in.dev.SetPointer(Scale(ev.X, w), Scale(ev.Y, h))
	case wire.InputPointerButton:
		if ev.Button < wire.ButtonLeft || ev.Button > wire.ButtonRight {
			in.drop(ev, "unknown button")
			return nil
		}
		if ev.Pressed {
			in.buttons[ev.Button] = true
		} else {
			delete(in.buttons, ev.Button)
		}
		op, err = "button", in.dev.ClickButton(ev.Button, ev.Pressed)
	case wire.InputKey:
		name, ok := KeyName(ev.Code)
		if !ok {
			in.drop(ev, "unmapped key code")
			return nil
		}
		if ev.Pressed {
			if ok, combo := in.filter.Press(name); !ok {
				in.log.Warn("blocked key combination %s", combo)
				in.metrics.InputDropped()
				return nil
			}
			in.keys[name] = true
		} else {
			if !in.keys[name] {
				// Never pressed through us, e.g. the press was blocked.
				return nil
			}
			in.filter.Release(name)
			delete(in.keys, name)
		}
		op, err = "key", in.dev.SendKey(name, ev.Pressed)
	case wire.InputScroll:
		op, err = "scroll", in.dev.Scroll(int(ev.Delta))
	default:
		in.drop(ev, "unknown kind")
		return nil
	}

	if err != nil {
		derr := dserrors.Device("input", op, err)
		if derr.Permanent {
			return derr
		}
		in.log.Warn("%v", derr)
		in.metrics.InputDropped()
		return nil
	}
	in.metrics.InputInjected()
	return nil
}

// ReleaseAll lifts every key and button pressed through the injector,
// so a dropped session never leaves a modifier stuck on the host.
func (in *Injector) ReleaseAll() {
	for name := range in.keys {
		if err := in.dev.SendKey(name, false); err != nil {
			in.log.Debug("release %s: %v", name, err)
		}
		in.filter.Release(name)
		delete(in.keys, name)
	}
	for b := range in.buttons {
		if err := in.dev.ClickButton(b, false); err != nil {
			in.log.Debug("release button %d: %v", b, err)
		}
		delete(in.buttons, b)
	}
}

// Scale maps a normalised coordinate onto an axis of size pixels.
// 1.0 lands on the last pixel rather than one past it.
func Scale(n float64, size int) int {
	if size <= 0 {
		return 0
	}
	v := int(math.Floor(n * float64(size)))
	return max(0, min(v, size-1))
}
