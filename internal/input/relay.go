package input

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"deskshare/internal/metrics"
	"deskshare/internal/wire"
	"deskshare/util"
)

// MinMoveDistance is how far, in pixels, the pointer must travel from
// the last forwarded position to bypass the move throttle.
const MinMoveDistance = 2

// Relay forwards queued local events to the host, one message per
// event.  A pointer move that comes within the throttle interval of the
// last one and lands less than MinMoveDistance from it is coalesced
// into the latest position; buttons, keys and scrolls are
// never delayed, and a pending move is flushed ahead of them so the
// host sees events in the order they happened.
type Relay struct {
	queue    *Queue
	send     Sender
	throttle time.Duration
	log      *util.Logger
	metrics  *metrics.Collector
	now      func() time.Time

	seq      uint64
	lastMove time.Time
	lastPos  RawEvent
	pending  *RawEvent
}

// NewRelay returns a Relay draining q into s.
func NewRelay(q *Queue, s Sender, throttle time.Duration, log *util.Logger, m *metrics.Collector) *Relay {
	return &Relay{
		queue:    q,
		send:     s,
		throttle: throttle,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// Run starts src feeding the queue and forwards events until ctx is
// cancelled or a send fails.  A source that finishes early is not an
// error; already queued events are still forwarded.
func (r *Relay) Run(ctx context.Context, src Source) error {
	g, ctx := errgroup.WithContext(ctx)
	if src != nil {
		g.Go(func() error {
			err := src.Run(ctx, func(ev RawEvent) {
				if !r.queue.Push(ev) {
					r.metrics.InputDropped()
					r.log.Debug("input queue full, dropped %s", ev.Kind)
				}
			})
			if err != nil && ctx.Err() == nil {
				r.log.Warn("input source stopped: %v", err)
			}
			return nil
		})
	}
	g.Go(func() error { return r.loop(ctx) })
	return g.Wait()
}

func (r *Relay) loop(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-r.queue.C():
			if ev.Kind == wire.InputPointerMove && r.throttle > 0 {
				if wait := r.throttle - r.now().Sub(r.lastMove); wait > 0 && !r.movedFar(ev) {
					if r.pending == nil {
						timer.Reset(wait)
					}
					r.pending = &ev
					continue
				}
				r.pending = nil
				timer.Stop()
				if err := r.forward(ctx, ev); err != nil {
					return err
				}
				continue
			}
			if err := r.flush(ctx); err != nil {
				return err
			}
			timer.Stop()
			if err := r.forward(ctx, ev); err != nil {
				return err
			}

		case <-timer.C:
			if err := r.flush(ctx); err != nil {
				return err
			}
		}
	}
}

// movedFar reports whether ev is at least MinMoveDistance pixels from
// the last forwarded move.
func (r *Relay) movedFar(ev RawEvent) bool {
	dx, dy := ev.X-r.lastPos.X, ev.Y-r.lastPos.Y
	return dx*dx+dy*dy >= MinMoveDistance*MinMoveDistance
}

func (r *Relay) flush(ctx context.Context) error {
	if r.pending == nil {
		return nil
	}
	ev := *r.pending
	r.pending = nil
	return r.forward(ctx, ev)
}

func (r *Relay) forward(ctx context.Context, ev RawEvent) error {
	r.seq++
	msg := Translate(ev, r.seq)
	if ev.Kind == wire.InputPointerMove {
		r.lastMove = r.now()
		r.lastPos = ev
	}
	if err := r.send.Send(ctx, msg); err != nil {
		return err
	}
	r.metrics.InputSent()
	return nil
}

// Translate converts a device event into its wire form with sequence
// number seq.  Pointer coordinates are normalised to pixel centres,
// so x on a W-pixel screen maps back to x on any W-pixel screen.
func Translate(ev RawEvent, seq uint64) *wire.InputEvent {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	out := &wire.InputEvent{Seq: seq, Timestamp: ts.UnixNano(), Kind: ev.Kind}
	switch ev.Kind {
	case wire.InputPointerMove:
		out.X = Normalize(ev.X, ev.ScreenWidth)
		out.Y = Normalize(ev.Y, ev.ScreenHeight)
	case wire.InputPointerButton:
		out.Button = ev.Button
		out.Pressed = ev.Pressed
	case wire.InputKey:
		out.Code = ev.Code
		out.Pressed = ev.Pressed
	case wire.InputScroll:
		out.Delta = ev.Delta
	}
	return out
}

// Normalize maps pixel v on an axis of size pixels into [0,1].
func Normalize(v, size int) float64 {
	if size <= 0 {
		return 0
	}
	n := (float64(v) + 0.5) / float64(size)
	switch {
	case n < 0:
		return 0
	case n > 1:
		return 1
	}
	return n
}
