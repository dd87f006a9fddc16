// Package pipeline implements the two frame pipelines of a session:
// Capture on the host turns screen grabs into updates, and Render on
// the viewer turns updates back into a bitmap for display.
//
// Each pipeline owns its bitmap exclusively; nothing else reads or
// writes it, so neither needs a lock.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	dserrors "deskshare/internal/errors"
	"deskshare/internal/frame"
	"deskshare/internal/metrics"
	"deskshare/internal/retry"
	"deskshare/internal/wire"
	"deskshare/util"
)

// Grabber is the host's screen-capture primitive.  Each call must
// return a freshly allocated bitmap: the previous one is still
// referenced as the diff reference and may be in flight on the wire.
type Grabber interface {
	Grab() (*frame.Bitmap, error)
}

// FrameWriter is the frame slot of the session writer.  It holds at
// most one pending update.
type FrameWriter interface {
	// Busy reports whether the previous update is still queued or
	// being written.
	Busy() bool
	// TrySendFrame hands msgs to the writer as one unit, or reports
	// false without blocking if the slot is taken.
	TrySendFrame(msgs ...wire.Message) bool
}

// CaptureConfig tunes the capture loop.
type CaptureConfig struct {
	// Interval between ticks, 1/MaxFPS.
	Interval time.Duration
	// Refresh forces a full frame this often, so a viewer that
	// silently diverged heals without asking.  Zero disables it.
	Refresh time.Duration
	// TileSize and FullThreshold configure the differencer.
	TileSize      int
	FullThreshold float64
}

// Capture is the host-side frame pipeline.
type Capture struct {
	cfg     CaptureConfig
	grab    Grabber
	out     FrameWriter
	differ  *frame.Differ
	breaker *retry.Breaker
	log     *util.Logger
	metrics *metrics.Collector

	resync atomic.Bool

	// Owned by the Run goroutine.
	ref      *frame.Bitmap
	seq      uint64
	lastFull time.Time
}

// NewCapture returns a Capture grabbing from g and sending through out.
func NewCapture(cfg CaptureConfig, g Grabber, out FrameWriter, log *util.Logger, m *metrics.Collector) *Capture {
	return &Capture{
		cfg:    cfg,
		grab:   g,
		out:    out,
		differ: frame.NewDiffer(cfg.TileSize, cfg.FullThreshold),
		breaker: &retry.Breaker{
			Threshold: 5,
			Cooldown:  time.Second,
			Counts:    func(err error) bool { return !dserrors.IsPermanentDevice(err) },
			OnChange: func(from, to retry.State) {
				log.Verbose("screen grab %s -> %s", from, to)
			},
		},
		log:     log,
		metrics: m,
	}
}

// RequestResync makes the next accepted update a full frame.  Safe to
// call from any goroutine.
func (c *Capture) RequestResync() {
	c.resync.Store(true)
}

// Seq is the sequence number of the last accepted update.
func (c *Capture) Seq() uint64 { return c.seq }

// Run ticks until ctx is cancelled or the grabber fails permanently.
func (c *Capture) Run(ctx context.Context) error {
	interval := c.cfg.Interval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// The first frame goes out immediately.
		if err := c.Tick(time.Now()); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one capture cycle.  It returns an error only when the
// session must end.
func (c *Capture) Tick(now time.Time) error {
	// Freshness over completeness: never queue behind a slow writer.
	if c.out.Busy() {
		c.metrics.FrameSkipped()
		c.log.Debug("writer busy, skipped tick")
		return nil
	}

	var bm *frame.Bitmap
	err := c.breaker.Do(func() error {
		var gerr error
		bm, gerr = c.grab.Grab()
		if gerr == nil {
			gerr = bm.Validate()
		}
		return gerr
	})
	if err != nil {
		return c.grabFailed(err)
	}

	forced := c.resync.Swap(false)
	resized := c.ref != nil && !c.ref.SameSize(bm)
	full := forced || resized || c.ref == nil ||
		(c.cfg.Refresh > 0 && now.Sub(c.lastFull) >= c.cfg.Refresh)

	seq := c.seq + 1
	var msgs []wire.Message
	if resized {
		c.log.Verbose("screen resized %dx%d -> %dx%d", c.ref.Width, c.ref.Height, bm.Width, bm.Height)
		msgs = append(msgs, &wire.Resize{Width: bm.Width, Height: bm.Height})
	}
	if full {
		msgs = append(msgs, &wire.FullFrame{Seq: seq, Bitmap: bm})
	} else {
		u := c.differ.Diff(c.ref, bm)
		if u.Empty() {
			return nil
		}
		if u.Kind == frame.KindFull {
			full = true
			msgs = append(msgs, &wire.FullFrame{Seq: seq, Bitmap: bm})
		} else {
			msgs = append(msgs, &wire.RegionDelta{Seq: seq, Regions: u.Regions})
		}
	}

	if !c.out.TrySendFrame(msgs...) {
		// The reference stays at what the viewer has; the next tick
		// diffs against it again.
		if forced {
			c.resync.Store(true)
		}
		c.metrics.FrameSkipped()
		return nil
	}

	c.seq = seq
	c.ref = bm
	if full {
		c.lastFull = now
	}
	c.metrics.FrameSent(full)
	return nil
}

func (c *Capture) grabFailed(err error) error {
	if dserrors.IsPermanentDevice(err) {
		return dserrors.Device("screen", "grab", err)
	}
	if dserrors.Is(err, dserrors.ErrCircuitOpen) {
		c.log.Debug("screen grab suspended: %v", err)
	} else {
		c.log.Warn("%v", dserrors.Device("screen", "grab", err))
	}
	c.metrics.FrameSkipped()
	return nil
}
