package pipeline

import (
	"context"
	"sync/atomic"

	dserrors "deskshare/internal/errors"
	"deskshare/internal/frame"
	"deskshare/internal/metrics"
	"deskshare/internal/wire"
	"deskshare/util"
)

// Sink is the viewer's display.  Present must not retain bm past the
// call: the pipeline keeps writing into it.
type Sink interface {
	Present(bm *frame.Bitmap) error
}

// Sender transmits a control message on the session's urgent path.
type Sender interface {
	Send(ctx context.Context, m wire.Message) error
}

// DefaultInbox is the number of updates buffered between the session
// reader and the render loop.
const DefaultInbox = 4

// Render is the viewer-side frame pipeline.  The session reader hands
// it frame messages through Offer; a single Run goroutine applies them
// to the reconstructed bitmap and presents the result.
type Render struct {
	sink    Sink
	send    Sender
	log     *util.Logger
	metrics *metrics.Collector

	inbox   chan wire.Message
	dropped atomic.Bool // an update was discarded; wait for a full frame

	// Owned by the Run goroutine.
	bitmap        *frame.Bitmap
	lastSeq       uint64
	needFull      bool
	resyncPending bool
}

// NewRender returns a Render presenting to sink and asking for resyncs
// through send.
func NewRender(sink Sink, send Sender, inbox int, log *util.Logger, m *metrics.Collector) *Render {
	if inbox < 1 {
		inbox = DefaultInbox
	}
	return &Render{
		sink:     sink,
		send:     send,
		log:      log,
		metrics:  m,
		inbox:    make(chan wire.Message, inbox),
		needFull: true,
	}
}

// Offer queues a FullFrame, RegionDelta or Resize without blocking.  A
// stalled display must never hold up the session reader, so when the
// inbox is full the update is dropped and the pipeline resynchronises
// on its next update.
func (r *Render) Offer(m wire.Message) {
	select {
	case r.inbox <- m:
	default:
		r.dropped.Store(true)
		r.metrics.FrameDropped()
		r.log.Debug("render inbox full, dropped %s", m.Tag())
	}
}

// Run applies queued updates until ctx is cancelled or an update is
// invalid.
func (r *Render) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-r.inbox:
			if err := r.Handle(ctx, m); err != nil {
				return err
			}
		}
	}
}

// Bitmap is the current reconstruction, or nil before the first full
// frame.  Only valid on the Run goroutine or after Run returns.
func (r *Render) Bitmap() *frame.Bitmap { return r.bitmap }

// LastSeq is the sequence number of the last accepted update.
func (r *Render) LastSeq() uint64 { return r.lastSeq }

// Handle applies one update.
func (r *Render) Handle(ctx context.Context, m wire.Message) error {
	if r.dropped.Swap(false) {
		r.needFull = true
	}

	switch m := m.(type) {
	case *wire.Resize:
		r.log.Verbose("host screen is now %dx%d", m.Width, m.Height)
		r.needFull = true
		return nil

	case *wire.FullFrame:
		if r.lastSeq != 0 && m.Seq <= r.lastSeq {
			r.log.Debug("full frame %d after %d, discarded", m.Seq, r.lastSeq)
			return r.requestResync(ctx)
		}
		if err := m.Bitmap.Validate(); err != nil {
			return dserrors.Protocol(byte(wire.TagFullFrame), "%v", err)
		}
		r.bitmap = m.Bitmap
		r.lastSeq = m.Seq
		r.needFull = false
		r.resyncPending = false
		return r.present()

	case *wire.RegionDelta:
		switch {
		case m.Seq <= r.lastSeq:
			r.log.Debug("delta %d after %d, discarded", m.Seq, r.lastSeq)
			return r.requestResync(ctx)
		case r.needFull || r.bitmap == nil:
			r.log.Debug("delta %d while waiting for a full frame, discarded", m.Seq)
			return r.requestResync(ctx)
		case m.Seq != r.lastSeq+1:
			// A missing delta leaves the reconstruction wrong.
			r.log.Debug("delta %d after %d, missing updates", m.Seq, r.lastSeq)
			r.needFull = true
			return r.requestResync(ctx)
		}
		if err := frame.Apply(r.bitmap, m.Regions); err != nil {
			return dserrors.Protocol(byte(wire.TagRegionDelta), "%v", err)
		}
		r.lastSeq = m.Seq
		return r.present()

	default:
		return dserrors.Protocol(byte(m.Tag()), "not a frame update")
	}
}

// requestResync asks the host for a full frame, once per anomaly: the
// request stays outstanding until a full frame is accepted.
func (r *Render) requestResync(ctx context.Context) error {
	r.metrics.FrameDropped()
	if r.resyncPending {
		return nil
	}
	r.resyncPending = true
	r.metrics.Resync()
	r.log.Verbose("requesting resync after seq %d", r.lastSeq)
	return r.send.Send(ctx, &wire.ResyncRequest{LastSeq: r.lastSeq})
}

func (r *Render) present() error {
	if err := r.sink.Present(r.bitmap); err != nil {
		derr := dserrors.Device("display", "present", err)
		if derr.Permanent {
			return derr
		}
		r.log.Warn("%v", derr)
	}
	return nil
}
