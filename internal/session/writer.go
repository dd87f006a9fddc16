package session

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	dserrors "deskshare/internal/errors"
	"deskshare/internal/wire"
)

// urgentQueue bounds input and control messages waiting for the wire.
const urgentQueue = 256

// maxRetainedBuf caps the encode buffer kept between writes.
const maxRetainedBuf = 4 << 20

// Writer is the single arbitration point for outbound traffic.  Every
// message is encoded and written by its Run goroutine, so framing on
// the wire is never interleaved.
//
// Input and control messages go through a bounded urgent queue and
// always take priority.  Frame updates go through a one-update slot
// that the capture pipeline only fills when it is empty, which is how
// backpressure reaches the capture loop.
type Writer struct {
	conn    net.Conn
	codec   *wire.Codec
	timeout time.Duration

	urgent chan wire.Message
	frames chan []wire.Message
	busy   atomic.Bool
	done   chan struct{}

	buf     []byte
	written atomic.Int64
}

// NewWriter returns a Writer for conn.  Run must be started before
// anything is sent.
func NewWriter(conn net.Conn, codec *wire.Codec, timeout time.Duration) *Writer {
	return &Writer{
		conn:    conn,
		codec:   codec,
		timeout: timeout,
		urgent:  make(chan wire.Message, urgentQueue),
		frames:  make(chan []wire.Message, 1),
		done:    make(chan struct{}),
	}
}

// Send queues m on the urgent path, waiting for room if the queue is
// full.
func (w *Writer) Send(ctx context.Context, m wire.Message) error {
	select {
	case w.urgent <- m:
		return nil
	case <-w.done:
		return dserrors.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend queues m on the urgent path without waiting.
func (w *Writer) TrySend(m wire.Message) bool {
	select {
	case w.urgent <- m:
		return true
	default:
		return false
	}
}

// Busy reports whether a frame update is queued or being written.
func (w *Writer) Busy() bool { return w.busy.Load() }

// TrySendFrame claims the frame slot for msgs, which are written back
// to back.  It never blocks.
func (w *Writer) TrySendFrame(msgs ...wire.Message) bool {
	if !w.busy.CompareAndSwap(false, true) {
		return false
	}
	w.frames <- msgs
	return true
}

// Written is the number of bytes put on the wire.
func (w *Writer) Written() int64 { return w.written.Load() }

// Run writes queued messages until ctx is cancelled or a write fails.
// A write in progress always completes (or times out), so cancellation
// never leaves a partial message on the wire.
func (w *Writer) Run(ctx context.Context) error {
	defer close(w.done)
	for {
		// Urgent traffic first, so input never waits behind a frame
		// that has merely been queued.
		select {
		case m := <-w.urgent:
			if err := w.write(m); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return nil
		case m := <-w.urgent:
			if err := w.write(m); err != nil {
				return err
			}
		case msgs := <-w.frames:
			err := w.write(msgs...)
			w.busy.Store(false)
			if err != nil {
				return err
			}
		}
	}
}

// Drain writes whatever is still queued, then final if non-nil, giving
// up at deadline.  It must only be called after Run has returned.
func (w *Writer) Drain(deadline time.Time, final wire.Message) error {
	var pending []wire.Message
	for {
		select {
		case m := <-w.urgent:
			pending = append(pending, m)
			continue
		case msgs := <-w.frames:
			pending = append(pending, msgs...)
			w.busy.Store(false)
			continue
		default:
		}
		break
	}
	if final != nil {
		pending = append(pending, final)
	}
	if len(pending) == 0 {
		return nil
	}
	return w.writeBy(deadline, pending...)
}

// WriteDirect writes msgs synchronously.  Used before Run starts
// (handshake) and never concurrently with it.
func (w *Writer) WriteDirect(msgs ...wire.Message) error {
	return w.write(msgs...)
}

func (w *Writer) write(msgs ...wire.Message) error {
	var deadline time.Time
	if w.timeout > 0 {
		deadline = time.Now().Add(w.timeout)
	}
	return w.writeBy(deadline, msgs...)
}

func (w *Writer) writeBy(deadline time.Time, msgs ...wire.Message) error {
	buf := w.buf[:0]
	for _, m := range msgs {
		var err error
		if buf, err = w.codec.Append(buf, m); err != nil {
			return err
		}
	}

	w.conn.SetWriteDeadline(deadline) //nolint:errcheck
	n, err := w.conn.Write(buf)
	w.written.Add(int64(n))
	if cap(buf) <= maxRetainedBuf {
		w.buf = buf
	} else {
		w.buf = nil
	}
	if err != nil {
		return dserrors.Transport("write", w.conn.RemoteAddr().String(), err)
	}
	return nil
}
