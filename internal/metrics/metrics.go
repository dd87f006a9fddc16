// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of deskshare sessions.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for the sessions of one process.
// A nil Collector is safe to use; every method is then a no-op.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	authFailures   atomic.Int64
	bytesIn        atomic.Int64
	bytesOut       atomic.Int64

	fullFrames    atomic.Int64
	deltaFrames   atomic.Int64
	framesSkipped atomic.Int64
	framesDropped atomic.Int64
	resyncs       atomic.Int64

	inputSent     atomic.Int64
	inputInjected atomic.Int64
	inputDropped  atomic.Int64
	inputGaps     atomic.Int64

	reconnects  atomic.Int64
	errorsTotal atomic.Int64
	lastRTT     atomic.Int64 // nanoseconds

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of authenticated sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// AuthFailed records a rejected authentication attempt.
func (c *Collector) AuthFailed() {
	if c == nil {
		return
	}
	c.authFailures.Add(1)
}

// AuthFailures returns the number of rejected attempts.
func (c *Collector) AuthFailures() int64 {
	if c == nil {
		return 0
	}
	return c.authFailures.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Frame metrics ────────────────────────────────────────────────────

// FrameSent records one transmitted update.
func (c *Collector) FrameSent(full bool) {
	if c == nil {
		return
	}
	if full {
		c.fullFrames.Add(1)
	} else {
		c.deltaFrames.Add(1)
	}
}

// FrameSkipped records a capture tick skipped under backpressure.
func (c *Collector) FrameSkipped() {
	if c == nil {
		return
	}
	c.framesSkipped.Add(1)
}

// FrameDropped records a received update discarded by the viewer.
func (c *Collector) FrameDropped() {
	if c == nil {
		return
	}
	c.framesDropped.Add(1)
}

// Resync records a full-frame resynchronisation request.
func (c *Collector) Resync() {
	if c == nil {
		return
	}
	c.resyncs.Add(1)
}

// FullFrames returns the number of full frames sent.
func (c *Collector) FullFrames() int64 {
	if c == nil {
		return 0
	}
	return c.fullFrames.Load()
}

// DeltaFrames returns the number of region deltas sent.
func (c *Collector) DeltaFrames() int64 {
	if c == nil {
		return 0
	}
	return c.deltaFrames.Load()
}

// FramesSkipped returns the number of skipped capture ticks.
func (c *Collector) FramesSkipped() int64 {
	if c == nil {
		return 0
	}
	return c.framesSkipped.Load()
}

// FramesDropped returns the number of updates discarded by the viewer.
func (c *Collector) FramesDropped() int64 {
	if c == nil {
		return 0
	}
	return c.framesDropped.Load()
}

// Resyncs returns the number of resync requests.
func (c *Collector) Resyncs() int64 {
	if c == nil {
		return 0
	}
	return c.resyncs.Load()
}

// ── Input metrics ────────────────────────────────────────────────────

// InputSent records an event forwarded by the relay.
func (c *Collector) InputSent() {
	if c == nil {
		return
	}
	c.inputSent.Add(1)
}

// InputInjected records an event applied by the injector.
func (c *Collector) InputInjected() {
	if c == nil {
		return
	}
	c.inputInjected.Add(1)
}

// InputDropped records an event discarded as stale, duplicate,
// blocked or overflowing a queue.
func (c *Collector) InputDropped() {
	if c == nil {
		return
	}
	c.inputDropped.Add(1)
}

// InputGap records a sequence gap skipped by the injector.
func (c *Collector) InputGap() {
	if c == nil {
		return
	}
	c.inputGaps.Add(1)
}

// InputStats returns sent, injected, dropped and gap counts.
func (c *Collector) InputStats() (sent, injected, dropped, gaps int64) {
	if c == nil {
		return 0, 0, 0, 0
	}
	return c.inputSent.Load(), c.inputInjected.Load(), c.inputDropped.Load(), c.inputGaps.Load()
}

// ── Connection health ────────────────────────────────────────────────

// Reconnect records a viewer reconnection attempt.
func (c *Collector) Reconnect() {
	if c == nil {
		return
	}
	c.reconnects.Add(1)
}

// Reconnects returns the total reconnection count.
func (c *Collector) Reconnects() int64 {
	if c == nil {
		return 0
	}
	return c.reconnects.Load()
}

// RecordRTT stores the latest heartbeat round-trip time.
func (c *Collector) RecordRTT(d time.Duration) {
	if c == nil {
		return
	}
	c.lastRTT.Store(int64(d))
}

// RTT returns the latest heartbeat round-trip time.
func (c *Collector) RTT() time.Duration {
	if c == nil {
		return 0
	}
	return time.Duration(c.lastRTT.Load())
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	AuthFailures     int64  `json:"auth_failures"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	FullFrames       int64  `json:"full_frames"`
	DeltaFrames      int64  `json:"delta_frames"`
	FramesSkipped    int64  `json:"frames_skipped"`
	FramesDropped    int64  `json:"frames_dropped"`
	Resyncs          int64  `json:"resyncs"`
	InputSent        int64  `json:"input_sent"`
	InputInjected    int64  `json:"input_injected"`
	InputDropped     int64  `json:"input_dropped"`
	InputGaps        int64  `json:"input_gaps"`
	Reconnects       int64  `json:"reconnects"`
	RTT              string `json:"rtt,omitempty"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive: c.sessionsActive.Load(),
		SessionsTotal:  c.sessionsTotal.Load(),
		AuthFailures:   c.authFailures.Load(),
		BytesIn:        c.bytesIn.Load(),
		BytesOut:       c.bytesOut.Load(),
		FullFrames:     c.fullFrames.Load(),
		DeltaFrames:    c.deltaFrames.Load(),
		FramesSkipped:  c.framesSkipped.Load(),
		FramesDropped:  c.framesDropped.Load(),
		Resyncs:        c.resyncs.Load(),
		InputSent:      c.inputSent.Load(),
		InputInjected:  c.inputInjected.Load(),
		InputDropped:   c.inputDropped.Load(),
		InputGaps:      c.inputGaps.Load(),
		Reconnects:     c.reconnects.Load(),
		ErrorsTotal:    c.errorsTotal.Load(),
	}
	if rtt := c.lastRTT.Load(); rtt > 0 {
		s.RTT = time.Duration(rtt).String()
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
