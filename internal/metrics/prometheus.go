package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deskshare"

// Register exposes the collector's counters on reg.  The Prometheus
// metrics read the same atomics as Snapshot, so nothing is recorded
// twice.
func (c *Collector) Register(reg prometheus.Registerer) {
	factory := promauto.With(reg)

	counter := func(name, help string, v func() int64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v()) })
	}
	gauge := func(name, help string, v func() float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, v)
	}

	gauge("sessions_active", "Number of authenticated sessions",
		func() float64 { return float64(c.ActiveSessions()) })
	counter("sessions_total", "Total sessions established", c.TotalSessions)
	counter("auth_failures_total", "Rejected authentication attempts", c.AuthFailures)
	counter("bytes_received_total", "Bytes read from session connections", c.TotalBytesIn)
	counter("bytes_sent_total", "Bytes written to session connections", c.TotalBytesOut)
	counter("full_frames_total", "Full frames transmitted", c.FullFrames)
	counter("delta_frames_total", "Region deltas transmitted", c.DeltaFrames)
	counter("frames_skipped_total", "Capture ticks skipped under backpressure", c.FramesSkipped)
	counter("frames_dropped_total", "Received updates discarded by the viewer", c.FramesDropped)
	counter("resyncs_total", "Full-frame resynchronisation requests", c.Resyncs)
	counter("input_sent_total", "Input events forwarded by the relay",
		func() int64 { s, _, _, _ := c.InputStats(); return s })
	counter("input_injected_total", "Input events applied by the injector",
		func() int64 { _, i, _, _ := c.InputStats(); return i })
	counter("input_dropped_total", "Input events discarded",
		func() int64 { _, _, d, _ := c.InputStats(); return d })
	counter("input_gaps_total", "Input sequence gaps skipped",
		func() int64 { _, _, _, g := c.InputStats(); return g })
	counter("reconnects_total", "Viewer reconnection attempts", c.Reconnects)
	counter("errors_total", "Session errors", c.ErrorCount)
	gauge("rtt_seconds", "Latest heartbeat round-trip time",
		func() float64 { return c.RTT().Seconds() })
}

// Serve exposes reg on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
