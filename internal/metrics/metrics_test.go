package metrics

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionOpened()
	c.SessionOpened()
	if c.ActiveSessions() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total = %d, want 2", c.TotalSessions())
	}

	c.SessionClosed()
	if c.ActiveSessions() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveSessions())
	}
	if c.TotalSessions() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalSessions())
	}
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesReceived(1024)
	c.BytesSent(512)
	c.BytesReceived(100)

	if c.TotalBytesIn() != 1124 {
		t.Errorf("bytes in = %d, want 1124", c.TotalBytesIn())
	}
	if c.TotalBytesOut() != 512 {
		t.Errorf("bytes out = %d, want 512", c.TotalBytesOut())
	}
}

func TestCollector_Frames(t *testing.T) {
	c := New()

	c.FrameSent(true)
	c.FrameSent(false)
	c.FrameSent(false)
	c.FrameSkipped()
	c.FrameDropped()
	c.Resync()

	if c.FullFrames() != 1 || c.DeltaFrames() != 2 {
		t.Errorf("full/delta = %d/%d, want 1/2", c.FullFrames(), c.DeltaFrames())
	}
	if c.FramesSkipped() != 1 || c.FramesDropped() != 1 || c.Resyncs() != 1 {
		t.Errorf("skipped/dropped/resyncs = %d/%d/%d",
			c.FramesSkipped(), c.FramesDropped(), c.Resyncs())
	}
}

func TestCollector_Input(t *testing.T) {
	c := New()

	c.InputSent()
	c.InputSent()
	c.InputInjected()
	c.InputDropped()
	c.InputGap()

	sent, injected, dropped, gaps := c.InputStats()
	if sent != 2 || injected != 1 || dropped != 1 || gaps != 1 {
		t.Errorf("input stats = %d/%d/%d/%d", sent, injected, dropped, gaps)
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.AuthFailed()
	c.BytesReceived(100)
	c.BytesSent(50)
	c.RecordRTT(15 * time.Millisecond)
	c.RecordError("test")

	snap := c.Snapshot()
	if snap.SessionsActive != 1 {
		t.Errorf("snap active = %d", snap.SessionsActive)
	}
	if snap.AuthFailures != 1 {
		t.Errorf("snap auth failures = %d", snap.AuthFailures)
	}
	if snap.BytesIn != 100 {
		t.Errorf("snap bytes in = %d", snap.BytesIn)
	}
	if snap.RTT != "15ms" {
		t.Errorf("snap rtt = %q", snap.RTT)
	}
	if snap.ErrorsTotal != 1 {
		t.Errorf("snap errors = %d", snap.ErrorsTotal)
	}
	if snap.LastErrorMessage != "test" {
		t.Errorf("snap error msg = %q", snap.LastErrorMessage)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesSent(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.SessionsActive != 1 {
		t.Errorf("JSON active = %d", snap.SessionsActive)
	}
	if snap.BytesOut != 42 {
		t.Errorf("JSON bytes out = %d", snap.BytesOut)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.SessionOpened()
	c.SessionClosed()
	c.AuthFailed()
	c.BytesReceived(100)
	c.BytesSent(100)
	c.FrameSent(true)
	c.FrameSkipped()
	c.InputInjected()
	c.Reconnect()
	c.RecordRTT(time.Second)
	c.RecordError("test")

	if c.ActiveSessions() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.TotalBytesIn() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}

	snap := c.Snapshot()
	if snap.SessionsActive != 0 {
		t.Error("nil snapshot should be zero")
	}

	j := c.JSON()
	if j == "" {
		t.Error("nil JSON should return valid JSON")
	}
}

func TestRegister_Exposition(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	c.Register(reg)

	c.SessionOpened()
	c.FrameSent(true)
	c.FrameSkipped()
	c.FrameSkipped()

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"deskshare_sessions_active 1",
		"deskshare_full_frames_total 1",
		"deskshare_frames_skipped_total 2",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
