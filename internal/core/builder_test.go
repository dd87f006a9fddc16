package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deskshare/config"
	dserrors "deskshare/internal/errors"
	"deskshare/internal/input"
	"deskshare/internal/platform"
	"deskshare/internal/transport"
	"deskshare/util"
)

func viewerConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Host = "127.0.0.1"
	cfg.Password = "pw"
	return cfg
}

// TestBuild_Viewer verifies that Build produces a ViewMode for a
// simple viewer configuration.
func TestBuild_Viewer(t *testing.T) {
	cfg := viewerConfig()
	cfg.Reconnect = true
	cfg.MaxReconnectAttempts = 4

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	vm, ok := mode.(*ViewMode)
	if !ok {
		t.Fatalf("expected *ViewMode, got %T", mode)
	}
	if vm.Address != "127.0.0.1:5000" {
		t.Errorf("Address = %q", vm.Address)
	}
	if _, ok := vm.Dialer.(*transport.TCPDialer); !ok {
		t.Errorf("expected *transport.TCPDialer, got %T", vm.Dialer)
	}
	if !vm.Reconnect || vm.Backoff.MaxAttempts != 4 {
		t.Errorf("reconnect = %v, attempts = %d", vm.Reconnect, vm.Backoff.MaxAttempts)
	}
	if string(vm.Session.Secret) != "pw" {
		t.Error("secret not carried into the session")
	}
	if vm.Session.Codec == nil || vm.Session.Codec.Compression.String() != "lz4" {
		t.Errorf("codec = %+v", vm.Session.Codec)
	}
	if _, ok := vm.Session.Sink.(*platform.LogSink); !ok {
		t.Errorf("expected *platform.LogSink, got %T", vm.Session.Sink)
	}
	if vm.NewSource != nil {
		t.Error("no input script configured, want no source")
	}
}

// TestBuild_ViewerTunnel verifies the SSH dialer is chosen for -T.
func TestBuild_ViewerTunnel(t *testing.T) {
	cfg := viewerConfig()
	cfg.TunnelEnabled = true
	cfg.TunnelUser = "admin"
	cfg.TunnelHost = "bastion"
	cfg.TunnelPort = 22

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mode.(*ViewMode).Dialer.(*transport.SSHDialer); !ok {
		t.Errorf("expected *transport.SSHDialer, got %T", mode.(*ViewMode).Dialer)
	}
}

// TestBuild_ViewerSnapshot verifies --snapshot selects the PNG sink.
func TestBuild_ViewerSnapshot(t *testing.T) {
	cfg := viewerConfig()
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "screen.png")

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mode.(*ViewMode).Session.Sink.(*platform.Snapshot); !ok {
		t.Errorf("expected *platform.Snapshot, got %T", mode.(*ViewMode).Session.Sink)
	}
}

// TestBuild_NoDNS verifies -n rejects host names.
func TestBuild_NoDNS(t *testing.T) {
	cfg := viewerConfig()
	cfg.Host = "example.com"
	cfg.NoDNS = true

	if _, err := Build(cfg, util.NewLogger(0), nil); err == nil {
		t.Fatal("expected error for hostname with -n")
	}
}

// TestBuild_Host verifies Build produces a HostMode when a display is
// available, and a permanent device error otherwise.
func TestBuild_Host(t *testing.T) {
	cfg := config.Defaults()
	cfg.Listen = true
	cfg.Password = "pw"
	cfg.Port = 6000

	mode, err := Build(cfg, util.NewLogger(0), nil)
	if err != nil {
		if !dserrors.IsPermanentDevice(err) {
			t.Fatalf("got %v, want permanent device error", err)
		}
		t.Skip("no display available")
	}
	hm, ok := mode.(*HostMode)
	if !ok {
		t.Fatalf("expected *HostMode, got %T", mode)
	}
	if hm.Address != ":6000" {
		t.Errorf("Address = %q, want :6000", hm.Address)
	}
	if hm.Session.Injector.BlockedCombos == nil {
		t.Error("blocked combos not applied")
	}
	if hm.Session.Capture.Interval != cfg.FrameInterval() {
		t.Errorf("capture interval = %v", hm.Session.Capture.Interval)
	}
}

// TestScriptSource verifies a script file is replayed in full for
// every session.
func TestScriptSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.txt")
	if err := os.WriteFile(path, []byte("screen 100 100\nmove 50 50\nclick\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	newSource := scriptSource(path)
	for i := 0; i < 2; i++ {
		src, err := newSource()
		if err != nil {
			t.Fatal(err)
		}
		var events []input.RawEvent
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = src.Run(ctx, func(ev input.RawEvent) { events = append(events, ev) })
		cancel()
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if len(events) != 3 {
			t.Fatalf("run %d: %d events, want move and click", i, len(events))
		}
	}

	if _, err := scriptSource(filepath.Join(t.TempDir(), "missing"))(); err == nil {
		t.Error("expected error for missing script")
	}
	if scriptSource("") != nil {
		t.Error("expected no source without a script")
	}
}
