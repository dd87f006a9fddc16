package core

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"deskshare/config"
	"deskshare/internal/auth"
	"deskshare/internal/input"
	"deskshare/internal/metrics"
	"deskshare/internal/pipeline"
	"deskshare/internal/platform"
	"deskshare/internal/retry"
	"deskshare/internal/session"
	"deskshare/internal/transport"
	"deskshare/internal/wire"
	"deskshare/tunnel"
	"deskshare/util"
)

// snapshotInterval throttles how often the snapshot sink rewrites its
// file.
const snapshotInterval = time.Second

// Build constructs the appropriate Mode from the given configuration.
// m may be nil.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	if cfg.Listen {
		return buildHost(cfg, logger, m)
	}
	return buildViewer(cfg, logger, m)
}

// ── mode builders ────────────────────────────────────────────────────

func buildHost(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	screen, err := platform.OpenScreen(cfg.Display)
	if err != nil {
		return nil, err
	}

	dev, err := platform.OpenInput(cfg.Display)
	if err != nil {
		logger.Warn("input injection unavailable, sessions are view only: %v", err)
		dev = nil
	}

	var blocked [][]string
	if cfg.BlockCombos {
		blocked = input.DefaultBlockedCombos
	}

	return &HostMode{
		Address: util.FormatAddr(cfg.ListenAddress, cfg.Port),
		Screen:  screen,
		Session: session.HostOptions{
			Config:   sessionConfig(cfg),
			Verifier: auth.NewVerifier(cfg.Password),
			Guard:    auth.NewGuard(cfg.LockoutAttempts, cfg.LockoutWindow),
			Capture: pipeline.CaptureConfig{
				Interval:      cfg.FrameInterval(),
				Refresh:       cfg.RefreshInterval,
				TileSize:      cfg.TileSize,
				FullThreshold: cfg.FullFrameThreshold,
			},
			Device: dev,
			Injector: input.InjectorConfig{
				GapTimeout:    cfg.InputGapTimeout,
				Window:        cfg.InputReorderWindow,
				BlockedCombos: blocked,
			},
		},
		Logger:  logger,
		Metrics: m,
	}, nil
}

func buildViewer(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	address, err := util.ResolveAddr(cfg.Host, cfg.Port, cfg.NoDNS)
	if err != nil {
		return nil, err
	}

	var sink pipeline.Sink = &platform.LogSink{Logger: logger.Named("screen")}
	if cfg.SnapshotPath != "" {
		sink = platform.NewSnapshot(cfg.SnapshotPath, snapshotInterval)
	}

	b := retry.DefaultBackoff()
	b.MaxAttempts = cfg.MaxReconnectAttempts
	b.MaxDelay = config.DefaultMaxReconnectBackoff
	b.StableAfter = stableSession

	return &ViewMode{
		Dialer:  buildDialer(cfg, logger),
		Address: address,
		Session: session.ViewerOptions{
			Config:       sessionConfig(cfg),
			Secret:       []byte(cfg.Password),
			Sink:         sink,
			Inbox:        pipeline.DefaultInbox,
			MoveThrottle: cfg.MoveThrottle,
		},
		NewSource: scriptSource(cfg.InputScript),
		Reconnect: cfg.Reconnect,
		Backoff:   b,
		Logger:    logger,
		Metrics:   m,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

func sessionConfig(cfg *config.Config) session.Config {
	name, _ := os.Hostname()
	return session.Config{
		Codec:             wire.NewCodec(cfg.CompressionTag(), cfg.MaxMessageSize),
		Name:              name,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		DrainTimeout:      cfg.DrainTimeout,
	}
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.ConnTimeout,
		}, logger.Named("tunnel"))
	}
	return &transport.TCPDialer{Timeout: cfg.ConnTimeout}
}

// scriptSource opens the input script afresh for each session.  Stdin
// cannot be reopened, so a reconnected session resumes where the
// previous one stopped reading.
func scriptSource(path string) func() (input.Source, error) {
	if path == "" {
		return nil
	}
	// Scripts address a 1920x1080 screen until they say otherwise.
	const w, h = 1920, 1080
	if path == "-" {
		return func() (input.Source, error) {
			return input.NewScriptSource(os.Stdin, w, h), nil
		}
	}
	return func() (input.Source, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("input script: %w", err)
		}
		return input.NewScriptSource(bytes.NewReader(data), w, h), nil
	}
}
