// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"deskshare/config"
	"deskshare/internal/core"
	dserrors "deskshare/internal/errors"
	"deskshare/internal/metrics"
	"deskshare/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X deskshare/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Exit codes reported by main.
const (
	ExitError          = 1
	ExitAuthRejected   = 2
	ExitConnectionLost = 3
)

// ExitCode maps the error returned by Execute to a process exit code,
// so scripts can tell a wrong password from a network problem.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case dserrors.IsAuth(err):
		return ExitAuthRejected
	case dserrors.IsTransport(err), errors.Is(err, dserrors.ErrHeartbeatTimeout):
		return ExitConnectionLost
	default:
		return ExitError
	}
}

// options are the flags that do not live in config.Config.
type options struct {
	askPassword bool
	dryRun      bool
	showVersion bool
	showHelp    bool
}

// Execute parses args and runs the host or viewer.
func Execute(ctx context.Context, args []string) error {
	cfg, opts, fs, err := parse(args)
	if err != nil {
		return err
	}

	if opts.showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if opts.showVersion {
		fmt.Printf("deskshare %s\n", version)
		return nil
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	// ── password ─────────────────────────────────────────────────
	if (opts.askPassword || cfg.Password == "") && !opts.dryRun {
		if err := promptPassword(cfg); err != nil {
			return err
		}
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if opts.dryRun {
		fmt.Fprintln(os.Stderr, "configuration OK")
		return nil
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	m := metrics.New()
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m.Register(reg)
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
				logger.Warn("metrics endpoint: %v", err)
			}
		}()
		logger.Verbose("serving metrics on %s/metrics", cfg.MetricsAddr)
	}

	mode, err := core.Build(cfg, logger, m)
	if err != nil {
		return err
	}
	err = mode.Run(ctx)
	if logger.Enabled(util.LogDebug) {
		logger.Debug("metrics: %s", m.JSON())
	}
	return err
}

// parse layers the sources of configuration: defaults, then the
// --config file, then the environment, then flags.
func parse(args []string) (*config.Config, *options, *flag.FlagSet, error) {
	cfg := config.Defaults()
	config.LoadFromEnv(cfg)
	opts, fs, err := parseFlags(cfg, args)
	if err != nil || cfg.ConfigFile == "" {
		return cfg, opts, fs, err
	}

	// A config file sits below env and flags, so start over on top of it.
	path := cfg.ConfigFile
	cfg = config.Defaults()
	if err := config.LoadFile(cfg, path); err != nil {
		return nil, nil, nil, err
	}
	config.LoadFromEnv(cfg)
	opts, fs, err = parseFlags(cfg, args)
	cfg.ConfigFile = path
	return cfg, opts, fs, err
}

func parseFlags(cfg *config.Config, args []string) (*options, *flag.FlagSet, error) {
	verbose := cfg.Verbose // CountVar resets its target
	opts := &options{}
	fs := newFlagSet(cfg, opts)
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if !fs.Changed("verbose") {
		cfg.Verbose = verbose
	}
	return opts, fs, nil
}

func newFlagSet(cfg *config.Config, opts *options) *flag.FlagSet {
	fs := flag.NewFlagSet("deskshare", flag.ContinueOnError)

	// ── connection ───────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Host mode: share this screen")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Port to listen on (host) or connect to (viewer)")
	fs.StringVar(&cfg.ListenAddress, "bind", cfg.ListenAddress, "Address to listen on (host)")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")
	fs.DurationVarP(&cfg.ConnTimeout, "timeout", "w", cfg.ConnTimeout, "Connection timeout")

	// ── authentication ───────────────────────────────────────────
	fs.StringVar(&cfg.Password, "password", cfg.Password, "Session password (prefer DESKSHARE_PASSWORD)")
	fs.BoolVar(&opts.askPassword, "ask-password", false, "Prompt for the session password")
	fs.IntVar(&cfg.LockoutAttempts, "lockout-attempts", cfg.LockoutAttempts, "Failed logins from one address before lockout (host)")
	fs.DurationVar(&cfg.LockoutWindow, "lockout-window", cfg.LockoutWindow, "Window for counting failed logins (host)")

	// ── streaming ────────────────────────────────────────────────
	fs.IntVar(&cfg.MaxFPS, "max-fps", cfg.MaxFPS, "Capture rate limit (host)")
	fs.IntVar(&cfg.TileSize, "tile-size", cfg.TileSize, "Change-detection tile edge in pixels (host)")
	fs.Float64Var(&cfg.FullFrameThreshold, "full-frame-threshold", cfg.FullFrameThreshold, "Changed fraction that sends a full frame (host)")
	fs.DurationVar(&cfg.RefreshInterval, "refresh", cfg.RefreshInterval, "Periodic full-frame interval, 0 disables (host)")
	fs.StringVarP(&cfg.Compression, "compression", "C", cfg.Compression, "Pixel compression: none, lz4, zstd")
	fs.IntVar(&cfg.Display, "display", cfg.Display, "Display index to share (host)")
	fs.IntVar(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "Largest accepted message in bytes")

	// ── session ──────────────────────────────────────────────────
	fs.DurationVar(&cfg.HeartbeatInterval, "heartbeat", cfg.HeartbeatInterval, "Ping interval")
	fs.DurationVar(&cfg.HeartbeatTimeout, "heartbeat-timeout", cfg.HeartbeatTimeout, "Close a silent session after this long")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "Bound on HELLO and AUTH")

	// ── input ────────────────────────────────────────────────────
	fs.DurationVar(&cfg.InputGapTimeout, "input-gap-timeout", cfg.InputGapTimeout, "Wait for a missing input event (host)")
	fs.IntVar(&cfg.InputReorderWindow, "input-window", cfg.InputReorderWindow, "Early input events held while waiting (host)")
	fs.DurationVar(&cfg.MoveThrottle, "move-throttle", cfg.MoveThrottle, "Minimum spacing of pointer moves (viewer)")
	fs.BoolVar(&cfg.BlockCombos, "block-combos", cfg.BlockCombos, "Refuse system key chords such as ctrl+alt+delete (host)")
	fs.StringVar(&cfg.InputScript, "input-script", cfg.InputScript, "Replay input from a script file, - for stdin (viewer)")

	// ── viewer ───────────────────────────────────────────────────
	fs.BoolVarP(&cfg.Reconnect, "reconnect", "r", cfg.Reconnect, "Reconnect after losing the host (viewer)")
	fs.IntVar(&cfg.MaxReconnectAttempts, "max-reconnects", cfg.MaxReconnectAttempts, "Reconnect attempts, 0 is unlimited (viewer)")
	fs.StringVarP(&cfg.SnapshotPath, "snapshot", "o", cfg.SnapshotPath, "Write the received screen to this PNG (viewer)")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Reach the host via SSH [user@]gateway[:port] (viewer)")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML config file")

	fs.BoolVar(&opts.dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&opts.showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }
	return fs
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		switch len(remaining) {
		case 0: // deskshare -l [-p PORT]
		case 1:
			port, err := parsePort(remaining[0])
			if err != nil {
				return err
			}
			cfg.Port = port
		default:
			return fmt.Errorf("too many arguments for listen mode")
		}
		return nil
	}

	// Viewer: host[:port] or host port
	switch len(remaining) {
	case 0:
		return nil // Validate reports the missing host with a hint
	case 1:
		host, port, err := util.SplitTarget(remaining[0], cfg.Port)
		if err != nil {
			return err
		}
		cfg.Host, cfg.Port = host, port
	case 2:
		cfg.Host = remaining[0]
		port, err := parsePort(remaining[1])
		if err != nil {
			return err
		}
		cfg.Port = port
	default:
		return fmt.Errorf("too many arguments: expected <host> [port]")
	}
	return nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

// promptPassword reads the session password from the terminal.  Without
// a terminal the password stays empty and Validate decides.
func promptPassword(cfg *config.Config) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) || cfg.InputScript == "-" {
		return nil
	}
	fmt.Fprint(os.Stderr, "Session password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	cfg.Password = strings.TrimRight(string(pw), "\r\n")
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `deskshare – remote desktop sessions v%s

Share a screen and accept remote input, or view and control a shared one.

Usage:
  deskshare -l [-p <port>] [options]          Host: share this screen
  deskshare [options] <host> [port]           Viewer: connect to a host
  deskshare -T user@gateway <host> [port]     Viewer through an SSH tunnel

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  DESKSHARE_PASSWORD=s3cret deskshare -l -p 5000      Share display 0
  deskshare -r office-pc                              View, reconnect on loss
  deskshare -o screen.png --input-script demo.txt pc  Headless viewer
  deskshare -T admin@bastion 10.0.0.12                Via SSH bastion
  deskshare --config host.yaml -l --metrics :9100     With Prometheus metrics
`)
}
