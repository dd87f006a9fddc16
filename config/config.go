// Package config defines the runtime configuration for deskshare and
// provides helpers for parsing tunnel specifications and validating
// the streaming tunables.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"deskshare/internal/compress"
	ncerr "deskshare/internal/errors"
)

// Config holds every tuneable for a single deskshare process, host or
// viewer.  Fields carry yaml tags so the same struct is used for
// config files.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Host          string        `yaml:"host"`           // viewer: target host
	Port          int           `yaml:"port"`           // host: listen port, viewer: target port
	Listen        bool          `yaml:"listen"`         // run as host
	ListenAddress string        `yaml:"listen_address"` // host bind address ("" = all)
	NoDNS         bool          `yaml:"no_dns"`
	ConnTimeout   time.Duration `yaml:"conn_timeout"`

	// ── Authentication ───────────────────────────────────────────────
	Password        string        `yaml:"password"`
	LockoutAttempts int           `yaml:"lockout_attempts"`
	LockoutWindow   time.Duration `yaml:"lockout_window"`

	// ── Streaming ────────────────────────────────────────────────────
	MaxFPS             int           `yaml:"max_fps"`
	TileSize           int           `yaml:"tile_size"`
	FullFrameThreshold float64       `yaml:"full_frame_threshold"`
	RefreshInterval    time.Duration `yaml:"refresh_interval"`
	Compression        string        `yaml:"compression"`
	Display            int           `yaml:"display"`
	MaxMessageSize     int           `yaml:"max_message_size"`

	// ── Session ──────────────────────────────────────────────────────
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	DrainTimeout      time.Duration `yaml:"drain_timeout"`

	// ── Input ────────────────────────────────────────────────────────
	InputGapTimeout    time.Duration `yaml:"input_gap_timeout"`
	InputReorderWindow int           `yaml:"input_reorder_window"`
	MoveThrottle       time.Duration `yaml:"move_throttle"`
	BlockCombos        bool          `yaml:"block_combos"`
	InputScript        string        `yaml:"input_script"` // viewer: "-" for stdin

	// ── Viewer ───────────────────────────────────────────────────────
	Reconnect            bool   `yaml:"reconnect"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	SnapshotPath         string `yaml:"snapshot_path"`

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string `yaml:"tunnel"` // raw user@host[:port] from -T
	TunnelEnabled  bool   `yaml:"-"`
	TunnelUser     string `yaml:"-"`
	TunnelHost     string `yaml:"-"`
	TunnelPort     int    `yaml:"-"`
	SSHKeyPath     string `yaml:"ssh_key"`
	SSHPassword    bool   `yaml:"ssh_password"` // true → prompt interactively
	UseSSHAgent    bool   `yaml:"ssh_agent"`
	StrictHostKey  bool   `yaml:"strict_hostkey"`
	KnownHostsPath string `yaml:"known_hosts"`

	// ── Output ───────────────────────────────────────────────────────
	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     int    `yaml:"verbose"`
	ConfigFile  string `yaml:"-"`
}

// FrameInterval returns the capture tick period derived from MaxFPS.
func (c *Config) FrameInterval() time.Duration {
	if c.MaxFPS <= 0 {
		return time.Second / DefaultMaxFPS
	}
	return time.Second / time.Duration(c.MaxFPS)
}

// CompressionTag resolves the configured compression name.
func (c *Config) CompressionTag() compress.Tag {
	tag, err := compress.ParseTag(c.Compression)
	if err != nil {
		return compress.None
	}
	return tag
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &ncerr.ConfigError{
			Field: "port", Value: c.Port,
			Message: "out of range 1-65535",
			Hint:    fmt.Sprintf("the default port is %d", DefaultPort),
		}
	}

	if c.Listen {
		if c.Password == "" {
			return &ncerr.ConfigError{
				Field:   "password",
				Message: "required in listen mode",
				Hint:    "pass --password or set DESKSHARE_PASSWORD",
			}
		}
		if c.TunnelEnabled {
			return &ncerr.ConfigError{
				Field:   "tunnel",
				Value:   c.TunnelSpec,
				Message: "listen mode through an SSH tunnel is not supported",
			}
		}
	} else if c.Host == "" {
		return &ncerr.ConfigError{
			Field:   "host",
			Message: "hostname is required",
			Hint:    "deskshare <host> [port]  (use --help for usage)",
		}
	}

	if c.MaxFPS < 1 || c.MaxFPS > 120 {
		return &ncerr.ConfigError{
			Field: "max-fps", Value: c.MaxFPS,
			Message: "must be between 1 and 120",
		}
	}
	if c.TileSize < 8 || c.TileSize > 1024 {
		return &ncerr.ConfigError{
			Field: "tile-size", Value: c.TileSize,
			Message: "must be between 8 and 1024 pixels",
			Hint:    fmt.Sprintf("the default is %d", DefaultTileSize),
		}
	}
	if c.FullFrameThreshold <= 0 || c.FullFrameThreshold > 1 {
		return &ncerr.ConfigError{
			Field: "full-frame-threshold", Value: c.FullFrameThreshold,
			Message: "must be a fraction in (0, 1]",
		}
	}
	if _, err := compress.ParseTag(c.Compression); err != nil {
		return &ncerr.ConfigError{
			Field: "compression", Value: c.Compression,
			Message: err.Error(),
			Hint:    "use one of: none, lz4, zstd",
		}
	}
	if c.MaxMessageSize < 64<<10 {
		return &ncerr.ConfigError{
			Field: "max-message-size", Value: c.MaxMessageSize,
			Message: "must be at least 64 KiB",
		}
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatTimeout <= c.HeartbeatInterval {
		return &ncerr.ConfigError{
			Field: "heartbeat-timeout", Value: c.HeartbeatTimeout,
			Message: "must be longer than the heartbeat interval",
			Hint:    fmt.Sprintf("interval is %v", c.HeartbeatInterval),
		}
	}
	if c.InputReorderWindow < 1 {
		return &ncerr.ConfigError{
			Field: "input-reorder-window", Value: c.InputReorderWindow,
			Message: "must be at least 1",
		}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
	}

	return nil
}
