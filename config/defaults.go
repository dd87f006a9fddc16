package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultPort is the TCP port a host listens on.
	DefaultPort = 5000

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// ── streaming ────────────────────────────────────────────────────

	// DefaultMaxFPS caps the capture pipeline tick rate.
	DefaultMaxFPS = 20

	// DefaultTileSize is the edge length, in pixels, of the square
	// tiles used for change detection.
	DefaultTileSize = 64

	// DefaultFullFrameThreshold is the changed-area fraction above
	// which a full frame is sent instead of a region list.
	DefaultFullFrameThreshold = 0.5

	// DefaultRefreshInterval forces a periodic full frame so a viewer
	// that drifted out of sync heals without asking.
	DefaultRefreshInterval = 10 * time.Second

	// DefaultCompression names the pixel payload codec.
	DefaultCompression = "lz4"

	// DefaultMaxMessageSize bounds a single decoded message (and any
	// decompressed payload inside it).
	DefaultMaxMessageSize = 64 << 20

	// ── session ──────────────────────────────────────────────────────

	// DefaultHeartbeatInterval is how often a PING is sent.
	DefaultHeartbeatInterval = 2 * time.Second

	// DefaultHeartbeatTimeout closes a session that has been silent
	// for this long.
	DefaultHeartbeatTimeout = 10 * time.Second

	// DefaultHandshakeTimeout bounds HELLO + AUTH.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds a single message write.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultDrainTimeout is how long a clean shutdown waits for
	// in-flight sends and the BYE message.
	DefaultDrainTimeout = time.Second

	// ── input ────────────────────────────────────────────────────────

	// DefaultInputGapTimeout is how long the injector waits for a
	// missing sequence number before skipping it.
	DefaultInputGapTimeout = 50 * time.Millisecond

	// DefaultInputReorderWindow bounds the number of early events
	// held while waiting for a gap to fill.
	DefaultInputReorderWindow = 64

	// DefaultMoveThrottle is the minimum spacing of pointer-move
	// events on the relay.
	DefaultMoveThrottle = 10 * time.Millisecond

	// ── authentication ───────────────────────────────────────────────

	// DefaultLockoutAttempts is the number of failed attempts from one
	// address that triggers a lockout.
	DefaultLockoutAttempts = 5

	// DefaultLockoutWindow is the sliding window for failed attempts.
	DefaultLockoutWindow = 5 * time.Minute

	// ── client ───────────────────────────────────────────────────────

	// DefaultMaxReconnectAttempts is how many times a viewer redials
	// after losing the connection.
	DefaultMaxReconnectAttempts = 10

	// DefaultMaxReconnectBackoff caps the exponential backoff between
	// reconnection attempts.
	DefaultMaxReconnectBackoff = 60 * time.Second
)

// Defaults returns a Config populated with every default value.
func Defaults() *Config {
	return &Config{
		Port:                 DefaultPort,
		ConnTimeout:          DefaultConnTimeout,
		MaxFPS:               DefaultMaxFPS,
		TileSize:             DefaultTileSize,
		FullFrameThreshold:   DefaultFullFrameThreshold,
		RefreshInterval:      DefaultRefreshInterval,
		Compression:          DefaultCompression,
		MaxMessageSize:       DefaultMaxMessageSize,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		HeartbeatTimeout:     DefaultHeartbeatTimeout,
		HandshakeTimeout:     DefaultHandshakeTimeout,
		WriteTimeout:         DefaultWriteTimeout,
		DrainTimeout:         DefaultDrainTimeout,
		InputGapTimeout:      DefaultInputGapTimeout,
		InputReorderWindow:   DefaultInputReorderWindow,
		MoveThrottle:         DefaultMoveThrottle,
		BlockCombos:          true,
		LockoutAttempts:      DefaultLockoutAttempts,
		LockoutWindow:        DefaultLockoutWindow,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
	}
}
