package config

// loader.go - configuration loading from environment variables and
// YAML files.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables
//   3. Config file (--config)
//   4. Defaults   (defaults.go)

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ── Config file ──────────────────────────────────────────────────────

// LoadFile overlays a YAML config file onto cfg.  Keys absent from the
// file keep their current value; unknown keys are rejected so typos do
// not silently fall back to defaults.
func LoadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the DESKSHARE_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("250ms", "10s") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("DESKSHARE_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("DESKSHARE_PORT"); v > 0 {
		cfg.Port = v
	}
	if envBool("DESKSHARE_LISTEN") {
		cfg.Listen = true
	}
	if v := os.Getenv("DESKSHARE_LISTEN_ADDRESS"); v != "" {
		cfg.ListenAddress = v
	}
	if envBool("DESKSHARE_NO_DNS") {
		cfg.NoDNS = true
	}
	if v := envDuration("DESKSHARE_TIMEOUT"); v > 0 {
		cfg.ConnTimeout = v
	}

	// Authentication
	if v := os.Getenv("DESKSHARE_PASSWORD"); v != "" {
		cfg.Password = v
	}

	// Streaming
	if v := envInt("DESKSHARE_MAX_FPS"); v > 0 {
		cfg.MaxFPS = v
	}
	if v := envInt("DESKSHARE_TILE_SIZE"); v > 0 {
		cfg.TileSize = v
	}
	if v := envFloat("DESKSHARE_FULL_FRAME_THRESHOLD"); v > 0 {
		cfg.FullFrameThreshold = v
	}
	if v := envDuration("DESKSHARE_REFRESH_INTERVAL"); v > 0 {
		cfg.RefreshInterval = v
	}
	if v := os.Getenv("DESKSHARE_COMPRESSION"); v != "" {
		cfg.Compression = strings.ToLower(v)
	}
	if v := envInt("DESKSHARE_DISPLAY"); v > 0 {
		cfg.Display = v
	}

	// Session
	if v := envDuration("DESKSHARE_HEARTBEAT_INTERVAL"); v > 0 {
		cfg.HeartbeatInterval = v
	}
	if v := envDuration("DESKSHARE_HEARTBEAT_TIMEOUT"); v > 0 {
		cfg.HeartbeatTimeout = v
	}

	// Viewer
	if envBool("DESKSHARE_RECONNECT") {
		cfg.Reconnect = true
	}
	if v := os.Getenv("DESKSHARE_SNAPSHOT"); v != "" {
		cfg.SnapshotPath = v
	}

	// SSH tunnel
	if v := os.Getenv("DESKSHARE_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("DESKSHARE_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("DESKSHARE_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("DESKSHARE_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("DESKSHARE_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := os.Getenv("DESKSHARE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := envInt("DESKSHARE_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}
