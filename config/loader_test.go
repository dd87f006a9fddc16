package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv_Host(t *testing.T) {
	t.Setenv("DESKSHARE_HOST", "desk.example.com")
	cfg := &Config{}
	LoadFromEnv(cfg)
	if cfg.Host != "desk.example.com" {
		t.Errorf("Host = %q, want %q", cfg.Host, "desk.example.com")
	}
}

func TestLoadFromEnv_Port(t *testing.T) {
	t.Setenv("DESKSHARE_PORT", "6000")
	cfg := &Config{}
	LoadFromEnv(cfg)
	if cfg.Port != 6000 {
		t.Errorf("Port = %d, want 6000", cfg.Port)
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	tests := []struct {
		key    string
		values []string
	}{
		{"DESKSHARE_LISTEN", []string{"1", "true", "yes", "TRUE", "Yes"}},
		{"DESKSHARE_NO_DNS", []string{"true"}},
		{"DESKSHARE_RECONNECT", []string{"1"}},
	}

	for _, tt := range tests {
		for _, v := range tt.values {
			t.Run(tt.key+"="+v, func(t *testing.T) {
				t.Setenv(tt.key, v)
				cfg := &Config{}
				LoadFromEnv(cfg)

				switch tt.key {
				case "DESKSHARE_LISTEN":
					if !cfg.Listen {
						t.Error("Listen should be true")
					}
				case "DESKSHARE_NO_DNS":
					if !cfg.NoDNS {
						t.Error("NoDNS should be true")
					}
				case "DESKSHARE_RECONNECT":
					if !cfg.Reconnect {
						t.Error("Reconnect should be true")
					}
				}
			})
		}
	}
}

func TestLoadFromEnv_Durations(t *testing.T) {
	t.Setenv("DESKSHARE_TIMEOUT", "10")
	t.Setenv("DESKSHARE_HEARTBEAT_INTERVAL", "500ms")
	cfg := &Config{}
	LoadFromEnv(cfg)
	if cfg.ConnTimeout != 10*time.Second {
		t.Errorf("ConnTimeout = %v, want 10s", cfg.ConnTimeout)
	}
	if cfg.HeartbeatInterval != 500*time.Millisecond {
		t.Errorf("HeartbeatInterval = %v, want 500ms", cfg.HeartbeatInterval)
	}
}

func TestLoadFromEnv_Streaming(t *testing.T) {
	t.Setenv("DESKSHARE_MAX_FPS", "30")
	t.Setenv("DESKSHARE_TILE_SIZE", "32")
	t.Setenv("DESKSHARE_FULL_FRAME_THRESHOLD", "0.25")
	t.Setenv("DESKSHARE_COMPRESSION", "ZSTD")
	cfg := Defaults()
	LoadFromEnv(cfg)
	if cfg.MaxFPS != 30 || cfg.TileSize != 32 {
		t.Errorf("MaxFPS=%d TileSize=%d", cfg.MaxFPS, cfg.TileSize)
	}
	if cfg.FullFrameThreshold != 0.25 {
		t.Errorf("FullFrameThreshold = %v", cfg.FullFrameThreshold)
	}
	if cfg.Compression != "zstd" {
		t.Errorf("Compression = %q", cfg.Compression)
	}
}

func TestLoadFromEnv_SSHFields(t *testing.T) {
	t.Setenv("DESKSHARE_TUNNEL", "admin@bastion:2222")
	t.Setenv("DESKSHARE_SSH_KEY", "/home/user/.ssh/id_ed25519")
	t.Setenv("DESKSHARE_SSH_AGENT", "1")
	cfg := &Config{}
	LoadFromEnv(cfg)
	if cfg.TunnelSpec != "admin@bastion:2222" {
		t.Errorf("TunnelSpec = %q", cfg.TunnelSpec)
	}
	if cfg.SSHKeyPath != "/home/user/.ssh/id_ed25519" {
		t.Errorf("SSHKeyPath = %q", cfg.SSHKeyPath)
	}
	if !cfg.UseSSHAgent {
		t.Error("UseSSHAgent should be true")
	}
}

func TestLoadFromEnv_InvalidIgnored(t *testing.T) {
	t.Setenv("DESKSHARE_PORT", "not-a-number")
	t.Setenv("DESKSHARE_HEARTBEAT_TIMEOUT", "soon")
	cfg := Defaults()
	LoadFromEnv(cfg)
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default %d", cfg.Port, DefaultPort)
	}
	if cfg.HeartbeatTimeout != DefaultHeartbeatTimeout {
		t.Errorf("HeartbeatTimeout = %v", cfg.HeartbeatTimeout)
	}
}

func TestLoadFromEnv_EmptyDoesNotOverride(t *testing.T) {
	os.Unsetenv("DESKSHARE_HOST")
	cfg := &Config{Host: "original"}
	LoadFromEnv(cfg)
	if cfg.Host != "original" {
		t.Errorf("Host = %q, want %q (should not be overridden)", cfg.Host, "original")
	}
}

// ── Config file ──────────────────────────────────────────────────────

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "deskshare.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
listen: true
port: 6100
password: hunter2
max_fps: 15
tile_size: 32
refresh_interval: 30s
heartbeat_timeout: 20s
compression: zstd
`)
	cfg := Defaults()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !cfg.Listen || cfg.Port != 6100 || cfg.Password != "hunter2" {
		t.Errorf("connection fields not loaded: %+v", cfg)
	}
	if cfg.MaxFPS != 15 || cfg.TileSize != 32 {
		t.Errorf("MaxFPS=%d TileSize=%d", cfg.MaxFPS, cfg.TileSize)
	}
	if cfg.RefreshInterval != 30*time.Second || cfg.HeartbeatTimeout != 20*time.Second {
		t.Errorf("durations: refresh=%v heartbeat=%v", cfg.RefreshInterval, cfg.HeartbeatTimeout)
	}
	// Untouched keys keep their defaults.
	if cfg.HeartbeatInterval != DefaultHeartbeatInterval {
		t.Errorf("HeartbeatInterval = %v, want default", cfg.HeartbeatInterval)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q", cfg.ConfigFile)
	}
}

func TestLoadFile_UnknownKey(t *testing.T) {
	path := writeFile(t, "max_fsp: 30\n")
	if err := LoadFile(Defaults(), path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if err := LoadFile(Defaults(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
