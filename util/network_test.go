package util

import (
	"net"
	"testing"
)

func TestResolveAddr(t *testing.T) {
	tests := []struct {
		host    string
		port    int
		noDNS   bool
		want    string
		wantErr bool
	}{
		{"127.0.0.1", 5000, true, "127.0.0.1:5000", false},
		{"::1", 5000, true, "[::1]:5000", false},
		{"desk.example.com", 5000, false, "desk.example.com:5000", false},
		{"desk.example.com", 5000, true, "", true}, // hostname with noDNS
	}

	for _, tt := range tests {
		got, err := ResolveAddr(tt.host, tt.port, tt.noDNS)
		if (err != nil) != tt.wantErr {
			t.Errorf("ResolveAddr(%q,%d,%v) err=%v wantErr=%v",
				tt.host, tt.port, tt.noDNS, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveAddr(%q,%d,%v) = %q, want %q",
				tt.host, tt.port, tt.noDNS, got, tt.want)
		}
	}
}

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		target   string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"desk.local", "desk.local", 5000, false},
		{"desk.local:6000", "desk.local", 6000, false},
		{"10.0.0.7:5900", "10.0.0.7", 5900, false},
		{"::1", "::1", 5000, false},
		{"[::1]:7000", "::1", 7000, false},
		{"desk.local:http", "", 0, true},
		{"desk.local:70000", "", 0, true},
		{":5000", "", 0, true},
	}
	for _, tt := range tests {
		host, port, err := SplitTarget(tt.target, 5000)
		if (err != nil) != tt.wantErr {
			t.Errorf("SplitTarget(%q) err=%v wantErr=%v", tt.target, err, tt.wantErr)
			continue
		}
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("SplitTarget(%q) = %q,%d want %q,%d",
				tt.target, host, port, tt.wantHost, tt.wantPort)
		}
	}
}

func TestRemoteIP(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("192.168.1.5"), Port: 40000}
	if got := RemoteIP(addr); got != "192.168.1.5" {
		t.Errorf("got %q", got)
	}
	if got := RemoteIP(nil); got != "" {
		t.Errorf("nil addr: got %q", got)
	}
}

func TestFormatAddr(t *testing.T) {
	if got := FormatAddr("1.2.3.4", 5000); got != "1.2.3.4:5000" {
		t.Errorf("got %q, want %q", got, "1.2.3.4:5000")
	}
}

func TestFindFreePort(t *testing.T) {
	port, err := FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	if port < 1 || port > 65535 {
		t.Errorf("port %d out of range", port)
	}
}
