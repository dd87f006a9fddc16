package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ResolveAddr builds a host:port string, validating that the host is a
// numeric IP when noDNS is true.
func ResolveAddr(host string, port int, noDNS bool) (string, error) {
	if noDNS {
		if net.ParseIP(host) == nil {
			return "", fmt.Errorf("cannot parse %q as an IP address (DNS disabled with -n)", host)
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// SplitTarget accepts "host" or "host:port" and returns both parts,
// falling back to defaultPort when none is given.
func SplitTarget(target string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// No port present (or a bare IPv6 literal).
		if ip := net.ParseIP(target); ip != nil || !strings.Contains(target, ":") {
			return target, defaultPort, nil
		}
		return "", 0, fmt.Errorf("invalid target %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q in target %q", portStr, target)
	}
	if host == "" {
		return "", 0, fmt.Errorf("target %q has no host", target)
	}
	return host, port, nil
}

// RemoteIP extracts the IP part of a connection's remote address,
// returning the whole address string when it cannot be split.
func RemoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
