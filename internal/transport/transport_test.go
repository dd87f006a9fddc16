package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	dserrors "deskshare/internal/errors"
	"deskshare/tunnel"
	"deskshare/util"
)

// TestTCPDialer_Connect verifies that TCPDialer can reach a local
// TCP server and exchange data.
func TestTCPDialer_Connect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Server: accept, send greeting, close.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("hello from host\n")) //nolint:errcheck
	}()

	d := &TCPDialer{Timeout: 2 * time.Second}
	conn, err := d.Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != "hello from host\n" {
		t.Errorf("got %q, want %q", got, "hello from host\n")
	}
}

// TestTCPDialer_ContextCancel verifies that a cancelled context stops the dial.
func TestTCPDialer_ContextCancel(t *testing.T) {
	d := &TCPDialer{Timeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	_, err := d.Dial(ctx, "127.0.0.1:1")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if !dserrors.IsTransport(err) {
		t.Errorf("want transport error, got %T: %v", err, err)
	}
}

// TestTCPDialer_Refused verifies a refused dial is retryable.
func TestTCPDialer_Refused(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	d := &TCPDialer{Timeout: time.Second}
	_, err = d.Dial(context.Background(), util.FormatAddr("127.0.0.1", port))
	if err == nil {
		t.Fatal("expected connection refused")
	}
	var te *dserrors.TransportError
	if !errors.As(err, &te) || te.Op != "dial" {
		t.Fatalf("want dial TransportError, got %v", err)
	}
	if !dserrors.IsRetryable(err) {
		t.Error("refused dial should be retryable")
	}
}

// TestTCPDialer_Close verifies Close is a no-op and returns nil.
func TestTCPDialer_Close(t *testing.T) {
	d := &TCPDialer{}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// TestListen_AcceptsTunedConns checks the host listener end to end.
func TestListen_AcceptsTunedConns(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	d := &TCPDialer{Timeout: time.Second}
	client, err := d.Dial(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	server, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	defer server.Close()
	if _, ok := server.(*net.TCPConn); !ok {
		t.Errorf("accepted %T, want *net.TCPConn", server)
	}
}

// TestListen_AddressInUse verifies a listen failure is a TransportError.
func TestListen_AddressInUse(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	_, err = Listen(context.Background(), ln.Addr().String())
	var te *dserrors.TransportError
	if !errors.As(err, &te) || te.Op != "listen" {
		t.Fatalf("want listen TransportError, got %v", err)
	}
}

// TestSSHDialer_UnreachableGateway verifies the tunnel error surfaces
// as a transport failure and Close stays safe.
func TestSSHDialer_UnreachableGateway(t *testing.T) {
	port, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("SSH_AUTH_SOCK", "")
	d := NewSSHDialer(&tunnel.SSHConfig{
		User: "nobody", Host: "127.0.0.1", Port: port,
		KeyPath: "/nonexistent/key", ConnTimeout: time.Second,
	}, util.NewLogger(0))
	defer d.Close()

	_, err = d.Dial(context.Background(), "10.0.0.1:5000")
	if !dserrors.IsTransport(err) {
		t.Fatalf("want transport error, got %v", err)
	}
}
