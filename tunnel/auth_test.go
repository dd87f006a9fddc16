package tunnel

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// writeTestKey writes a fresh ed25519 key in OpenSSH format, encrypted
// when passphrase is non-empty.
func writeTestKey(t *testing.T, path string, passphrase ...string) ssh.PublicKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	var block *pem.Block
	if len(passphrase) > 0 {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "viewer@test", []byte(passphrase[0]))
	} else {
		block, err = ssh.MarshalPrivateKey(priv, "viewer@test")
	}
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return sshPub
}

// withPrompt answers every secret prompt with answer and records the
// prompts shown.
func withPrompt(t *testing.T, answer string, err error) *[]string {
	t.Helper()
	var prompts []string
	orig := promptSecret
	promptSecret = func(p string) ([]byte, error) {
		prompts = append(prompts, p)
		return []byte(answer), err
	}
	t.Cleanup(func() { promptSecret = orig })
	return &prompts
}

// isolate hides the caller's agent and identities from the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SSH_AUTH_SOCK", "")
	return home
}

func TestAuthMethods_KeyFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "id_gateway")
	writeTestKey(t, path)
	prompts := withPrompt(t, "", errors.New("unexpected prompt"))

	methods, err := authMethods(&SSHConfig{KeyPath: path})
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 1 {
		t.Errorf("got %d methods, want 1", len(methods))
	}
	if len(*prompts) != 0 {
		t.Errorf("unencrypted key prompted: %v", *prompts)
	}
}

func TestLoadSigner_Passphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_locked")
	want := writeTestKey(t, path, "hunter2")

	prompts := withPrompt(t, "hunter2", nil)
	s, err := loadSigner(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(s.PublicKey().Marshal()) != string(want.Marshal()) {
		t.Error("decrypted the wrong key")
	}
	if len(*prompts) != 1 || !strings.Contains((*prompts)[0], path) {
		t.Errorf("prompts = %q, want one naming the key", *prompts)
	}

	withPrompt(t, "wrong", nil)
	if _, err := loadSigner(path); err == nil {
		t.Error("expected error for a wrong passphrase")
	}
}

func TestAuthMethods_ExplicitFailureIsFatal(t *testing.T) {
	isolate(t)
	tests := []struct {
		name string
		cfg  SSHConfig
		want string
	}{
		{"missing key", SSHConfig{KeyPath: "/nonexistent/key"}, "key /nonexistent/key"},
		{"no agent", SSHConfig{UseAgent: true}, "SSH_AUTH_SOCK"},
		{"no terminal", SSHConfig{User: "admin", Host: "bastion", PromptPass: true}, "password"},
	}
	withPrompt(t, "", errors.New("stdin is not a terminal"))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := authMethods(&tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestAuthMethods_PasswordPrompt(t *testing.T) {
	isolate(t)
	prompts := withPrompt(t, "s3cret", nil)
	methods, err := authMethods(&SSHConfig{User: "admin", Host: "bastion", PromptPass: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 1 {
		t.Errorf("got %d methods, want 1", len(methods))
	}
	if len(*prompts) != 1 || (*prompts)[0] != "admin@bastion's password: " {
		t.Errorf("prompts = %q", *prompts)
	}
}

func TestAuthMethods_Fallback(t *testing.T) {
	home := isolate(t)
	if _, err := authMethods(&SSHConfig{}); err == nil || !strings.Contains(err.Error(), "--ssh-key") {
		t.Fatalf("got %v, want a hint about credential flags", err)
	}

	writeTestKey(t, filepath.Join(home, ".ssh", "id_ed25519"))
	writeTestKey(t, filepath.Join(home, ".ssh", "id_rsa"), "locked")
	if got := identitySigners(); len(got) != 1 {
		t.Errorf("identitySigners = %d, want the unencrypted key only", len(got))
	}
	methods, err := authMethods(&SSHConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 1 {
		t.Errorf("got %d methods, want the identity files", len(methods))
	}
}

func TestAuthMethods_Agent(t *testing.T) {
	isolate(t)
	dir, err := os.MkdirTemp("", "agent")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	keyring := agent.NewKeyring()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go agent.ServeAgent(keyring, c) //nolint:errcheck
		}
	}()
	t.Setenv("SSH_AUTH_SOCK", sock)

	methods, err := authMethods(&SSHConfig{UseAgent: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(methods) != 1 {
		t.Errorf("got %d methods, want 1", len(methods))
	}
	if methods, _ := authMethods(&SSHConfig{}); len(methods) != 1 {
		t.Errorf("fallback found %d methods, want the agent", len(methods))
	}
}

func TestHostKeys(t *testing.T) {
	if cb, err := hostKeys(&SSHConfig{}); err != nil || cb == nil {
		t.Fatalf("insecure callback: %v", err)
	}

	_, err := hostKeys(&SSHConfig{StrictHostKey: true, KnownHosts: filepath.Join(t.TempDir(), "missing")})
	if err == nil {
		t.Error("expected error for a missing known_hosts file")
	}

	path := filepath.Join(t.TempDir(), "known_hosts")
	pub := writeTestKey(t, filepath.Join(t.TempDir(), "host_key"))
	line := "bastion " + string(ssh.MarshalAuthorizedKey(pub))
	if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
		t.Fatal(err)
	}
	cb, err := hostKeys(&SSHConfig{StrictHostKey: true, KnownHosts: path})
	if err != nil {
		t.Fatal(err)
	}
	addr := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 22}
	if err := cb("bastion:22", addr, pub); err != nil {
		t.Errorf("known key rejected: %v", err)
	}
	other := writeTestKey(t, filepath.Join(t.TempDir(), "other"))
	if err := cb("bastion:22", addr, other); err == nil {
		t.Error("changed host key accepted")
	}
}
