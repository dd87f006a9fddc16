package tunnel

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// defaultIdentities are tried, in order, when no credential option is
// given.
var defaultIdentities = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// promptSecret reads a passphrase or password without echo.
var promptSecret = func(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(fd)
}

// authMethods lists what the tunnel offers the gateway.  Explicit
// options come first and must all work; without any, the agent and
// the usual identity files are offered when present.
func authMethods(cfg *SSHConfig) ([]ssh.AuthMethod, error) {
	explicit := []struct {
		on    bool
		what  string
		build func() (ssh.AuthMethod, error)
	}{
		{cfg.KeyPath != "", "key " + cfg.KeyPath, func() (ssh.AuthMethod, error) {
			s, err := loadSigner(cfg.KeyPath)
			if err != nil {
				return nil, err
			}
			return ssh.PublicKeys(s), nil
		}},
		{cfg.UseAgent, "ssh-agent", agentMethod},
		{cfg.PromptPass, "password", func() (ssh.AuthMethod, error) {
			pass, err := promptSecret(fmt.Sprintf("%s@%s's password: ", cfg.User, cfg.Host))
			if err != nil {
				return nil, err
			}
			return ssh.Password(string(pass)), nil
		}},
	}

	var methods []ssh.AuthMethod
	for _, src := range explicit {
		if !src.on {
			continue
		}
		m, err := src.build()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.what, err)
		}
		methods = append(methods, m)
	}
	if len(methods) > 0 {
		return methods, nil
	}

	if m, err := agentMethod(); err == nil {
		methods = append(methods, m)
	}
	if signers := identitySigners(); len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	if len(methods) == 0 {
		return nil, errors.New("no SSH credentials found; use --ssh-key, --ssh-agent or --ssh-password")
	}
	return methods, nil
}

// loadSigner parses a private key file, asking for the passphrase when
// the key is encrypted.
func loadSigner(path string) (ssh.Signer, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(pemBytes)
	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return signer, err
	}

	pass, err := promptSecret(fmt.Sprintf("Enter passphrase for key '%s': ", path))
	if err != nil {
		return nil, fmt.Errorf("passphrase: %w", err)
	}
	return ssh.ParsePrivateKeyWithPassphrase(pemBytes, pass)
}

func agentMethod() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, errors.New("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

// identitySigners loads the unencrypted default identities under
// ~/.ssh.  Encrypted ones are skipped rather than prompted for.
func identitySigners() []ssh.Signer {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var signers []ssh.Signer
	for _, name := range defaultIdentities {
		pemBytes, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		if s, err := ssh.ParsePrivateKey(pemBytes); err == nil {
			signers = append(signers, s)
		}
	}
	return signers
}

// hostKeys checks the gateway against known_hosts, unless the user
// turned strict checking off.
func hostKeys(cfg *SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}
	path := cfg.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}
	return cb, nil
}
