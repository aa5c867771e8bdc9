package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config describes the SSH bastion in front of the private backends.
type Config struct {
	Host     string
	Port     int
	Username string
	// PrivateKey is either a path to a key file or the PEM content itself.
	PrivateKey     string
	KnownHostsFile string
	Timeout        time.Duration
}

// Tunnel forwards TCP connections through a single SSH client connection.
// It is safe for concurrent use; every dial opens a new channel on the shared client.
type Tunnel struct {
	client *ssh.Client
	addr   string
}

// Open connects to the bastion described by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Tunnel, error) {
	signer, err := loadSigner(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	hostKeys, err := hostKeyCallback(cfg.KnownHostsFile, logger)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	port := cfg.Port
	if port <= 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         timeout,
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial ssh bastion %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	if logger != nil {
		logger.Info("ssh tunnel established", "bastion", addr, "user", cfg.Username)
	}
	return &Tunnel{client: ssh.NewClient(c, chans, reqs), addr: addr}, nil
}

// DialContext opens a connection to addr as seen from the bastion.
func (t *Tunnel) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network == "" {
		network = "tcp"
	}
	conn, err := t.client.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("tunnel %s -> %s: %w", t.addr, addr, err)
	}
	return conn, nil
}

// Close tears down the SSH connection and every forwarded channel.
func (t *Tunnel) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}

func loadSigner(key string) (ssh.Signer, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("ssh private key is empty")
	}

	pem := []byte(key)
	if !strings.HasPrefix(key, "-----BEGIN") {
		path, err := expandHome(key)
		if err != nil {
			return nil, err
		}
		pem, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read ssh private key: %w", err)
		}
	}

	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse ssh private key: %w", err)
	}
	return signer, nil
}

func hostKeyCallback(knownHostsFile string, logger *slog.Logger) (ssh.HostKeyCallback, error) {
	if strings.TrimSpace(knownHostsFile) == "" {
		if logger != nil {
			logger.Warn("ssh known_hosts_file not set; bastion host key is not verified")
		}
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path, err := expandHome(knownHostsFile)
	if err != nil {
		return nil, err
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	return cb, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}
