package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// ErrUnreachable marks dial, auth, and timeout failures. Callers must treat it
// as "state unknown", never as an empty result.
var ErrUnreachable = errors.New("ssh: host unreachable")

// Runner executes a single command on a remote host.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
}

// Config holds connection parameters for one remote host.
type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	PrivateKey  string // PEM, optional; takes precedence over Password when set
	DialTimeout time.Duration
}

type runner struct {
	config *ssh.ClientConfig
	addr   string
}

// NewRunner creates a Runner that opens a fresh session per call. No session
// pooling: every Run dials, executes, and tears down.
func NewRunner(cfg Config) (Runner, error) {
	var auth []ssh.AuthMethod
	if cfg.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(cfg.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh: no authentication method configured")
	}

	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: verify against a known_hosts store once fleet import records host keys.
		Timeout:         timeout,
	}

	return &runner{
		config: clientConfig,
		addr:   net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port)),
	}, nil
}

// Run executes command on the remote host, returning trimmed stdout. Dial and
// auth failures, and context expiry, wrap ErrUnreachable.
func (r *runner) Run(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	client, err := ssh.Dial("tcp", r.addr, r.config)
	if err != nil {
		return "", fmt.Errorf("%w: dial %s: %v", ErrUnreachable, r.addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: session on %s: %v", ErrUnreachable, r.addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrUnreachable, ctx.Err())
	case err := <-errCh:
		if err != nil {
			return "", fmt.Errorf("command failed: %v: %s", err, strings.TrimSpace(stderr.String()))
		}
	}

	return strings.TrimSpace(stdout.String()), nil
}
