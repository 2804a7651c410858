// SPDX-License-Identifier: BSD-3-Clause

package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/sys/unix"

	"github.com/tendhost/tendhost/pkg/file"
)

const defaultSSHPort = 22

// Dialer is anything compatible with net.Dialer, so tests can substitute a
// fake network without spinning up a real listener.
type Dialer interface {
	Dial(network, address string) (net.Conn, error)
}

// KeySource describes where the SSH executor should obtain its private
// key. Exactly one of these three resolution paths is attempted, in the
// order File, Agent, EnvBase64, matching spec §4.4's "SSH key resolution".
type KeySource struct {
	// FilePath, if set, names a private key file whose permissions must
	// be owner-only (group/other bits clear) or it is rejected.
	FilePath string
	// UseAgent, if true, dials the ssh-agent at SSH_AUTH_SOCK for signers.
	UseAgent bool
	// EnvVar, if set, names an environment variable holding a
	// base64-encoded private key. It is materialized to a temporary
	// owner-only file for the duration of the connection and removed
	// when Close is called.
	EnvVar string
}

// SSHExecutor runs commands on a remote host over an SSH connection. It
// implements Executor.
type SSHExecutor struct {
	host   string
	user   string
	dialer Dialer
	keys   KeySource

	client *ssh.Client
	tmpKey string
}

// must satisfy the Executor interface at compile time.
var _ Executor = (*SSHExecutor)(nil)

// NewSSHExecutor builds an executor targeting host:22 (or host:port if
// host already carries one) as user, authenticating via keys.
func NewSSHExecutor(host, user string, keys KeySource, dialer Dialer) *SSHExecutor {
	if dialer == nil {
		dialer = &net.Dialer{Timeout: 10 * time.Second}
	}
	return &SSHExecutor{host: host, user: user, dialer: dialer, keys: keys}
}

func (e *SSHExecutor) connect(ctx context.Context) error {
	if e.client != nil {
		return nil
	}

	signers, tmpKey, err := resolveSigners(e.keys)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	e.tmpKey = tmpKey

	cfg := &ssh.ClientConfig{
		User:            e.user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signers...)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := ensurePortSuffix(e.host, defaultSSHPort)
	conn, err := e.dialer.Dial("tcp", addr)
	if err != nil {
		e.cleanupKey()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		e.cleanupKey()
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	e.client = ssh.NewClient(sshConn, chans, reqs)
	return nil
}

func resolveSigners(src KeySource) ([]ssh.Signer, string, error) {
	if src.FilePath != "" {
		if err := requireOwnerOnlyPermissions(src.FilePath); err != nil {
			return nil, "", err
		}
		data, err := os.ReadFile(src.FilePath)
		if err != nil {
			return nil, "", err
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, "", err
		}
		return []ssh.Signer{signer}, "", nil
	}

	if src.UseAgent {
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, "", errors.New("SSH_AUTH_SOCK not set")
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, "", err
		}
		signers, err := agent.NewClient(conn).Signers()
		if err != nil {
			return nil, "", err
		}
		return signers, "", nil
	}

	if src.EnvVar != "" {
		encoded := os.Getenv(src.EnvVar)
		if encoded == "" {
			return nil, "", fmt.Errorf("environment variable %s is empty", src.EnvVar)
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, "", fmt.Errorf("decoding %s: %w", src.EnvVar, err)
		}

		tmpPath := fmt.Sprintf("%s/tendhost-key-%d", os.TempDir(), time.Now().UnixNano())
		if err := file.AtomicCreateFile(tmpPath, decoded, 0o600); err != nil {
			return nil, "", err
		}

		signer, err := ssh.ParsePrivateKey(decoded)
		if err != nil {
			_ = os.Remove(tmpPath)
			return nil, "", err
		}
		return []ssh.Signer{signer}, tmpPath, nil
	}

	return nil, "", ErrNoKeySource
}

func requireOwnerOnlyPermissions(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return err
	}
	if st.Mode&(unix.S_IRWXG|unix.S_IRWXO) != 0 {
		return ErrInsecureKeyPermissions
	}
	return nil
}

func (e *SSHExecutor) cleanupKey() {
	if e.tmpKey != "" {
		_ = os.Remove(e.tmpKey)
		e.tmpKey = ""
	}
}

// Run implements Executor.
func (e *SSHExecutor) Run(ctx context.Context, command string) (Result, error) {
	return e.RunWithTimeout(ctx, command, 0)
}

// RunWithTimeout implements Executor.
func (e *SSHExecutor) RunWithTimeout(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	if err := e.connect(ctx); err != nil {
		return Result{}, err
	}

	session, err := e.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSpawnError, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}
		if err == nil {
			res.Status = 0
			return res, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.Status = exitErr.ExitStatus()
			return res, nil
		}
		return res, fmt.Errorf("%w: %w", ErrIOError, err)
	case <-timer.C:
		_ = session.Signal(ssh.SIGKILL)
		return Result{Duration: time.Since(start)}, &Timeout{Duration: timeout}
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return Result{Duration: time.Since(start)}, ctx.Err()
	}
}

// IsConnected implements Executor.
func (e *SSHExecutor) IsConnected() bool {
	return e.client != nil
}

// ExecutorType implements Executor.
func (e *SSHExecutor) ExecutorType() Type {
	return TypeSSH
}

// Close tears down the underlying SSH connection and removes any
// temporary key file materialized for an env-var key source.
func (e *SSHExecutor) Close() error {
	e.cleanupKey()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// ensurePortSuffix appends the default port to host if it does not
// already carry one, handling bracketed IPv6 literals.
func ensurePortSuffix(host string, port int) string {
	switch {
	case !strings.Contains(host, ":"):
		return fmt.Sprintf("%s:%d", host, port)
	case strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]"):
		return fmt.Sprintf("%s:%d", host, port)
	case strings.HasPrefix(host, "[") && strings.Contains(host, "]:"):
		return host
	case strings.Count(host, ":") > 1:
		return fmt.Sprintf("[%s]:%d", host, port)
	default:
		return host
	}
}
