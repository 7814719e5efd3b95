// Package remote implements the SSH-based Remote Executor: the single
// boundary between the control plane and a managed host's shell. Every
// caller-supplied string that reaches a command line on the far side must
// go through Quote.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// Runner is the minimal interface the rest of the codebase depends on. The
// real SSH-backed implementation is *Client; tests substitute a recording
// fake so the deploy state machine, backup engine, proxy store and
// provisioner can be exercised without a live host.
type Runner interface {
	// Run executes cmd with the given timeout and never returns an error
	// purely because the remote command exited non-zero.
	Run(ctx context.Context, cmd string, timeout time.Duration) (stdout, stderr string, exitCode int, err error)
	// RunChecked executes cmd and fails with a domain RemoteError when the
	// exit code is non-zero.
	RunChecked(ctx context.Context, cmd string, timeout time.Duration) (stdout string, err error)
	UploadString(ctx context.Context, content, remotePath string) error
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
	ReadRemoteFile(ctx context.Context, remotePath string) (string, error)
	// ExecStream starts cmd and streams combined output lines on the
	// returned channel, which is closed when the command exits.
	ExecStream(ctx context.Context, cmd string) (<-chan string, error)
	TestConnection(ctx context.Context) bool
	Host() string
	Close() error
}

// Target names the host/port/user/key a Client connects to.
type Target struct {
	Host    string
	Port    int
	User    string
	KeyPath string // private key path on the control-plane host; "" uses agent/default
}

// Client is the real golang.org/x/crypto/ssh-backed Runner. Host-key policy
// is accept-on-first-use: the control plane is the principal and treats the
// remote fingerprint as out-of-band trust (spec §4.1/§5).
type Client struct {
	target Target
	conn   *ssh.Client
}

// Dial opens a new SSH connection. Callers must Close it on every exit path;
// connections are acquired per operation, never pooled (spec §9).
func Dial(ctx context.Context, t Target) (*Client, error) {
	auth, err := authMethod(t.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading ssh key: %w", err)
	}
	cfg := &ssh.ClientConfig{
		User:            t.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}
	addr := net.JoinHostPort(t.Host, portOrDefault(t.Port))
	d := net.Dialer{Timeout: cfg.Timeout}
	rawConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(rawConn, addr, cfg)
	if err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	return &Client{target: t, conn: ssh.NewClient(c, chans, reqs)}, nil
}

func portOrDefault(p int) string {
	if p == 0 {
		return "22"
	}
	return fmt.Sprintf("%d", p)
}

func authMethod(keyPath string) (ssh.AuthMethod, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("no private key path configured")
	}
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", keyPath, err)
	}
	return ssh.PublicKeys(signer), nil
}

func (c *Client) Host() string { return c.target.Host }

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Run executes cmd via a fresh SSH session, never raising on a non-zero
// remote exit code.
func (c *Client) Run(ctx context.Context, cmd string, timeout time.Duration) (string, string, int, error) {
	sess, err := c.conn.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("opening session: %w", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		sess.Signal(ssh.SIGKILL)
		return stdout.String(), stderr.String(), -1, fmt.Errorf("command timed out after %s", timeout)
	case <-ctx.Done():
		sess.Signal(ssh.SIGKILL)
		return stdout.String(), stderr.String(), -1, ctx.Err()
	case runErr := <-done:
		if runErr == nil {
			return stdout.String(), stderr.String(), 0, nil
		}
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
		}
		return stdout.String(), stderr.String(), -1, runErr
	}
}

// RunChecked fails with a *domain.RemoteError when the remote command
// cannot be run or exits non-zero.
func (c *Client) RunChecked(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	stdout, stderr, code, err := c.Run(ctx, cmd, timeout)
	if err != nil {
		return stdout, &domain.RemoteError{Host: c.target.Host, Command: cmd, Stderr: stderr, Err: err}
	}
	if code != 0 {
		return stdout, &domain.RemoteError{Host: c.target.Host, Command: cmd, Stderr: stderr, Err: fmt.Errorf("exit code %d", code)}
	}
	return stdout, nil
}

type execError struct {
	host, cmd, stderr string
	err               error
}

func (e *execError) Error() string {
	return fmt.Sprintf("command failed on %s: %s: %v (stderr: %s)", e.host, e.cmd, e.err, e.stderr)
}

func (e *execError) Unwrap() error { return e.err }

// UploadString writes content to remotePath by piping it to the stdin of a
// remote `cat > <path>` invocation — this meets the upload contract without
// adding an SFTP dependency (none appears in the reference pack).
func (c *Client) UploadString(ctx context.Context, content, remotePath string) error {
	sess, err := c.conn.NewSession()
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	defer sess.Close()

	sess.Stdin = bytes.NewBufferString(content)
	var stderr bytes.Buffer
	sess.Stderr = &stderr

	cmd := fmt.Sprintf("cat > %s", Quote(remotePath))
	if err := sess.Run(cmd); err != nil {
		return fmt.Errorf("uploading to %s: %w (stderr: %s)", remotePath, err, stderr.String())
	}
	return nil
}

// Upload streams a local file to remotePath.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	sess, err := c.conn.NewSession()
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	defer sess.Close()

	sess.Stdin = f
	cmd := fmt.Sprintf("cat > %s", Quote(remotePath))
	return sess.Run(cmd)
}

// Download reads remotePath's contents and writes them to localPath.
func (c *Client) Download(ctx context.Context, remotePath, localPath string) error {
	content, err := c.ReadRemoteFile(ctx, remotePath)
	if err != nil {
		return err
	}
	return os.WriteFile(localPath, []byte(content), 0o644)
}

// ReadRemoteFile returns the full contents of remotePath.
func (c *Client) ReadRemoteFile(ctx context.Context, remotePath string) (string, error) {
	stdout, _, code, err := c.Run(ctx, fmt.Sprintf("cat %s", Quote(remotePath)), 30*time.Second)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", fmt.Errorf("remote file %s not readable (exit %d)", remotePath, code)
	}
	return stdout, nil
}

// ExecStream starts cmd on a dedicated session and streams combined
// stdout+stderr lines on the returned channel until the command exits or ctx
// is cancelled, whichever first.
func (c *Client) ExecStream(ctx context.Context, cmd string) (<-chan string, error) {
	sess, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	outPipe, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}
	errPipe, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, err
	}

	lines := make(chan string, 64)
	if err := sess.Start(cmd); err != nil {
		sess.Close()
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(outPipe, lines, &wg)
	go streamLines(errPipe, lines, &wg)

	go func() {
		wg.Wait()
		sess.Wait()
		sess.Close()
		close(lines)
	}()

	go func() {
		<-ctx.Done()
		sess.Signal(ssh.SIGKILL)
	}()

	return lines, nil
}

func streamLines(r io.Reader, out chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// TestConnection connects (the Client is already connected) and runs a
// trivial echo, comparing the result.
func (c *Client) TestConnection(ctx context.Context) bool {
	const probe = "infrakt-ping"
	out, _, code, err := c.Run(ctx, "echo "+Quote(probe), 10*time.Second)
	if err != nil || code != 0 {
		return false
	}
	return trimNewline(out) == probe
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
