package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/domain"
)

// FakeResponse is a canned reply for one matched command.
type FakeResponse struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// FakeRunner is an in-memory Runner used by unit tests across the deploy,
// backup, proxy and provision packages so they can be exercised without a
// live SSH server. Commands are matched by exact string or by the optional
// Match function; unmatched commands return exit code 0 with empty output.
type FakeRunner struct {
	mu       sync.Mutex
	HostName string
	Files    map[string]string // remotePath -> content, for Upload/Download/ReadRemoteFile
	Commands []string          // every Run/RunChecked invocation, in order
	Responses map[string]FakeResponse
	Match    func(cmd string) (FakeResponse, bool)
	ConnectOK bool
}

func NewFakeRunner(host string) *FakeRunner {
	return &FakeRunner{
		HostName:  host,
		Files:     map[string]string{},
		Responses: map[string]FakeResponse{},
		ConnectOK: true,
	}
}

func (f *FakeRunner) Host() string { return f.HostName }
func (f *FakeRunner) Close() error { return nil }

func (f *FakeRunner) Run(ctx context.Context, cmd string, timeout time.Duration) (string, string, int, error) {
	f.mu.Lock()
	f.Commands = append(f.Commands, cmd)
	f.mu.Unlock()

	if resp, ok := f.Responses[cmd]; ok {
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Err
	}
	if f.Match != nil {
		if resp, ok := f.Match(cmd); ok {
			return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Err
		}
	}
	return "", "", 0, nil
}

func (f *FakeRunner) RunChecked(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	stdout, stderr, code, err := f.Run(ctx, cmd, timeout)
	if err != nil {
		return stdout, err
	}
	if code != 0 {
		return stdout, &domain.RemoteError{Host: f.HostName, Command: cmd, Stderr: stderr, Err: fmt.Errorf("exit code %d", code)}
	}
	return stdout, nil
}

func (f *FakeRunner) UploadString(ctx context.Context, content, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Files[remotePath] = content
	return nil
}

func (f *FakeRunner) Upload(ctx context.Context, localPath, remotePath string) error {
	return f.UploadString(ctx, "", remotePath)
}

func (f *FakeRunner) Download(ctx context.Context, remotePath, localPath string) error {
	_, err := f.ReadRemoteFile(ctx, remotePath)
	return err
}

func (f *FakeRunner) ReadRemoteFile(ctx context.Context, remotePath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.Files[remotePath]
	if !ok {
		return "", fmt.Errorf("remote file %s not found", remotePath)
	}
	return content, nil
}

func (f *FakeRunner) ExecStream(ctx context.Context, cmd string) (<-chan string, error) {
	f.mu.Lock()
	f.Commands = append(f.Commands, cmd)
	f.mu.Unlock()

	out := make(chan string, 4)
	go func() {
		defer close(out)
		resp, ok := f.Responses[cmd]
		if !ok {
			return
		}
		for _, line := range strings.Split(resp.Stdout, "\n") {
			if line != "" {
				out <- line
			}
		}
	}()
	return out, nil
}

func (f *FakeRunner) TestConnection(ctx context.Context) bool { return f.ConnectOK }

var _ Runner = (*FakeRunner)(nil)
