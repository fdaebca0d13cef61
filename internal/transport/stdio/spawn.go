package stdio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/danmuck/bridgectl/internal/transport"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// drainTimeout bounds how long Wait lets the reader finish the child's
// output before reaping it.
const drainTimeout = 5 * time.Second

// Process is a Conn over a child process's stdin and stdout.
type Process struct {
	*Conn
	cmd   *exec.Cmd
	stdin io.WriteCloser

	stderrMu sync.Mutex
	stderr   bytes.Buffer

	waitOnce sync.Once
	exitCode int32
	waitErr  error
}

// Spawn starts name with args and bridges over its stdio. The child is
// killed when ctx ends.
func Spawn(ctx context.Context, cfg transport.Config, name string, args ...string) (*Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdio: stdout pipe: %w", err)
	}
	p := &Process{cmd: cmd, stdin: stdin}
	cmd.Stderr = lockedWriter{mu: &p.stderrMu, buf: &p.stderr}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stdio: start %s: %w", name, err)
	}
	p.Conn = New(stdout, stdin, cfg, stdin)
	return p, nil
}

// Stderr returns what the child has written to stderr so far.
func (p *Process) Stderr() string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()
	return p.stderr.String()
}

// Wait closes the child's stdin, lets the reader deliver the rest of the
// child's output, and waits for it to exit. It returns the exit code: 127
// when the command could not run, 1 for other non-exit failures.
func (p *Process) Wait() (int32, error) {
	p.waitOnce.Do(func() {
		stdinErr := p.stdin.Close()
		select {
		case <-p.Conn.readDone:
		case <-time.After(drainTimeout):
			log.Warn().Str("cmd", p.cmd.Path).Dur("after", drainTimeout).Msg("child output still open, reaping")
		}
		err := p.cmd.Wait()
		p.exitCode, p.waitErr = exitStatus(err)
		p.waitErr = multierr.Combine(p.waitErr, ignoreClosed(stdinErr), ignoreClosed(p.Conn.Close()))
	})
	return p.exitCode, p.waitErr
}

func exitStatus(err error) (int32, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return int32(exitErr.ExitCode()), err
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return 127, err
	}
	return 1, err
}

// ignoreClosed drops the error from closing a pipe the child already closed.
func ignoreClosed(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

type lockedWriter struct {
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (w lockedWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(b)
}
