package pics

import (
	"fmt"
	"io"
	"os/exec"
	"sync"

	"gamehoard/internal/logging"
)

// workerPipe joins the subprocess stdin/stdout into one transport.
type workerPipe struct {
	io.Reader
	io.WriteCloser
	cmd *exec.Cmd
}

func (p *workerPipe) Close() error {
	p.WriteCloser.Close()
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}

// Factory hands out the singleton session, respawning the worker when
// it has died. Safe for concurrent use.
type Factory struct {
	helperPath string

	mu      sync.Mutex
	session *Session
}

// NewFactory builds a factory around the helper binary path.
func NewFactory(helperPath string) *Factory {
	return &Factory{helperPath: helperPath}
}

// Get returns a live session, starting or restarting the worker as
// needed.
func (f *Factory) Get() (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session != nil && f.session.Alive() {
		return f.session, nil
	}
	if f.session != nil {
		logging.PICS("Worker died, respawning")
	}

	session, err := f.spawn()
	if err != nil {
		return nil, err
	}
	f.session = session
	return session, nil
}

// Close shuts the current worker down, if any.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil && f.session.Alive() {
		f.session.conn.Close()
	}
	f.session = nil
}

func (f *Factory) spawn() (*Session, error) {
	cmd := exec.Command(f.helperPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("pics: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pics: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pics: start helper %s: %w", f.helperPath, err)
	}
	go cmd.Wait()

	logging.PICS("Started helper %s (pid %d)", f.helperPath, cmd.Process.Pid)
	return newSession(&workerPipe{Reader: stdout, WriteCloser: stdin, cmd: cmd}), nil
}
