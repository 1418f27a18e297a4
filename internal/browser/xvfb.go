package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// x11SocketDir is where an X server listening on display :N creates XN.
var x11SocketDir = "/tmp/.X11-unix"

// xvfbReadyTimeout bounds how long Start waits for the display socket.
const xvfbReadyTimeout = 10 * time.Second

// xvfbProc is a running Xvfb. done is closed once the process has exited
// and err holds what Wait returned.
type xvfbProc struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// startXvfb launches Xvfb on cfg.XvfbDisplay and returns once the server
// accepts connections, i.e. its socket exists.
func (m *Manager) startXvfb(ctx context.Context) error {
	if m.xvfb != nil {
		return nil
	}

	display := m.cfg.XvfbDisplay
	sock, err := displaySocket(display)
	if err != nil {
		return err
	}

	cmd := exec.Command("Xvfb", display, "-screen", "0", "1920x1080x24", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	p := &xvfbProc{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	m.xvfb = p

	wctx, cancel := context.WithTimeout(ctx, xvfbReadyTimeout)
	defer cancel()
	if err := waitForSocket(wctx, sock, p.done); err != nil {
		if errors.Is(err, errXvfbExited) && p.err != nil {
			err = fmt.Errorf("%w: %v", err, p.err)
		}
		m.stopXvfb()
		return err
	}

	m.cfg.Logger.Info("browser: xvfb ready", "display", display, "pid", cmd.Process.Pid)
	return nil
}

// stopXvfb kills Xvfb and waits for it to exit.
func (m *Manager) stopXvfb() error {
	p := m.xvfb
	if p == nil {
		return nil
	}
	m.xvfb = nil

	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		err = nil
	}
	if err != nil {
		m.cfg.Logger.Warn("browser: xvfb kill failed", "pid", p.cmd.Process.Pid, "error", err)
		return fmt.Errorf("browser: kill xvfb: %w", err)
	}
	<-p.done
	m.cfg.Logger.Info("browser: xvfb stopped")
	return nil
}

var errXvfbExited = errors.New("xvfb exited before its display was ready")

// waitForSocket polls for path until it exists, exited is closed, or ctx
// ends.
func waitForSocket(ctx context.Context, path string, exited <-chan struct{}) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-exited:
			return errXvfbExited
		case <-ctx.Done():
			return fmt.Errorf("xvfb display socket %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}

// displaySocket maps ":99" or ":99.0" to the server's Unix socket path.
func displaySocket(display string) (string, error) {
	i := strings.LastIndexByte(display, ':')
	if i < 0 || i == len(display)-1 {
		return "", fmt.Errorf("invalid X display %q", display)
	}
	num := display[i+1:]
	if dot := strings.IndexByte(num, '.'); dot >= 0 {
		num = num[:dot]
	}
	for _, c := range num {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("invalid X display %q", display)
		}
	}
	if num == "" || display[:i] != "" {
		return "", fmt.Errorf("xvfb display must be local, got %q", display)
	}
	return filepath.Join(x11SocketDir, "X"+num), nil
}
