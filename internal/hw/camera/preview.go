package camera

import (
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/cjeanneret/LapseGo/internal/debug"
)

// stopGrace is how long Stop waits for the preview process to exit after
// SIGTERM before escalating to SIGKILL.
const stopGrace = 2 * time.Second

// Preview manages the long-running camera preview process
// (rpicam-hello / libcamera-hello with an infinite timeout).
//
// The preview and the still capture use the same physical camera device,
// so the caller must stop the preview before starting an acquisition run.
type Preview struct {
	hflip bool
	vflip bool

	mu     sync.Mutex
	cmd    *exec.Cmd
	waitCh chan error // receives the cmd.Wait result exactly once
}

// NewPreview creates a preview controller. No process is started.
func NewPreview(hflip, vflip bool) *Preview {
	return &Preview{hflip: hflip, vflip: vflip}
}

// Start launches the preview process. Starting an already-running
// preview is a no-op. Returns a *CommandNotFoundError when no preview
// binary is installed.
func (p *Preview) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		debug.Live("Preview already running")
		return nil
	}

	path, err := ResolveCommand("hello")
	if err != nil {
		return err
	}

	args := []string{"-t", "0"}
	if p.hflip {
		args = append(args, "--hflip")
	}
	if p.vflip {
		args = append(args, "--vflip")
	}
	debug.Command(path, args)

	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return err
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	p.cmd = cmd
	p.waitCh = waitCh
	debug.Live("Preview started (pid %d)", cmd.Process.Pid)
	return nil
}

// Stop terminates the preview process: SIGTERM, a bounded wait, then
// SIGKILL. Stopping an already-stopped preview is a no-op.
func (p *Preview) Stop() {
	p.mu.Lock()
	cmd, waitCh := p.cmd, p.waitCh
	p.cmd, p.waitCh = nil, nil
	p.mu.Unlock()

	if cmd == nil {
		return
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-waitCh:
	case <-time.After(stopGrace):
		debug.Verbose("Preview did not exit within %v, killing", stopGrace)
		_ = cmd.Process.Kill()
		<-waitCh
	}
	debug.Live("Preview stopped")
}

// Running reports whether the preview process is currently alive.
func (p *Preview) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil {
		return false
	}
	select {
	case err := <-p.waitCh:
		// Process exited on its own (window closed, crash). Clear state
		// but keep the exit result observable for debugging.
		debug.Verbose("Preview exited on its own: %v", err)
		p.cmd, p.waitCh = nil, nil
		return false
	default:
		return true
	}
}
