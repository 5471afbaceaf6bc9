package camera

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/cjeanneret/LapseGo/internal/debug"
)

// StillCamera captures photos by invoking the rpicam-still /
// libcamera-still command-line tool. One invocation per shot; exit code
// 0 means the image was written to the destination path.
type StillCamera struct {
	hflip bool
	vflip bool

	mu       sync.Mutex
	execPath string // resolved binary, cached after the first Ready
}

// NewStillCamera creates a command-line still camera.
// hflip/vflip mirror the frame horizontally/vertically.
func NewStillCamera(hflip, vflip bool) *StillCamera {
	return &StillCamera{hflip: hflip, vflip: vflip}
}

// Ready resolves the "still" action binary and caches the result.
func (c *StillCamera) Ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.execPath != "" {
		return nil
	}
	path, err := ResolveCommand("still")
	if err != nil {
		return err
	}
	c.execPath = path
	return nil
}

// Capture runs the still command synchronously. A nonzero exit status is
// returned as an error carrying an excerpt of the tool's output.
func (c *StillCamera) Capture(ctx context.Context, shot Shot) error {
	if err := c.Ready(); err != nil {
		return err
	}
	c.mu.Lock()
	path := c.execPath
	c.mu.Unlock()

	args := stillArgs(shot, c.hflip, c.vflip)
	debug.Command(path, args)

	cmd := exec.CommandContext(ctx, path, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("capture %s: %w (output: %s)",
			filepath.Base(shot.Dest), err, excerpt(output))
	}
	return nil
}

// stillArgs builds the argument list for one capture.
// -n suppresses the tool's own preview window.
func stillArgs(shot Shot, hflip, vflip bool) []string {
	args := []string{
		"-o", shot.Dest,
		"-n",
		"--width", strconv.Itoa(shot.Width),
		"--height", strconv.Itoa(shot.Height),
	}
	if hflip {
		args = append(args, "--hflip")
	}
	if vflip {
		args = append(args, "--vflip")
	}
	return args
}

// excerpt trims command output for inclusion in error messages.
func excerpt(output []byte) string {
	s := strings.TrimSpace(string(output))
	const max = 200
	if len(s) > max {
		s = s[:max] + "..."
	}
	if s == "" {
		s = "<no output>"
	}
	return s
}
