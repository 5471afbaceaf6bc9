package camera

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Shot describes one still capture request.
type Shot struct {
	Seq    int    // sequence number within the run (1-based)
	Dest   string // destination file path for the image
	Width  int    // frame width in pixels
	Height int    // frame height in pixels
}

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract "camera", regardless of how it's controlled
// (external command, GPIO remote release, etc.).
type Camera interface {
	// Ready verifies synchronously that the backend can capture
	// (binary present on PATH, pins configured, ...). A run must not
	// start if Ready fails.
	Ready() error

	// Capture takes a single photo. The call blocks for the duration of
	// the capture and is not preemptible mid-shot; cancellation is only
	// honored between shots.
	Capture(ctx context.Context, shot Shot) error
}

// CommandNotFoundError reports that no installed binary implements a
// logical camera action. It is fatal to the operation that needed the
// action (preview or the entire run).
type CommandNotFoundError struct {
	Action string   // logical action, e.g. "still" or "hello"
	Tried  []string // binary names probed, in priority order
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("no camera command found for %q (tried %s)",
		e.Action, strings.Join(e.Tried, ", "))
}

// IsRaspberryPi reports whether the process appears to run on a
// Raspberry Pi, based on the device-tree model string.
func IsRaspberryPi() bool {
	data, err := os.ReadFile("/proc/device-tree/model")
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "Raspberry Pi")
}
