package camera

import (
	"os/exec"

	"github.com/cjeanneret/LapseGo/internal/debug"
)

// ResolveCommand maps a logical camera action ("still", "hello", "vid")
// to an installed binary. Recent Raspberry Pi OS ships the tools as
// rpicam-<action>; older releases as libcamera-<action>. The modern name
// wins when both are installed.
//
// The lookup is a pure PATH probe with no side effects; it is safe to
// call repeatedly and from any goroutine.
func ResolveCommand(action string) (string, error) {
	candidates := []string{"rpicam-" + action, "libcamera-" + action}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			debug.Verbose("Resolved camera action %q -> %s", action, path)
			return path, nil
		}
	}
	return "", &CommandNotFoundError{Action: action, Tried: candidates}
}
