package camera

import (
	"context"
	"time"

	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/hw/gpio"
)

// RemoteTrigger is a Camera implementation for a DSLR wired to the Pi
// through its remote-release connector:
// - GND: connected to Raspberry Pi ground
// - FOCUS: autofocus (activate by setting to LOW)
// - SHUTTER: trigger (activate by setting to LOW)
//
// Trigger sequence:
// 1. FOCUS to LOW (activates autofocus)
// 2. Wait for autofocus to complete
// 3. SHUTTER to LOW (triggers the shot)
// 4. Hold for a moment
// 5. Set SHUTTER and FOCUS back to HIGH
//
// The image lands on the camera's own storage card; the Shot destination
// path is ignored, so runs using this backend cannot be assembled into a
// video on the Pi.
type RemoteTrigger struct {
	gpio         gpio.Driver
	focusPin     int
	shutterPin   int
	focusDelay   time.Duration // time for autofocus
	shutterDelay time.Duration // shutter hold time
}

// NewRemoteTrigger creates a GPIO-driven remote release.
// focusPin and shutterPin are BCM pin numbers for the FOCUS and SHUTTER
// lines; focusDelay is the autofocus wait, shutterDelay the hold time.
func NewRemoteTrigger(g gpio.Driver, focusPin, shutterPin int, focusDelay, shutterDelay time.Duration) *RemoteTrigger {
	_ = g.SetupOutput(focusPin)
	_ = g.SetupOutput(shutterPin)

	// Lines idle HIGH (inactive).
	_ = g.WritePin(focusPin, gpio.High)
	_ = g.WritePin(shutterPin, gpio.High)

	return &RemoteTrigger{
		gpio:         g,
		focusPin:     focusPin,
		shutterPin:   shutterPin,
		focusDelay:   focusDelay,
		shutterDelay: shutterDelay,
	}
}

// Ready always succeeds: the pins were configured at construction time.
func (r *RemoteTrigger) Ready() error { return nil }

// Capture triggers one shot.
// Sequence: FOCUS -> wait for AF -> SHUTTER -> hold -> release.
func (r *RemoteTrigger) Capture(ctx context.Context, shot Shot) error {
	debug.Printf("RemoteTrigger: shot %d (focus=%d, shutter=%d)", shot.Seq, r.focusPin, r.shutterPin)

	if err := r.gpio.WritePin(r.focusPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(r.focusDelay)

	if err := r.gpio.WritePin(r.shutterPin, gpio.Low); err != nil {
		// Release FOCUS on error
		_ = r.gpio.WritePin(r.focusPin, gpio.High)
		return err
	}
	time.Sleep(r.shutterDelay)

	if err := r.gpio.WritePin(r.shutterPin, gpio.High); err != nil {
		return err
	}
	if err := r.gpio.WritePin(r.focusPin, gpio.High); err != nil {
		return err
	}

	debug.Verbose("RemoteTrigger: shot %d released", shot.Seq)
	return nil
}
