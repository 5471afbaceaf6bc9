package gpio

import (
	"github.com/cjeanneret/LapseGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Driver defines the abstract interface for driving GPIO output lines.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupOutput(pin int) error
	WritePin(pin int, level Level) error
	Close() error
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiDriver()
}

// MockDriver records writes instead of touching hardware.
// Used for development on PC or testing.
type MockDriver struct {
	Writes []MockWrite
}

// MockWrite is one recorded WritePin call.
type MockWrite struct {
	Pin   int
	Level Level
}

func (m *MockDriver) SetupOutput(pin int) error {
	debug.GPIO("SetupOutput", pin, nil)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.Writes = append(m.Writes, MockWrite{Pin: pin, Level: level})
	return nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
