// Package sched implements the drift-corrected periodic acquisition
// loop: N captures at a fixed interval with bounded-latency cooperative
// cancellation.
package sched

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/run"
)

// State is the scheduler lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	Finished
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// pollSlice bounds one cancellation-check sleep. A cancel request is
// observed within this latency during waits (captures themselves are not
// preemptible).
const pollSlice = 500 * time.Millisecond

// CaptureFunc takes one photo. seq is the 1-based sequence number, dest
// the destination file path. The call blocks for the capture duration; a
// non-nil error marks the shot failed without stopping the run.
type CaptureFunc func(seq int, dest string) error

// Hooks receive scheduler events. All hooks are invoked on the scheduler
// goroutine; nil hooks are ignored.
type Hooks struct {
	Progress func(current, total int)
	Log      func(msg string)
	Done     func(final State)
}

// Scheduler drives one acquisition run on a background goroutine.
// Target instants are computed as start + i*interval from a fixed start
// instant, so capture latency never accumulates into timing drift; a
// shot that overruns the interval makes its successor fire immediately
// instead of being skipped.
type Scheduler struct {
	dir string

	state  atomic.Int32
	cancel atomic.Bool
	done   chan struct{}
	mu     sync.Mutex // guards done across Start/Wait

	// Clock seams for tests. Production uses the real time package;
	// time.Time values carry a monotonic reading, so all scheduling math
	// uses Sub on them, never wall-clock arithmetic.
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates an idle scheduler writing images into dir.
func New(dir string) *Scheduler {
	return &Scheduler{
		dir:   dir,
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Start launches the acquisition loop on a new goroutine. Calling Start
// while a run is in progress is a no-op (concurrent runs are forbidden);
// it returns false in that case and true when the run was started.
func (s *Scheduler) Start(total int, interval time.Duration, capture CaptureFunc, hooks Hooks) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if State(s.state.Load()) == Running {
		debug.Verbose("Start ignored: acquisition already running")
		return false
	}

	s.cancel.Store(false)
	s.state.Store(int32(Running))
	s.done = make(chan struct{})

	go s.loop(total, interval, capture, normalize(hooks))
	return true
}

// Cancel requests the run to stop. Idempotent; has no effect when not
// running. The flag is observed within pollSlice during waits and at the
// next tick boundary during captures.
func (s *Scheduler) Cancel() {
	if State(s.state.Load()) != Running {
		return
	}
	s.cancel.Store(true)
}

// Wait blocks until the current run's goroutine has exited. Returns
// immediately if no run was started.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Scheduler) loop(total int, interval time.Duration, capture CaptureFunc, h Hooks) {
	defer close(s.done)

	start := s.now()
	h.Log(fmt.Sprintf("Start acquisition of %d photos (interval %s)", total, interval))

	final := Finished
	for i := 1; i <= total; i++ {
		target := start.Add(time.Duration(i) * interval)
		if !s.waitUntil(target) {
			h.Log("Acquisition cancelled")
			final = Cancelled
			break
		}

		filename := run.Filename(s.now(), i)
		dest := filepath.Join(s.dir, filename)

		t0 := s.now()
		err := capture(i, dest)
		elapsed := s.now().Sub(t0)

		if err != nil {
			// A failed shot consumes its slot and is never retried; the
			// run continues to the next scheduled shot.
			h.Log(fmt.Sprintf("ERROR  %s  %v", filename, err))
		} else {
			h.Log(fmt.Sprintf("OK  %s  %.2fs", filename, elapsed.Seconds()))
			debug.Shot(i, total, filename)
		}

		h.Progress(i, total)
	}

	if final == Finished {
		h.Log("End of acquisition")
	}
	s.state.Store(int32(final))
	h.Done(final)
}

// waitUntil sleeps in bounded slices until the target instant, checking
// the cancellation flag between slices. Returns false when cancelled. A
// target already in the past returns immediately (an over-length capture
// makes the next shot fire at once).
func (s *Scheduler) waitUntil(target time.Time) bool {
	for {
		if s.cancel.Load() {
			return false
		}
		remaining := target.Sub(s.now())
		if remaining <= 0 {
			return true
		}
		if remaining > pollSlice {
			remaining = pollSlice
		}
		s.sleep(remaining)
	}
}

func normalize(h Hooks) Hooks {
	if h.Progress == nil {
		h.Progress = func(int, int) {}
	}
	if h.Log == nil {
		h.Log = func(string) {}
	}
	if h.Done == nil {
		h.Done = func(State) {}
	}
	return h
}
