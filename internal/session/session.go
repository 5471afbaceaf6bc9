// Package session owns the run lifecycle for one application instance:
// the camera backend, the preview process, the active scheduler, and the
// reporter are fields of a single Session value passed explicitly, never
// package-level state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/LapseGo/internal/config"
	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/hw/camera"
	"github.com/cjeanneret/LapseGo/internal/report"
	"github.com/cjeanneret/LapseGo/internal/run"
	"github.com/cjeanneret/LapseGo/internal/sched"
	"github.com/cjeanneret/LapseGo/internal/video"
)

// ErrRunInProgress is returned when a run is requested while another is
// active. At most one acquisition runs per session.
var ErrRunInProgress = errors.New("acquisition already in progress")

// Session coordinates runs, preview, and video assembly over one camera
// device.
type Session struct {
	cfg       *config.Config
	cam       camera.Camera
	preview   *camera.Preview
	assembler *video.Assembler
	observer  report.Observer

	mu     sync.Mutex
	active *activeRun
}

type activeRun struct {
	cfg       run.Config
	handle    *run.Handle
	scheduler *sched.Scheduler
	reporter  *report.Reporter
	done      chan struct{}
}

// New creates a session. obs receives all run events (log lines and
// progress ticks) on a dedicated delivery goroutine.
func New(cfg *config.Config, cam camera.Camera, preview *camera.Preview, obs report.Observer) *Session {
	return &Session{
		cfg:       cfg,
		cam:       cam,
		preview:   preview,
		assembler: video.NewAssembler(cfg.Video.Quality),
		observer:  obs,
	}
}

// DefaultRunConfig builds a run configuration from the loaded defaults.
func (s *Session) DefaultRunConfig() run.Config {
	return run.Config{
		Experiment:      s.cfg.Run.Experiment,
		IntervalSeconds: s.cfg.Run.IntervalSeconds,
		TotalShots:      s.cfg.Run.TotalShots,
		Width:           s.cfg.Run.Width,
		Height:          s.cfg.Run.Height,
		AutoVideo:       s.cfg.Run.AutoVideo,
		Root:            s.cfg.RunsRoot(),
	}
}

// StartRun validates the configuration, prepares the run directory,
// stops the preview (acquisition and preview share the camera device),
// and launches the scheduler. Returns without blocking; use Wait for the
// CLI path.
func (s *Session) StartRun(ctx context.Context, rc run.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return ErrRunInProgress
	}

	// Validation and camera readiness come first: nothing is created on
	// disk when either fails.
	if err := rc.Validate(); err != nil {
		return err
	}
	if err := s.cam.Ready(); err != nil {
		return err
	}

	handle, err := run.Prepare(rc)
	if err != nil {
		return err
	}

	s.preview.Stop()

	ar := &activeRun{
		cfg:       rc,
		handle:    handle,
		scheduler: sched.New(handle.Dir()),
		reporter:  report.New(s.observer),
		done:      make(chan struct{}),
	}

	captureFn := func(seq int, dest string) error {
		return s.cam.Capture(ctx, camera.Shot{
			Seq:    seq,
			Dest:   dest,
			Width:  rc.Width,
			Height: rc.Height,
		})
	}
	hooks := sched.Hooks{
		Log: func(msg string) {
			ar.handle.Logf("%s", msg)
			ar.reporter.Log(msg)
		},
		Progress: ar.reporter.Progress,
		Done: func(final sched.State) {
			s.finishRun(ctx, ar, final)
		},
	}

	debug.Run(rc.TotalShots, rc.IntervalSeconds, handle.Dir())
	ar.scheduler.Start(rc.TotalShots, rc.Interval(), captureFn, hooks)
	s.active = ar
	return nil
}

// finishRun runs on the scheduler goroutine after the loop exits.
func (s *Session) finishRun(ctx context.Context, ar *activeRun, final sched.State) {
	if final == sched.Finished && ar.cfg.AutoVideo {
		ar.reporter.Log("Assembling timelapse video...")
		path, err := s.assembler.Assemble(ctx, ar.handle.Dir(), s.cfg.Video.FrameRate, "")
		if err != nil {
			// Fatal to the assembly step only; the captured images stay.
			ar.handle.Logf("video assembly failed: %v", err)
			ar.reporter.Log(fmt.Sprintf("Video assembly failed: %v", err))
			debug.Error(err)
		} else {
			ar.handle.Logf("video written: %s", path)
			ar.reporter.Log("Video written: " + path)
		}
	}

	if err := ar.handle.Close(); err != nil {
		debug.Error(fmt.Errorf("close run log: %w", err))
	}
	ar.reporter.Close()

	s.mu.Lock()
	if s.active == ar {
		s.active = nil
	}
	s.mu.Unlock()
	close(ar.done)
}

// CancelRun requests the active run to stop. Idempotent; no effect when
// nothing is running.
func (s *Session) CancelRun() {
	s.mu.Lock()
	ar := s.active
	s.mu.Unlock()
	if ar != nil {
		ar.scheduler.Cancel()
	}
}

// Running reports whether an acquisition run is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Wait blocks until the active run (if any) has fully finished,
// including auto-assembly and event delivery.
func (s *Session) Wait() {
	s.mu.Lock()
	ar := s.active
	s.mu.Unlock()
	if ar != nil {
		<-ar.done
	}
}

// StartPreview launches the camera preview. Refused while a run is
// active: preview and acquisition share the physical camera.
func (s *Session) StartPreview() error {
	s.mu.Lock()
	busy := s.active != nil
	s.mu.Unlock()
	if busy {
		return ErrRunInProgress
	}
	return s.preview.Start()
}

// StopPreview tears down the preview process, if any.
func (s *Session) StopPreview() {
	s.preview.Stop()
}

// PreviewRunning reports whether the preview process is alive.
func (s *Session) PreviewRunning() bool {
	return s.preview.Running()
}

// Assemble encodes a previously completed run directory into a video,
// independent of any acquisition state.
func (s *Session) Assemble(ctx context.Context, dir string, frameRate int, outputName string) (string, error) {
	if frameRate <= 0 {
		frameRate = s.cfg.Video.FrameRate
	}
	return s.assembler.Assemble(ctx, dir, frameRate, outputName)
}
