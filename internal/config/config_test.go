package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Camera.Type != CameraRpicam {
		t.Errorf("camera type = %q, want rpicam default", cfg.Camera.Type)
	}
	if cfg.Run.IntervalSeconds != 300 || cfg.Run.TotalShots != 144 {
		t.Errorf("run defaults = %+v, want 300s/144 shots", cfg.Run)
	}
	if cfg.Run.Width != 2028 || cfg.Run.Height != 1520 {
		t.Errorf("resolution default = %dx%d, want 2028x1520", cfg.Run.Width, cfg.Run.Height)
	}
	if cfg.Video.FrameRate != 30 || cfg.Video.Quality != 3 {
		t.Errorf("video defaults = %+v, want 30fps/quality 3", cfg.Video)
	}
	if !strings.HasSuffix(cfg.RunsRoot(), filepath.Join("Pictures", "Timelapses")) {
		t.Errorf("runs root = %q, want <home>/Pictures/Timelapses", cfg.RunsRoot())
	}
}

func TestLoad_ParsesYAML(t *testing.T) {
	path := writeConfig(t, `
pictures_root: /data
camera:
  type: rpicam
  hflip: true
  vflip: true
run:
  experiment: petri
  interval_seconds: 60
  total_shots: 12
  width: 1014
  height: 760
  auto_video: true
video:
  frame_rate: 24
  quality: 5
defaults:
  debug_level: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RunsRoot() != filepath.Join("/data", "Timelapses") {
		t.Errorf("runs root = %q", cfg.RunsRoot())
	}
	if !cfg.Camera.HFlip || !cfg.Camera.VFlip {
		t.Error("flips not parsed")
	}
	if cfg.Run.Experiment != "petri" || cfg.Run.IntervalSeconds != 60 {
		t.Errorf("run = %+v", cfg.Run)
	}
	if !cfg.Run.AutoVideo {
		t.Error("auto_video not parsed")
	}
	if cfg.Video.FrameRate != 24 || cfg.Video.Quality != 5 {
		t.Errorf("video = %+v", cfg.Video)
	}
	if cfg.Defaults.DebugLevel != 2 {
		t.Errorf("debug level = %d, want 2", cfg.Defaults.DebugLevel)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad_camera_type", "camera:\n  type: polaroid\n"},
		{"negative_interval", "run:\n  interval_seconds: -5\n"},
		{"negative_total", "run:\n  total_shots: -1\n"},
		{"quality_too_high", "video:\n  quality: 6\n"},
		{"bad_debug_level", "defaults:\n  debug_level: 9\n"},
		{"gpio_without_pins", "camera:\n  type: gpio_remote\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoad_GPIORemoteRejectsAutoVideo(t *testing.T) {
	path := writeConfig(t, `
camera:
  type: gpio_remote
  focus_pin: 17
  shutter_pin: 27
run:
  auto_video: true
`)
	if _, err := Load(path); err == nil {
		t.Error("auto_video with gpio_remote must be rejected")
	}
}

func TestLoad_GPIORemoteValid(t *testing.T) {
	path := writeConfig(t, `
camera:
  type: gpio_remote
  focus_pin: 17
  shutter_pin: 27
  mock_gpio: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FocusDelay().Milliseconds() != 500 {
		t.Errorf("focus delay default = %v, want 500ms", cfg.FocusDelay())
	}
	if cfg.ShutterDelay().Milliseconds() != 200 {
		t.Errorf("shutter delay default = %v, want 200ms", cfg.ShutterDelay())
	}
}
