package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Camera backend types.
const (
	CameraRpicam     = "rpicam"      // external rpicam-still / libcamera-still commands
	CameraRemoteGPIO = "gpio_remote" // DSLR remote release on GPIO pins
)

// CameraConfig describes how photos are taken.
// Type selects a concrete implementation ("rpicam" or "gpio_remote").
type CameraConfig struct {
	Type  string `yaml:"type"`
	HFlip bool   `yaml:"hflip"` // mirror horizontally
	VFlip bool   `yaml:"vflip"` // mirror vertically

	// gpio_remote backend only.
	FocusPin       int  `yaml:"focus_pin"`        // GPIO pin for FOCUS line
	ShutterPin     int  `yaml:"shutter_pin"`      // GPIO pin for SHUTTER line
	FocusDelayMs   int  `yaml:"focus_delay_ms"`   // autofocus delay (ms)
	ShutterDelayMs int  `yaml:"shutter_delay_ms"` // shutter hold time (ms)
	MockGPIO       bool `yaml:"mock_gpio"`        // use mock GPIO (true=dev/test)
}

// RunConfig holds default acquisition parameters; the CLI and the web
// form can override them per run.
type RunConfig struct {
	Experiment      string `yaml:"experiment"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	TotalShots      int    `yaml:"total_shots"`
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	AutoVideo       bool   `yaml:"auto_video"` // assemble a video after a completed run
}

// VideoConfig controls video assembly.
type VideoConfig struct {
	FrameRate int `yaml:"frame_rate"` // output frames per second
	Quality   int `yaml:"quality"`    // 1 (low) to 5 (high)
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
}

// Config aggregates all application configuration.
type Config struct {
	PicturesRoot string         `yaml:"pictures_root"` // runs live under <pictures_root>/Timelapses
	Camera       CameraConfig   `yaml:"camera"`
	Run          RunConfig      `yaml:"run"`
	Video        VideoConfig    `yaml:"video"`
	Defaults     DefaultsConfig `yaml:"defaults"`
}

// Load reads a YAML file and returns the validated configuration.
// A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.PicturesRoot == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.PicturesRoot = filepath.Join(home, "Pictures")
		} else {
			cfg.PicturesRoot = "."
		}
	}
	if cfg.Camera.Type == "" {
		cfg.Camera.Type = CameraRpicam
	}
	if cfg.Camera.FocusDelayMs <= 0 {
		cfg.Camera.FocusDelayMs = 500 // 500ms for autofocus
	}
	if cfg.Camera.ShutterDelayMs <= 0 {
		cfg.Camera.ShutterDelayMs = 200 // 200ms shutter hold
	}
	if cfg.Run.Experiment == "" {
		cfg.Run.Experiment = "timelapse"
	}
	if cfg.Run.IntervalSeconds == 0 {
		cfg.Run.IntervalSeconds = 300 // 5 minutes
	}
	if cfg.Run.TotalShots == 0 {
		cfg.Run.TotalShots = 144 // 12 hours at the default interval
	}
	if cfg.Run.Width == 0 && cfg.Run.Height == 0 {
		cfg.Run.Width, cfg.Run.Height = 2028, 1520
	}
	if cfg.Video.FrameRate == 0 {
		cfg.Video.FrameRate = 30
	}
	if cfg.Video.Quality == 0 {
		cfg.Video.Quality = 3
	}
}

// Validate rejects an invalid configuration before anything is created
// on disk or any process is launched.
func (c *Config) Validate() error {
	switch c.Camera.Type {
	case CameraRpicam:
	case CameraRemoteGPIO:
		if c.Camera.FocusPin <= 0 || c.Camera.ShutterPin <= 0 {
			return fmt.Errorf("gpio_remote camera requires focus_pin and shutter_pin")
		}
		if c.Run.AutoVideo {
			// The DSLR stores frames on its own card; there is nothing on
			// the Pi to encode.
			return fmt.Errorf("auto_video is not supported with the gpio_remote camera")
		}
	default:
		return fmt.Errorf("unsupported camera type: %s", c.Camera.Type)
	}

	if c.Run.IntervalSeconds <= 0 {
		return fmt.Errorf("run.interval_seconds must be > 0, got %d", c.Run.IntervalSeconds)
	}
	if c.Run.TotalShots <= 0 {
		return fmt.Errorf("run.total_shots must be > 0, got %d", c.Run.TotalShots)
	}
	if c.Run.Width <= 0 || c.Run.Height <= 0 {
		return fmt.Errorf("run resolution must be positive, got %dx%d", c.Run.Width, c.Run.Height)
	}
	if c.Video.FrameRate <= 0 {
		return fmt.Errorf("video.frame_rate must be > 0, got %d", c.Video.FrameRate)
	}
	if c.Video.Quality < 1 || c.Video.Quality > 5 {
		return fmt.Errorf("video.quality must be 1-5, got %d", c.Video.Quality)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be 0-4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// RunsRoot returns the directory under which run directories are created.
func (c *Config) RunsRoot() string {
	return filepath.Join(c.PicturesRoot, "Timelapses")
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Camera.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Camera.ShutterDelayMs) * time.Millisecond
}
