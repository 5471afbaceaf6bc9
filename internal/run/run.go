// Package run manages the on-disk artifacts of one acquisition run: the
// output directory, the immutable settings record, and the append-only
// run log.
package run

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/LapseGo/internal/debug"
)

const (
	// defaultName replaces an empty experiment name.
	defaultName = "experiment"
	// maxNameLen bounds the sanitized name so the full directory path
	// stays well under filesystem limits.
	maxNameLen = 80

	settingsFile = "settings.json"
	logFile      = "run.log"

	dirStampLayout = "20060102_150405"
	humanLayout    = "2006-01-02 15:04:05"
)

// Config describes one acquisition run. Immutable once the run starts.
type Config struct {
	Experiment      string
	IntervalSeconds int
	TotalShots      int
	Width           int
	Height          int
	AutoVideo       bool
	Root            string // runs root, e.g. ~/Pictures/Timelapses
}

// Validate rejects invalid run parameters before anything is created on
// disk.
func (c Config) Validate() error {
	if c.IntervalSeconds <= 0 {
		return fmt.Errorf("interval must be > 0 seconds, got %d", c.IntervalSeconds)
	}
	if c.TotalShots <= 0 {
		return fmt.Errorf("total shots must be > 0, got %d", c.TotalShots)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("resolution must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Root == "" {
		return fmt.Errorf("runs root directory is required")
	}
	return nil
}

// Interval returns the capture interval as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Record is the settings document persisted once at run start. It is an
// audit artifact: written once, never mutated.
type Record struct {
	RunID           string     `json:"run_id"`
	Experiment      string     `json:"experiment"`
	CreatedAt       string     `json:"created_at"`
	IntervalSeconds int        `json:"interval_seconds"`
	Resolution      Resolution `json:"resolution"`
	TotalPhotos     int        `json:"total_photos"`
	Folder          string     `json:"folder"`
	AutoVideo       bool       `json:"auto_video"`
}

// Resolution is the frame size recorded in the settings document.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SanitizeExperimentName makes an operator-supplied name safe for use in
// a directory name: reserved filesystem characters become underscores,
// internal whitespace collapses to single underscores, an empty name
// falls back to a placeholder, and the result is truncated to 80
// characters.
func SanitizeExperimentName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultName
	}
	for _, ch := range `<>:"/\|?*` {
		name = strings.ReplaceAll(name, string(ch), "_")
	}
	name = strings.Join(strings.Fields(name), "_")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

// dirName composes the run directory name. The timestamp has one-second
// resolution: two runs started within the same second under the same
// name collide. Known limitation, kept from the recorded behavior.
func dirName(sanitized string, t time.Time) string {
	return sanitized + "_" + t.Format(dirStampLayout)
}

// Filename names the image for one shot. The zero-padded sequence number
// keeps lexicographic order chronological, which the video assembler
// relies on.
func Filename(t time.Time, seq int) string {
	return fmt.Sprintf("%s_%05d.jpg", t.Format(dirStampLayout), seq)
}

// Handle exposes a prepared run directory and its run-scoped log sink.
// Only the scheduler goroutine writes through a Handle, so no locking is
// needed beyond serializing the log writes themselves.
type Handle struct {
	dir    string
	record Record

	mu  sync.Mutex
	log *os.File
}

// Prepare creates the run directory, writes the settings record, and
// opens the run log. Creating an already-existing directory is not an
// error.
func Prepare(cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	sanitized := SanitizeExperimentName(cfg.Experiment)
	dir := filepath.Join(cfg.Root, dirName(sanitized, now))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}

	record := Record{
		RunID:           uuid.NewString(),
		Experiment:      sanitized,
		CreatedAt:       now.Format(humanLayout),
		IntervalSeconds: cfg.IntervalSeconds,
		Resolution:      Resolution{Width: cfg.Width, Height: cfg.Height},
		TotalPhotos:     cfg.TotalShots,
		Folder:          dir,
		AutoVideo:       cfg.AutoVideo,
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, settingsFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("write settings: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, logFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	debug.Info("Prepared run directory %s (run id %s)", dir, record.RunID)
	return &Handle{dir: dir, record: record, log: f}, nil
}

// Dir returns the run directory path.
func (h *Handle) Dir() string {
	return h.dir
}

// Record returns the persisted settings record.
func (h *Handle) Record() Record {
	return h.record
}

// Logf appends one timestamped line to the run log.
func (h *Handle) Logf(format string, args ...interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.log == nil {
		return
	}
	line := fmt.Sprintf("%s  %s\n", time.Now().Format(humanLayout), fmt.Sprintf(format, args...))
	if _, err := h.log.WriteString(line); err != nil {
		debug.Error(fmt.Errorf("run log write: %w", err))
	}
}

// Close flushes and closes the run log. Safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.log == nil {
		return nil
	}
	err := h.log.Close()
	h.log = nil
	return err
}
