package web

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/cjeanneret/LapseGo/internal/debug"
	"github.com/cjeanneret/LapseGo/internal/hw/camera"
	"github.com/cjeanneret/LapseGo/internal/session"
)

// RunRequest holds per-run parameters posted by the form. Zero-valued
// fields fall back to the configured defaults.
type RunRequest struct {
	Experiment      string `json:"experiment"`
	IntervalSeconds int    `json:"interval_seconds"`
	TotalShots      int    `json:"total_shots"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	AutoVideo       *bool  `json:"auto_video"`
}

// AssembleRequest asks for a manual video assembly of a run directory.
type AssembleRequest struct {
	Dir       string `json:"dir"`
	FrameRate int    `json:"frame_rate"` // 0 = configured default
	Output    string `json:"output"`     // empty = default name
}

// FormConfig holds default values for the run form (from config).
type FormConfig struct {
	Experiment      string `json:"experiment"`
	IntervalSeconds int    `json:"interval_seconds"`
	TotalShots      int    `json:"total_shots"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	AutoVideo       bool   `json:"auto_video"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Session      *session.Session
	Broadcaster  *StatusBroadcaster
	FormDefaults FormConfig
	staticFS     fs.FS
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(sess *session.Session, broadcaster *StatusBroadcaster, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Session:      sess,
		Broadcaster:  broadcaster,
		FormDefaults: formDefaults,
		staticFS:     staticFS,
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// HandleStatus returns the current session state as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{
		"running": h.Session.Running(),
		"preview": h.Session.PreviewRunning(),
	})
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleRun handles POST /run to start an acquisition run.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	rc := h.Session.DefaultRunConfig()
	if req.Experiment != "" {
		rc.Experiment = req.Experiment
	}
	if req.IntervalSeconds != 0 {
		rc.IntervalSeconds = req.IntervalSeconds
	}
	if req.TotalShots != 0 {
		rc.TotalShots = req.TotalShots
	}
	if req.Width != 0 {
		rc.Width = req.Width
	}
	if req.Height != 0 {
		rc.Height = req.Height
	}
	if req.AutoVideo != nil {
		rc.AutoVideo = *req.AutoVideo
	}

	err := h.Session.StartRun(context.Background(), rc)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrRunInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case isCommandNotFound(err):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}

// HandleCancel handles POST /cancel to stop the active run.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.Session.CancelRun()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "cancel requested"})
}

// HandlePreviewStart handles POST /preview/start.
func (h *Handlers) HandlePreviewStart(w http.ResponseWriter, r *http.Request) {
	err := h.Session.StartPreview()
	switch {
	case err == nil:
	case errors.Is(err, session.ErrRunInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case isCommandNotFound(err):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Broadcaster.Broadcast("info", "Preview started")
	w.WriteHeader(http.StatusOK)
}

// HandlePreviewStop handles POST /preview/stop.
func (h *Handlers) HandlePreviewStop(w http.ResponseWriter, r *http.Request) {
	h.Session.StopPreview()
	h.Broadcaster.Broadcast("info", "Preview stopped")
	w.WriteHeader(http.StatusOK)
}

// HandleAssemble handles POST /assemble for manual video assembly of a
// completed run directory. The encode runs in the background; its
// outcome is broadcast.
func (h *Handlers) HandleAssemble(w http.ResponseWriter, r *http.Request) {
	var req AssembleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Dir == "" {
		http.Error(w, "dir is required", http.StatusBadRequest)
		return
	}
	if info, err := os.Stat(req.Dir); err != nil || !info.IsDir() {
		http.Error(w, "dir does not exist", http.StatusBadRequest)
		return
	}

	go func() {
		path, err := h.Session.Assemble(context.Background(), req.Dir, req.FrameRate, req.Output)
		if err != nil {
			h.Broadcaster.Broadcast("error", "Video assembly failed: "+err.Error())
			debug.Error(err)
			return
		}
		h.Broadcaster.Broadcast("info", "Video written: "+path)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "assembling"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func isCommandNotFound(err error) bool {
	var notFound *camera.CommandNotFoundError
	return errors.As(err, &notFound)
}
