package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/LapseGo/internal/config"
	"github.com/cjeanneret/LapseGo/internal/hw/camera"
	"github.com/cjeanneret/LapseGo/internal/session"
)

// stubCamera writes an empty file for each capture.
type stubCamera struct {
	readyErr error
	block    chan struct{} // when set, Capture waits until closed
}

func (c *stubCamera) Ready() error {
	return c.readyErr
}

func (c *stubCamera) Capture(_ context.Context, shot camera.Shot) error {
	if c.block != nil {
		<-c.block
	}
	return os.WriteFile(shot.Dest, []byte{0xff, 0xd8}, 0o644)
}

func newTestHandlers(t *testing.T, cam camera.Camera) *Handlers {
	t.Helper()
	cfg, err := config.Load("does-not-exist.yaml")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	cfg.PicturesRoot = t.TempDir()
	cfg.Run.IntervalSeconds = 1
	cfg.Run.TotalShots = 1

	sess := session.New(cfg, cam, camera.NewPreview(false, false), nullObserver{})
	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	defaults := FormConfig{
		Experiment:      cfg.Run.Experiment,
		IntervalSeconds: cfg.Run.IntervalSeconds,
		TotalShots:      cfg.Run.TotalShots,
		Width:           cfg.Run.Width,
		Height:          cfg.Run.Height,
		AutoVideo:       cfg.Run.AutoVideo,
	}
	return NewHandlers(sess, NewStatusBroadcaster(), defaults, staticFS)
}

type nullObserver struct{}

func (nullObserver) OnLog(string)        {}
func (nullObserver) OnProgress(int, int) {}

func runJSON(t *testing.T, req RunRequest) []byte {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

// ---------- HandleRun ----------

func TestHandleRun_ValidPost(t *testing.T) {
	h := newTestHandlers(t, &stubCamera{})
	body := runJSON(t, RunRequest{Experiment: "web_test", TotalShots: 1})
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusAccepted, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "started" {
		t.Errorf("response status = %q, want \"started\"", resp["status"])
	}

	h.Session.Wait()
}

func TestHandleRun_InvalidJSON(t *testing.T) {
	h := newTestHandlers(t, &stubCamera{})
	req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRun_InvalidParameters(t *testing.T) {
	h := newTestHandlers(t, &stubCamera{})
	body := runJSON(t, RunRequest{IntervalSeconds: -5})
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleRun_CameraUnavailable(t *testing.T) {
	notFound := &camera.CommandNotFoundError{
		Action: "still",
		Tried:  []string{"rpicam-still", "libcamera-still"},
	}
	h := newTestHandlers(t, &stubCamera{readyErr: notFound})
	body := runJSON(t, RunRequest{TotalShots: 1})
	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleRun(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleRun_ConflictWhileRunning(t *testing.T) {
	block := make(chan struct{})
	h := newTestHandlers(t, &stubCamera{block: block})

	body := runJSON(t, RunRequest{TotalShots: 1})
	req1 := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body))
	w1 := httptest.NewRecorder()
	h.HandleRun(w1, req1)
	if w1.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d, want %d: %s", w1.Code, http.StatusAccepted, w1.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(runJSON(t, RunRequest{TotalShots: 1})))
	w2 := httptest.NewRecorder()
	h.HandleRun(w2, req2)

	if w2.Code != http.StatusConflict {
		t.Errorf("concurrent request: status = %d, want %d", w2.Code, http.StatusConflict)
	}

	close(block)
	h.Session.Wait()
}

// ---------- HandleCancel ----------

func TestHandleCancel_IdleIsAccepted(t *testing.T) {
	h := newTestHandlers(t, &stubCamera{})
	req := httptest.NewRequest(http.MethodPost, "/cancel", nil)
	w := httptest.NewRecorder()

	h.HandleCancel(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
}

// ---------- HandleAssemble ----------

func TestHandleAssemble_MissingDir(t *testing.T) {
	h := newTestHandlers(t, &stubCamera{})
	body, _ := json.Marshal(AssembleRequest{Dir: "/no/such/dir"})
	req := httptest.NewRequest(http.MethodPost, "/assemble", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleAssemble(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleAssemble_EmptyDir(t *testing.T) {
	h := newTestHandlers(t, &stubCamera{})
	body, _ := json.Marshal(AssembleRequest{})
	req := httptest.NewRequest(http.MethodPost, "/assemble", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleAssemble(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleAssemble_FailureBroadcast(t *testing.T) {
	h := newTestHandlers(t, &stubCamera{})
	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Existing but empty directory: assembly fails (no frames) and the
	// failure is broadcast.
	body, _ := json.Marshal(AssembleRequest{Dir: t.TempDir()})
	req := httptest.NewRequest(http.MethodPost, "/assemble", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.HandleAssemble(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}

	select {
	case msg := <-ch:
		var evt StatusEvent
		if err := json.Unmarshal([]byte(msg), &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt.Level != "error" {
			t.Errorf("level = %q, want \"error\"", evt.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for assembly result broadcast")
	}
}

// ---------- HandleConfig ----------

func TestHandleConfig(t *testing.T) {
	h := newTestHandlers(t, &stubCamera{})
	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()

	h.HandleConfig(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var fc FormConfig
	if err := json.NewDecoder(w.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.IntervalSeconds != 1 {
		t.Errorf("IntervalSeconds = %d, want 1", fc.IntervalSeconds)
	}
	if fc.TotalShots != 1 {
		t.Errorf("TotalShots = %d, want 1", fc.TotalShots)
	}
}

// ---------- HandleStatus ----------

func TestHandleStatus_Idle(t *testing.T) {
	h := newTestHandlers(t, &stubCamera{})
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	h.HandleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var st map[string]bool
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st["running"] {
		t.Error("running = true, want false for idle session")
	}
	if st["preview"] {
		t.Error("preview = true, want false")
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	h := newTestHandlers(t, &stubCamera{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	h.ServeIndex(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}
