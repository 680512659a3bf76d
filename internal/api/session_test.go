package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AaronLay10/SceneReel/internal/backend"
	"github.com/AaronLay10/SceneReel/internal/events"
	"github.com/AaronLay10/SceneReel/internal/media"
	"github.com/AaronLay10/SceneReel/internal/orchestrator"
	"github.com/AaronLay10/SceneReel/internal/playback"
	"github.com/AaronLay10/SceneReel/internal/scene"
	"github.com/AaronLay10/SceneReel/internal/submit"
	"github.com/AaronLay10/SceneReel/internal/view"
)

var backendCheck = backend.PaymentCheck{RequiresPayment: true, PaymentAmount: 1.5}

type fakeSession struct {
	ctrl      *playback.Controller
	view      *view.Manager
	submitted []submit.Source
	approved  bool
	homes     int
	submitErr error
}

func newFakeSession(t *testing.T) *fakeSession {
	t.Helper()
	ctrl := playback.NewController(playback.Options{
		Players:  media.Players{Audio: media.NewClockPlayer(time.Hour), Video: media.NewClockPlayer(time.Hour)},
		Debounce: time.Millisecond,
	})
	t.Cleanup(ctrl.Close)
	scenes := []scene.Scene{
		{Text: "a", ImageURL: "a.png", AudioURL: "a.mp3"},
		{Text: "b", VideoURL: "b.mp4"},
	}
	if err := ctrl.Load(scenes, 0); err != nil {
		t.Fatalf("failed to load scenes: %v", err)
	}
	return &fakeSession{ctrl: ctrl, view: view.NewManager(ctrl)}
}

func (f *fakeSession) Progress() orchestrator.Status {
	return orchestrator.Status{Screen: orchestrator.ScreenPlayer, Playback: f.ctrl.Snapshot(), View: f.view.Mode()}
}
func (f *fakeSession) Controller() *playback.Controller { return f.ctrl }
func (f *fakeSession) View() *view.Manager              { return f.view }
func (f *fakeSession) ReturnHome()                      { f.homes++ }

func (f *fakeSession) Submit(ctx context.Context, src submit.Source, _ orchestrator.SubmitOptions) (submit.Handle, error) {
	if f.submitErr != nil {
		return submit.Handle{}, f.submitErr
	}
	f.submitted = append(f.submitted, src)
	f.approved, _ = PaymentPrompter().Confirm(ctx, backendCheck, 0)
	return submit.Handle{TaskID: "task-42"}, nil
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeCommand(t *testing.T, w *httptest.ResponseRecorder) CommandResponse {
	t.Helper()
	var resp CommandResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestSessionEndpointsRequireRuntime(t *testing.T) {
	resetAuth()
	SetSession(nil)
	mux := NewMux()

	w := do(t, mux, "GET", "/session", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without runtime, got %d", w.Code)
	}
}

func TestPlaybackEndpoints(t *testing.T) {
	resetAuth()
	s := newFakeSession(t)
	SetSession(s)
	defer SetSession(nil)
	mux := NewMux()

	w := do(t, mux, "POST", "/playback/play", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeCommand(t, w); resp.Playback.PlayState != playback.Playing {
		t.Errorf("expected playing, got %s", resp.Playback.PlayState)
	}

	w = do(t, mux, "POST", "/playback/next", "")
	resp := decodeCommand(t, w)
	if resp.Moved == nil || !*resp.Moved || resp.Playback.CurrentIndex != 1 || resp.Playback.PlayState != playback.Stopped {
		t.Errorf("unexpected navigate result: %+v", resp)
	}

	w = do(t, mux, "POST", "/playback/next", "")
	if resp := decodeCommand(t, w); resp.Moved == nil || *resp.Moved {
		t.Errorf("navigate past the end should not move: %+v", resp)
	}

	w = do(t, mux, "POST", "/playback/volume", `{"volume": 30}`)
	if resp := decodeCommand(t, w); resp.Playback.Volume != 0.3 {
		t.Errorf("expected volume 0.3, got %v", resp.Playback.Volume)
	}

	w = do(t, mux, "POST", "/playback/volume", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without volume, got %d", w.Code)
	}

	w = do(t, mux, "GET", "/playback/play", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", w.Code)
	}
}

func TestViewEndpoints(t *testing.T) {
	resetAuth()
	s := newFakeSession(t)
	SetSession(s)
	defer SetSession(nil)
	mux := NewMux()

	if w := do(t, mux, "POST", "/view/list", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if s.view.Mode() != view.List {
		t.Errorf("expected list view, got %s", s.view.Mode())
	}

	w := do(t, mux, "GET", "/view/items", "")
	var items []view.Item
	if err := json.NewDecoder(w.Body).Decode(&items); err != nil {
		t.Fatalf("failed to decode items: %v", err)
	}
	if len(items) != 1 || items[0].Index != 1 {
		t.Errorf("expected only the video scene, got %+v", items)
	}

	if w := do(t, mux, "POST", "/view/open", `{"index": 0}`); w.Code != http.StatusBadRequest {
		t.Errorf("opening an image scene should fail, got %d", w.Code)
	}

	w = do(t, mux, "POST", "/view/open", `{"index": 1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if s.view.Mode() != view.Single || s.ctrl.Snapshot().CurrentIndex != 1 {
		t.Errorf("expected single view on scene 1, got %s %d", s.view.Mode(), s.ctrl.Snapshot().CurrentIndex)
	}

	w = do(t, mux, "POST", "/view/play-all", "")
	if resp := decodeCommand(t, w); resp.Playback.PlayState != playback.Playing || resp.Playback.CurrentIndex != 1 {
		t.Errorf("unexpected play-all result: %+v", resp.Playback)
	}
}

func TestSubmitEndpoint(t *testing.T) {
	resetAuth()
	s := newFakeSession(t)
	SetSession(s)
	defer SetSession(nil)
	mux := NewMux()

	w := do(t, mux, "POST", "/submit", `{"text":"a story","filename":"ch1.txt","accept_payment":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decodeCommand(t, w); resp.TaskID != "task-42" {
		t.Errorf("expected task-42, got %q", resp.TaskID)
	}
	if len(s.submitted) != 1 || s.submitted[0].Filename != "ch1.txt" || string(s.submitted[0].Data) != "a story" {
		t.Errorf("unexpected submission %+v", s.submitted)
	}
	if !s.approved {
		t.Error("payment approval should reach the prompter")
	}

	s.submitErr = &submit.ValidationError{Err: submit.ErrEmptyContent}
	if w := do(t, mux, "POST", "/submit", `{"text":""}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for validation error, got %d", w.Code)
	}
	s.submitErr = submit.ErrCancelled
	if w := do(t, mux, "POST", "/submit", `{"text":"x"}`); w.Code != http.StatusPaymentRequired {
		t.Errorf("expected 402 for declined payment, got %d", w.Code)
	}

	if w := do(t, mux, "POST", "/home", ""); w.Code != http.StatusOK || s.homes != 1 {
		t.Errorf("expected home to run once, got %d %d", w.Code, s.homes)
	}
}

func TestSubmitRequiresAdmin(t *testing.T) {
	enableTestAuth()
	defer resetAuth()
	s := newFakeSession(t)
	SetSession(s)
	defer SetSession(nil)
	mux := NewMux()

	req := httptest.NewRequest("POST", "/submit", bytes.NewBufferString(`{"text":"x"}`))
	req.SetBasicAuth("operator", "opsecret")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for operator, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/playback/pause", nil)
	req.SetBasicAuth("operator", "opsecret")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected operator to control playback, got %d", w.Code)
	}
}

func TestMetricsIncludeSession(t *testing.T) {
	resetAuth()
	InitMetrics()
	s := newFakeSession(t)
	SetSession(s)
	defer SetSession(nil)

	w := do(t, NewMux(), "GET", "/metrics", "")
	body := w.Body.String()
	for _, name := range []string{"scenereel_uptime_seconds", "scenereel_runtime_ready", "scenereel_scenes_loaded", "scenereel_tasks_failed_total"} {
		if !bytes.Contains([]byte(body), []byte(name)) {
			t.Errorf("metrics missing %s", name)
		}
	}
}

func TestEventHistoryRequiresPersistence(t *testing.T) {
	resetAuth()
	events.SetPostgresClient(nil)
	mux := NewMux()

	w := do(t, mux, "GET", "/events/history?task=task-1", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without postgres, got %d", w.Code)
	}
}
