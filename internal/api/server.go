// Package api is the local control surface a native shell drives the
// session through: state snapshots, playback and view commands, and a
// live event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/AaronLay10/SceneReel/internal/backend"
	"github.com/AaronLay10/SceneReel/internal/events"
	"github.com/AaronLay10/SceneReel/internal/orchestrator"
	"github.com/AaronLay10/SceneReel/internal/playback"
	"github.com/AaronLay10/SceneReel/internal/storage/postgres"
	"github.com/AaronLay10/SceneReel/internal/submit"
	"github.com/AaronLay10/SceneReel/internal/view"
)

// Session is the runtime surface the API drives.
type Session interface {
	Progress() orchestrator.Status
	Controller() *playback.Controller
	View() *view.Manager
	Submit(ctx context.Context, src submit.Source, opts orchestrator.SubmitOptions) (submit.Handle, error)
	ReturnHome()
}

var (
	sessionMu sync.RWMutex
	session   Session
)

// SetSession installs the runtime the handlers operate on.
func SetSession(s Session) {
	sessionMu.Lock()
	session = s
	sessionMu.Unlock()
	SetRuntimeReady(s != nil)
}

func currentSession() Session {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	return session
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

// CommandResponse is returned by every command endpoint.
type CommandResponse struct {
	OK       bool               `json:"ok"`
	Error    string             `json:"error,omitempty"`
	Moved    *bool              `json:"moved,omitempty"`
	TaskID   string             `json:"task_id,omitempty"`
	Playback *playback.Snapshot `json:"playback,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, CommandResponse{OK: false, Error: err.Error()})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "scenereel",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.Snapshot())
}

// eventHistoryHandler serves persisted events, optionally for one task.
func eventHistoryHandler(w http.ResponseWriter, r *http.Request) {
	client := events.GetPostgresClient()
	if client == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("event persistence disabled"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = n
	}

	var (
		rows []postgres.EventRow
		err  error
	)
	if task := r.URL.Query().Get("task"); task != "" {
		rows, err = client.QueryTask(task, limit)
	} else {
		rows, err = client.Query(limit)
	}
	if err != nil {
		log.Printf("[api] event history query failed: %v", err)
		writeError(w, http.StatusInternalServerError, errors.New("query failed"))
		return
	}
	if rows == nil {
		rows = []postgres.EventRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// withSession rejects requests until a runtime is installed.
func withSession(fn func(w http.ResponseWriter, r *http.Request, s Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := currentSession()
		if s == nil {
			writeError(w, http.StatusServiceUnavailable, errors.New("runtime not ready"))
			return
		}
		fn(w, r, s)
	}
}

func sessionHandler(w http.ResponseWriter, r *http.Request, s Session) {
	writeJSON(w, http.StatusOK, s.Progress())
}

func snapshotOK(w http.ResponseWriter, s Session) {
	snap := s.Controller().Snapshot()
	writeJSON(w, http.StatusOK, CommandResponse{OK: true, Playback: &snap})
}

func playHandler(w http.ResponseWriter, r *http.Request, s Session) {
	if err := s.Controller().Play(r.Context()); err != nil {
		status := http.StatusConflict
		if errors.Is(err, playback.ErrNotLoaded) {
			status = http.StatusPreconditionFailed
		}
		writeError(w, status, err)
		return
	}
	snapshotOK(w, s)
}

func pauseHandler(w http.ResponseWriter, r *http.Request, s Session) {
	s.Controller().Pause()
	snapshotOK(w, s)
}

func stopHandler(w http.ResponseWriter, r *http.Request, s Session) {
	s.Controller().Stop()
	snapshotOK(w, s)
}

func navigateHandler(delta int) func(http.ResponseWriter, *http.Request, Session) {
	return func(w http.ResponseWriter, r *http.Request, s Session) {
		moved := s.Controller().Navigate(delta)
		snap := s.Controller().Snapshot()
		writeJSON(w, http.StatusOK, CommandResponse{OK: true, Moved: &moved, Playback: &snap})
	}
}

func endedHandler(w http.ResponseWriter, r *http.Request, s Session) {
	s.Controller().OnMediaEnded()
	snapshotOK(w, s)
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

func volumeHandler(w http.ResponseWriter, r *http.Request, s Session) {
	var req volumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON"))
		return
	}
	if req.Volume == nil {
		writeError(w, http.StatusBadRequest, errors.New("volume required"))
		return
	}
	s.Controller().SetVolume(*req.Volume)
	snapshotOK(w, s)
}

func switchViewHandler(mode view.Mode) func(http.ResponseWriter, *http.Request, Session) {
	return func(w http.ResponseWriter, r *http.Request, s Session) {
		if err := s.View().SwitchView(mode); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, CommandResponse{OK: true})
	}
}

func itemsHandler(w http.ResponseWriter, r *http.Request, s Session) {
	writeJSON(w, http.StatusOK, s.View().Items())
}

type openRequest struct {
	Index *int `json:"index"`
}

func openHandler(w http.ResponseWriter, r *http.Request, s Session) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
		writeError(w, http.StatusBadRequest, errors.New("index required"))
		return
	}
	if err := s.View().OpenInSingle(*req.Index); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snapshotOK(w, s)
}

func playAllHandler(w http.ResponseWriter, r *http.Request, s Session) {
	if err := s.View().PlayAll(r.Context()); err != nil {
		status := http.StatusConflict
		if errors.Is(err, view.ErrNoVideo) {
			status = http.StatusPreconditionFailed
		}
		writeError(w, status, err)
		return
	}
	snapshotOK(w, s)
}

// SubmitRequest is the body of /submit.
type SubmitRequest struct {
	Text          string `json:"text"`
	Filename      string `json:"filename,omitempty"`
	EnableVideo   bool   `json:"enable_video"`
	UseStoryboard bool   `json:"use_storyboard"`
	CustomPrompt  string `json:"custom_prompt,omitempty"`
	// AcceptPayment answers the payment prompt ahead of time.
	AcceptPayment bool `json:"accept_payment"`
}

func submitHandler(w http.ResponseWriter, r *http.Request, s Session) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON"))
		return
	}
	src := submit.FromText(req.Text)
	if req.Filename != "" {
		src.Filename = req.Filename
	}

	ctx := WithPaymentApproval(r.Context(), req.AcceptPayment)
	h, err := s.Submit(ctx, src, orchestrator.SubmitOptions{
		EnableVideo:   req.EnableVideo,
		UseStoryboard: req.UseStoryboard,
		CustomPrompt:  req.CustomPrompt,
	})
	if err != nil {
		writeError(w, submitStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, CommandResponse{OK: true, TaskID: h.TaskID})
}

func submitStatus(err error) int {
	var verr *submit.ValidationError
	var aerr *backend.APIError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, submit.ErrCancelled):
		return http.StatusPaymentRequired
	case errors.Is(err, submit.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, backend.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.As(err, &aerr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func homeHandler(w http.ResponseWriter, r *http.Request, s Session) {
	s.ReturnHome()
	writeJSON(w, http.StatusOK, CommandResponse{OK: true})
}

// NewMux builds the route table. Reads need any role, commands need
// operator or admin, and submitting or abandoning a task needs admin.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler)
	mux.HandleFunc("GET /metrics", metricsHandler)

	mux.HandleFunc("GET /events", RequireAnyRole(eventsHandler))
	mux.HandleFunc("GET /events/history", RequireAnyRole(eventHistoryHandler))
	mux.HandleFunc("GET /ws/events", RequireAnyRole(wsEventsHandler))
	mux.HandleFunc("GET /session", RequireAnyRole(withSession(sessionHandler)))

	mux.HandleFunc("POST /playback/play", RequireAnyRole(withSession(playHandler)))
	mux.HandleFunc("POST /playback/pause", RequireAnyRole(withSession(pauseHandler)))
	mux.HandleFunc("POST /playback/stop", RequireAnyRole(withSession(stopHandler)))
	mux.HandleFunc("POST /playback/next", RequireAnyRole(withSession(navigateHandler(1))))
	mux.HandleFunc("POST /playback/prev", RequireAnyRole(withSession(navigateHandler(-1))))
	mux.HandleFunc("POST /playback/volume", RequireAnyRole(withSession(volumeHandler)))
	mux.HandleFunc("POST /playback/ended", RequireAnyRole(withSession(endedHandler)))

	mux.HandleFunc("GET /view/items", RequireAnyRole(withSession(itemsHandler)))
	mux.HandleFunc("POST /view/single", RequireAnyRole(withSession(switchViewHandler(view.Single))))
	mux.HandleFunc("POST /view/list", RequireAnyRole(withSession(switchViewHandler(view.List))))
	mux.HandleFunc("POST /view/open", RequireAnyRole(withSession(openHandler)))
	mux.HandleFunc("POST /view/play-all", RequireAnyRole(withSession(playAllHandler)))

	mux.HandleFunc("POST /submit", RequireAdmin(withSession(submitHandler)))
	mux.HandleFunc("POST /home", RequireAdmin(withSession(homeHandler)))
	return mux
}

// ListenAndServe starts the API server on the given port, with TLS when
// configured. It blocks until the server exits. A broken TLS setup is
// returned before anything listens.
func ListenAndServe(port int) error {
	tlsCfg, err := serverTLSConfig()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if tlsCfg != nil {
		srv.TLSConfig = tlsCfg
		log.Printf("[api] listening on %s (tls)", addr)
		return srv.ListenAndServeTLS("", "")
	}
	log.Printf("[api] listening on %s", addr)
	return srv.ListenAndServe()
}

// Start starts the API server in a goroutine.
// Errors are logged but do not stop the caller.
func Start(port int) {
	go func() {
		if err := ListenAndServe(port); err != nil {
			log.Printf("[api] server error: %v", err)
		}
	}()
}
