// Package orchestrator wires the submission gate, the status poller and
// the playback controller into one client session.
package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/AaronLay10/SceneReel/internal/backend"
	"github.com/AaronLay10/SceneReel/internal/config"
	"github.com/AaronLay10/SceneReel/internal/events"
	"github.com/AaronLay10/SceneReel/internal/media"
	"github.com/AaronLay10/SceneReel/internal/playback"
	"github.com/AaronLay10/SceneReel/internal/poller"
	"github.com/AaronLay10/SceneReel/internal/scene"
	"github.com/AaronLay10/SceneReel/internal/submit"
	"github.com/AaronLay10/SceneReel/internal/view"
)

// ErrNoTask is returned by operations that need a current task.
var ErrNoTask = errors.New("no current task")

// Backend is everything the runtime calls on the backend.
type Backend interface {
	submit.Backend
	poller.Fetcher
	History(ctx context.Context) ([]backend.HistoryEntry, error)
	CurrentUser(ctx context.Context) (*backend.User, error)
	Logout(ctx context.Context) error
	DownloadResult(ctx context.Context, taskID string, w io.Writer) (int64, error)
}

// Options configures a Runtime.
type Options struct {
	Backend     Backend
	Prompter    submit.Prompter
	Players     media.Players
	Config      *config.ClientConfig
	Preferences *config.Preferences
	Hints       *config.SessionHints
	// OnTaskFailed is told about terminal task failures and exhausted polling.
	OnTaskFailed func(taskID string, err error)
}

// SubmitOptions are the per-submission generation flags.
type SubmitOptions struct {
	EnableVideo   bool
	UseStoryboard bool
	CustomPrompt  string
}

// Runtime owns one client session. Every late poll result or history
// load is checked against epoch, which ReturnHome advances.
type Runtime struct {
	backend Backend
	cfg     *config.ClientConfig
	prefs   *config.Preferences
	hints   *config.SessionHints
	gate    *submit.Gate
	ctrl    *playback.Controller
	view    *view.Manager

	onTaskFailed func(string, error)
	sessionID    string

	mu        sync.Mutex
	epoch     uint64
	poller    *poller.Poller
	taskID    string
	screen    Screen
	progress  backend.TaskStatus
	lastError string
}

// NewRuntime creates a runtime on the upload screen.
func NewRuntime(opts Options) *Runtime {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	hints := opts.Hints
	if hints == nil {
		hints = &config.SessionHints{}
	}

	r := &Runtime{
		backend:      opts.Backend,
		cfg:          cfg,
		prefs:        opts.Preferences,
		hints:        hints,
		onTaskFailed: opts.OnTaskFailed,
		sessionID:    uuid.NewString(),
		screen:       ScreenUpload,
	}
	r.gate = submit.NewGate(opts.Backend, opts.Prompter, r)
	r.ctrl = playback.NewController(playback.Options{
		Players:  opts.Players,
		Debounce: cfg.AutoAdvanceDebounce(),
	})
	r.ctrl.SetVolume(float64(cfg.Playback.InitialVolume))
	r.view = view.NewManager(r.ctrl)
	return r
}

// Controller returns the playback controller of this session.
func (r *Runtime) Controller() *playback.Controller { return r.ctrl }

// View returns the view manager of this session.
func (r *Runtime) View() *view.Manager { return r.view }

// Gate returns the submission gate.
func (r *Runtime) Gate() *submit.Gate { return r.gate }

// ToSettings implements submit.Navigator.
func (r *Runtime) ToSettings() {
	r.mu.Lock()
	r.screen = ScreenSettings
	r.mu.Unlock()
}

// ToLogin implements submit.Navigator.
func (r *Runtime) ToLogin() {
	r.mu.Lock()
	r.screen = ScreenLogin
	r.mu.Unlock()
}

// SelectFile remembers the chosen filename for a round-trip to settings.
func (r *Runtime) SelectFile(name string) {
	r.hints.SetSelectedFilename(name)
}

// Restore is called when the upload screen is shown again. It returns
// the remembered filename only when coming back from settings.
func (r *Runtime) Restore(cause config.RestoreCause) (string, bool) {
	r.mu.Lock()
	if r.screen == ScreenSettings {
		r.screen = ScreenUpload
	}
	r.mu.Unlock()
	return r.hints.Restore(cause)
}

// Submit runs the gate and, on success, discards any previous task or
// scene list and starts polling the new task.
func (r *Runtime) Submit(ctx context.Context, src submit.Source, so SubmitOptions) (submit.Handle, error) {
	cfg := submit.Config{
		EnableVideo:   so.EnableVideo,
		UseStoryboard: so.UseStoryboard,
		CustomPrompt:  so.CustomPrompt,
	}
	if r.prefs != nil {
		var err error
		if cfg.Provider, err = r.prefs.Provider(); err != nil {
			return submit.Handle{}, err
		}
		if cfg.Credential, err = r.prefs.Credential(); err != nil {
			return submit.Handle{}, err
		}
	}

	h, err := r.gate.Submit(ctx, src, cfg)
	if err != nil {
		r.mu.Lock()
		if !errors.Is(err, submit.ErrCancelled) {
			r.lastError = err.Error()
		}
		r.mu.Unlock()
		return submit.Handle{}, err
	}

	r.discard()

	r.mu.Lock()
	r.epoch++
	epoch := r.epoch
	r.taskID = h.TaskID
	r.screen = ScreenProgress
	r.progress = backend.TaskStatus{State: backend.TaskQueued}
	r.lastError = ""
	p := r.newPoller(epoch)
	r.poller = p
	r.mu.Unlock()

	if err := p.Start(context.Background(), h.TaskID); err != nil {
		return h, err
	}
	return h, nil
}

// discard drops the current task, scenes and poller without touching
// the screen.
func (r *Runtime) discard() {
	r.mu.Lock()
	r.epoch++
	p := r.poller
	r.poller = nil
	r.taskID = ""
	r.progress = backend.TaskStatus{}
	r.ctrl.Reset()
	r.mu.Unlock()

	if p != nil {
		p.Stop()
	}
}

func (r *Runtime) newPoller(epoch uint64) *poller.Poller {
	opts := poller.Options{
		Interval:               r.cfg.PollInterval(),
		MaxConsecutiveFailures: r.cfg.Polling.MaxConsecutiveFailures,
		BackoffMultiplier:      r.cfg.Polling.BackoffMultiplier,
		MaxDelay:               r.cfg.PollMaxDelay(),
	}
	return poller.New(r.backend, opts, poller.Handlers{
		OnProgress: func(taskID string, st backend.TaskStatus) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.epoch != epoch {
				return
			}
			r.progress = st
		},
		OnCompleted: func(taskID string, list *scene.List) {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.epoch != epoch {
				log.Printf("[runtime] dropping scenes of stale task %s", taskID)
				return
			}
			if err := r.ctrl.Load(list.Scenes, 0); err != nil {
				r.lastError = err.Error()
				r.screen = ScreenUpload
				return
			}
			r.screen = ScreenPlayer
			r.gate.Reset()
		},
		OnFailed: func(taskID string, err error) {
			r.mu.Lock()
			if r.epoch != epoch {
				r.mu.Unlock()
				return
			}
			r.lastError = err.Error()
			if errors.Is(err, backend.ErrUnauthenticated) {
				r.screen = ScreenLogin
			} else {
				r.screen = ScreenUpload
			}
			r.mu.Unlock()

			r.gate.Reset()
			if errors.Is(err, backend.ErrUnauthenticated) {
				events.Emit("warn", "session.unauthorized", err.Error(), map[string]interface{}{"task_id": taskID})
			}
			if r.onTaskFailed != nil {
				r.onTaskFailed(taskID, err)
			}
		},
	})
}

// ReturnHome abandons the current task: polling is cancelled, playback
// and any pending auto-advance are stopped, and the task id and scenes
// are cleared. Results that arrive afterwards are ignored.
func (r *Runtime) ReturnHome() {
	r.mu.Lock()
	r.epoch++
	p := r.poller
	r.poller = nil
	taskID := r.taskID
	r.taskID = ""
	r.progress = backend.TaskStatus{}
	r.lastError = ""
	r.screen = ScreenUpload
	r.ctrl.Reset()
	r.mu.Unlock()

	if p != nil {
		p.Stop()
	}
	r.gate.Reset()
	r.hints.Clear()
	_ = r.view.SwitchView(view.Single)
	events.Emit("info", "session.home", "", map[string]interface{}{"task_id": taskID})
}

// OpenHistory lists past uploads and shows the history screen.
func (r *Runtime) OpenHistory(ctx context.Context) ([]backend.HistoryEntry, error) {
	entries, err := r.backend.History(ctx)
	if err != nil {
		r.authFailure(err)
		return nil, err
	}
	r.mu.Lock()
	r.screen = ScreenHistory
	r.mu.Unlock()
	events.Emit("info", "session.history", "", map[string]interface{}{"entries": len(entries)})
	return entries, nil
}

// PlayFromHistory loads the scenes of a past session into the player.
func (r *Runtime) PlayFromHistory(ctx context.Context, sessionID string) error {
	r.discard()

	r.mu.Lock()
	epoch := r.epoch
	r.mu.Unlock()

	list, err := r.backend.Scenes(ctx, sessionID)
	if err != nil {
		r.authFailure(err)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch {
		return context.Canceled
	}
	if err := r.ctrl.Load(list.Scenes, 0); err != nil {
		return err
	}
	r.taskID = sessionID
	r.screen = ScreenPlayer
	return nil
}

// LoadScenesFile plays a scene list saved to disk.
func (r *Runtime) LoadScenesFile(path string) error {
	list, err := scene.LoadFile(path)
	if err != nil {
		return err
	}
	r.discard()

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ctrl.Load(list.Scenes, 0); err != nil {
		return err
	}
	r.screen = ScreenPlayer
	return nil
}

// CheckAuthentication returns the logged-in user. Without one, or when
// the backend cannot be reached, the runtime moves to the login screen.
func (r *Runtime) CheckAuthentication(ctx context.Context) (*backend.User, error) {
	user, err := r.backend.CurrentUser(ctx)
	if err != nil || user == nil {
		r.ToLogin()
		events.Emit("info", "session.redirect", "", map[string]interface{}{"target": "login"})
		if err == nil {
			err = backend.ErrUnauthenticated
		}
		return nil, err
	}
	return user, nil
}

// Logout ends the backend session and resets the client.
func (r *Runtime) Logout(ctx context.Context) error {
	if err := r.backend.Logout(ctx); err != nil {
		return err
	}
	r.ReturnHome()
	r.ToLogin()
	events.Emit("info", "session.logout", "", nil)
	return nil
}

// DownloadResult writes the rendered video of the current task to w.
func (r *Runtime) DownloadResult(ctx context.Context, w io.Writer) (int64, error) {
	r.mu.Lock()
	taskID := r.taskID
	r.mu.Unlock()
	if taskID == "" {
		return 0, ErrNoTask
	}

	n, err := r.backend.DownloadResult(ctx, taskID, w)
	if err != nil {
		r.authFailure(err)
		return n, err
	}
	events.Emit("info", "session.downloaded", "", map[string]interface{}{"task_id": taskID, "bytes": n})
	return n, nil
}

// PollDone is closed when the current poll run ends; nil without one.
func (r *Runtime) PollDone() <-chan struct{} {
	r.mu.Lock()
	p := r.poller
	r.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Done()
}

// Progress returns the current status of the session.
func (r *Runtime) Progress() Status {
	r.mu.Lock()
	st := Status{
		SessionID: r.sessionID,
		Screen:    r.screen,
		TaskID:    r.taskID,
		Progress:  r.progress.Progress,
		Message:   r.progress.Message,
		LastError: r.lastError,
	}
	p := r.poller
	r.mu.Unlock()

	if p != nil {
		stats := p.Stats()
		st.Poll = &stats
	}
	st.Phase = r.gate.Phase()
	st.View = r.view.Mode()
	st.Playback = r.ctrl.Snapshot()
	return st
}

// Close stops everything the runtime started.
func (r *Runtime) Close() {
	r.ReturnHome()
	r.ctrl.Close()
}

func (r *Runtime) authFailure(err error) {
	if errors.Is(err, backend.ErrUnauthenticated) {
		r.ToLogin()
		events.Emit("warn", "session.unauthorized", err.Error(), nil)
	}
}
