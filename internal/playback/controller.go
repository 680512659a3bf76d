// Package playback owns the playback session: the scene list, the
// current position and the play state, and the media surface they drive.
package playback

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AaronLay10/SceneReel/internal/events"
	"github.com/AaronLay10/SceneReel/internal/media"
	"github.com/AaronLay10/SceneReel/internal/scene"
)

// DefaultDebounce is the delay between an auto-advance and its play().
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Controller.
type Options struct {
	Players media.Players
	// Debounce delays play() after an auto-advance so the new element can
	// attach its ended listener. Zero means DefaultDebounce.
	Debounce time.Duration
	// OnChange receives a snapshot after every operation that changed state.
	OnChange func(Snapshot)
	// OnComplete fires once when the last scene ends.
	OnComplete func()
}

// Controller is the playback state machine. All operations are
// serialized; callbacks run after the lock is released.
type Controller struct {
	mu       sync.Mutex
	players  media.Players
	debounce time.Duration
	sess     session
	surface  media.Surface

	// mountGen guards element callbacks from surfaces that were remounted.
	mountGen uint64
	// advanceGen guards the debounced play() of an auto-advance.
	advanceGen uint64
	advance    *time.Timer

	dirty     bool
	completed bool

	onChange   func(Snapshot)
	onComplete func()

	errCounter     metric.Int64Counter
	advanceCounter metric.Int64Counter
}

// NewController creates an empty controller with volume 1.0.
func NewController(opts Options) *Controller {
	d := opts.Debounce
	if d <= 0 {
		d = DefaultDebounce
	}

	meter := otel.Meter("scenereel/playback")
	errCounter, err := meter.Int64Counter("scenereel.playback.errors",
		metric.WithDescription("Rejected media start, seek or mount calls"))
	if err != nil {
		log.Printf("[playback] failed to create error counter: %v", err)
	}
	advanceCounter, err := meter.Int64Counter("scenereel.playback.advances",
		metric.WithDescription("Automatic advances to the next scene"))
	if err != nil {
		log.Printf("[playback] failed to create advance counter: %v", err)
	}

	return &Controller{
		players:        opts.Players,
		debounce:       d,
		sess:           session{playState: Stopped, volume: 1},
		onChange:       opts.OnChange,
		onComplete:     opts.OnComplete,
		errCounter:     errCounter,
		advanceCounter: advanceCounter,
	}
}

// unlock releases the lock and then delivers pending callbacks.
func (c *Controller) unlock() {
	var snap Snapshot
	changed := c.dirty
	if changed {
		snap = c.snapshotLocked()
		c.dirty = false
	}
	completed := c.completed
	c.completed = false
	c.mu.Unlock()

	if changed && c.onChange != nil {
		c.onChange(snap)
	}
	if completed && c.onComplete != nil {
		c.onComplete()
	}
}

// Snapshot returns a copy of the session. The scene list is copied too.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Scenes:       slices.Clone(c.sess.scenes),
		CurrentIndex: c.sess.currentIndex,
		PlayState:    c.sess.playState,
		Mode:         c.sess.mode,
		Volume:       c.sess.volume,
	}
}

// Load resets the session to scenes at start, mounts the matching
// surface and leaves the state Stopped.
func (c *Controller) Load(scenes []scene.Scene, start int) error {
	c.mu.Lock()
	defer c.unlock()

	if len(scenes) == 0 {
		return ErrNotLoaded
	}
	if start < 0 || start >= len(scenes) {
		return ErrIndexOutOfRange
	}

	c.cancelAdvanceLocked()
	if c.sess.loaded() {
		c.stopLocked()
	}

	c.sess.scenes = slices.Clone(scenes)
	emit("scene.loaded", map[string]interface{}{"count": len(scenes), "index": start})
	return c.loadIndexLocked(start)
}

// loadIndexLocked moves to index and mounts it. The state is always
// Stopped afterwards.
func (c *Controller) loadIndexLocked(index int) error {
	c.sess.currentIndex = index
	c.sess.playState = Stopped
	c.dirty = true

	target := c.sess.scenes[index]
	mode := target.Mode()
	c.sess.mode = mode

	if c.surface == nil || c.surface.Kind() != mode {
		if c.surface != nil {
			c.surface.Unmount()
			c.surface = nil
		}
		s, err := media.NewSurface(mode, c.players)
		if err != nil {
			return c.failLocked("mount", err)
		}
		c.surface = s
	}

	c.mountGen++
	gen := c.mountGen
	listeners := media.Listeners{
		Ended: func() { c.handleEnded(gen) },
		Error: func(err error) { c.handleError(gen, err) },
	}
	if err := c.surface.Mount(target, listeners); err != nil {
		c.surface.Unmount()
		c.surface = nil
		return c.failLocked("mount", err)
	}
	c.surface.SetVolume(c.sess.volume)

	emit("scene.mounted", map[string]interface{}{"index": index, "mode": string(mode)})
	return nil
}

// Play starts the current scene. A rejected start leaves the state
// Paused and returns a *PlaybackError.
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	defer c.unlock()
	return c.playLocked(ctx)
}

func (c *Controller) playLocked(ctx context.Context) error {
	if !c.sess.loaded() {
		return ErrNotLoaded
	}
	if c.surface == nil {
		c.sess.playState = Paused
		c.dirty = true
		return c.failLocked("play", media.ErrNoSource)
	}
	if c.sess.playState == Playing {
		return nil
	}

	if err := c.surface.Play(ctx); err != nil {
		c.sess.playState = Paused
		c.dirty = true
		return c.failLocked("play", err)
	}

	c.sess.playState = Playing
	c.dirty = true
	emit("playback.started", map[string]interface{}{"index": c.sess.currentIndex, "mode": string(c.sess.mode)})
	return nil
}

// Pause halts the element without resetting its position.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.unlock()

	c.cancelAdvanceLocked()
	if !c.sess.loaded() {
		return
	}
	if c.surface != nil {
		c.surface.Pause()
	}
	if c.sess.playState != Paused {
		c.sess.playState = Paused
		c.dirty = true
		emit("playback.paused", map[string]interface{}{"index": c.sess.currentIndex})
	}
}

// Stop pauses and rewinds the current scene. Calling it twice is the
// same as calling it once.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.unlock()

	c.cancelAdvanceLocked()
	if !c.sess.loaded() {
		return
	}
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.surface != nil {
		c.surface.Pause()
		if err := c.surface.SeekToStart(); err != nil {
			c.sess.playState = Paused
			c.dirty = true
			c.failLocked("seek", err)
			return
		}
	}
	if c.sess.playState != Stopped {
		c.sess.playState = Stopped
		c.dirty = true
		emit("playback.stopped", map[string]interface{}{"index": c.sess.currentIndex})
	}
}

// Navigate moves by delta scenes and reports whether it moved. A target
// outside the list leaves everything untouched. The result is always
// Stopped; callers that want playback call Play afterwards.
func (c *Controller) Navigate(delta int) bool {
	c.mu.Lock()
	defer c.unlock()

	moved, _ := c.navigateLocked(delta)
	return moved
}

func (c *Controller) navigateLocked(delta int) (bool, error) {
	if !c.sess.loaded() {
		return false, nil
	}
	next := c.sess.currentIndex + delta
	if next < 0 || next > c.sess.last() {
		return false, nil
	}

	c.cancelAdvanceLocked()
	c.stopLocked()
	return true, c.loadIndexLocked(next)
}

// OnMediaEnded handles the end of the current scene's media. It only
// acts while Playing with no advance pending, so a duplicate or late
// report cannot skip a scene or restart a stopped session. At the last
// scene the session ends Paused; otherwise it advances one scene and
// plays after the debounce.
func (c *Controller) OnMediaEnded() {
	c.mu.Lock()
	defer c.unlock()
	c.endedLocked()
}

func (c *Controller) handleEnded(gen uint64) {
	c.mu.Lock()
	defer c.unlock()
	if gen != c.mountGen {
		return
	}
	c.endedLocked()
}

func (c *Controller) endedLocked() {
	if !c.sess.loaded() || c.sess.playState != Playing || c.advance != nil {
		return
	}
	index := c.sess.currentIndex
	emit("scene.ended", map[string]interface{}{"index": index})

	if index == c.sess.last() {
		c.cancelAdvanceLocked()
		if c.surface != nil {
			c.surface.Pause()
		}
		c.sess.playState = Paused
		c.dirty = true
		c.completed = true
		emit("playback.completed", map[string]interface{}{"count": len(c.sess.scenes)})
		return
	}

	if _, err := c.navigateLocked(1); err != nil {
		return
	}

	c.advanceGen++
	gen := c.advanceGen
	c.advance = time.AfterFunc(c.debounce, func() { c.advancePlay(gen) })
	if c.advanceCounter != nil {
		c.advanceCounter.Add(context.Background(), 1)
	}
	emit("playback.advance", map[string]interface{}{"index": c.sess.currentIndex})
}

// handleError resolves an element failure on the mounted scene to
// Paused and drops any pending advance.
func (c *Controller) handleError(gen uint64, err error) {
	c.mu.Lock()
	defer c.unlock()
	if gen != c.mountGen || !c.sess.loaded() {
		return
	}
	c.cancelAdvanceLocked()
	if c.surface != nil {
		c.surface.Pause()
	}
	c.sess.playState = Paused
	c.dirty = true
	c.failLocked("media", err)
}

func (c *Controller) advancePlay(gen uint64) {
	c.mu.Lock()
	defer c.unlock()
	if gen != c.advanceGen || c.advance == nil {
		return
	}
	c.advance = nil
	_ = c.playLocked(context.Background())
}

// AdvancePending reports whether a debounced play() is scheduled.
func (c *Controller) AdvancePending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advance != nil
}

func (c *Controller) cancelAdvanceLocked() {
	c.advanceGen++
	if c.advance != nil {
		c.advance.Stop()
		c.advance = nil
	}
}

// SetVolume clamps v to [0,100] and stores v/100. Only the audio
// surface is affected.
func (c *Controller) SetVolume(v float64) {
	c.mu.Lock()
	defer c.unlock()

	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	c.sess.volume = v / 100
	c.dirty = true
	if c.surface != nil && c.surface.Kind() == scene.ModeImageAudio {
		c.surface.SetVolume(c.sess.volume)
	}
	emit("playback.volume", map[string]interface{}{"volume": c.sess.volume})
}

// Close cancels any pending advance and releases the surface.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.unlock()
	c.resetLocked()
}

// Reset empties the session, as when the user returns home.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.unlock()
	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.cancelAdvanceLocked()
	c.mountGen++
	if c.surface != nil {
		c.surface.Unmount()
		c.surface = nil
	}
	if c.sess.loaded() || c.sess.playState != Stopped {
		c.dirty = true
	}
	c.sess = session{playState: Stopped, volume: c.sess.volume}
}

func (c *Controller) failLocked(op string, err error) error {
	perr := &PlaybackError{Op: op, Index: c.sess.currentIndex, Err: err}
	log.Printf("[playback] %v", perr)
	if c.errCounter != nil {
		c.errCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
	}
	events.Emit("warn", "playback.error", perr.Error(), map[string]interface{}{
		"op":    op,
		"index": c.sess.currentIndex,
	})
	return perr
}

func emit(name string, fields map[string]interface{}) {
	events.Emit("info", name, "", fields)
}
