package playback

import (
	"errors"
	"fmt"

	"github.com/AaronLay10/SceneReel/internal/scene"
)

// State is the play state of the session.
type State string

const (
	Stopped State = "stopped"
	Paused  State = "paused"
	Playing State = "playing"
)

var (
	// ErrNotLoaded is returned by operations that need a loaded scene list.
	ErrNotLoaded = errors.New("playback: no scenes loaded")
	// ErrIndexOutOfRange is returned by Load for a start index outside the list.
	ErrIndexOutOfRange = errors.New("playback: index out of range")
)

// PlaybackError is a rejected media start, seek or mount. It is never
// fatal: the controller resolves to Paused and keeps its index.
type PlaybackError struct {
	Op    string
	Index int
	Err   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback %s at scene %d: %v", e.Op, e.Index, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// Snapshot is a copy of the session. Scenes share the immutable backing
// array of the loaded list.
type Snapshot struct {
	Scenes       []scene.Scene `json:"scenes"`
	CurrentIndex int           `json:"current_index"`
	PlayState    State         `json:"play_state"`
	Mode         scene.Mode    `json:"mode"`
	Volume       float64       `json:"volume"`
}

// Loaded reports whether the snapshot holds any scenes.
func (s Snapshot) Loaded() bool {
	return len(s.Scenes) > 0
}

// Current returns the scene at CurrentIndex.
func (s Snapshot) Current() (scene.Scene, bool) {
	if !s.Loaded() {
		return scene.Scene{}, false
	}
	return s.Scenes[s.CurrentIndex], true
}

// session is owned by one Controller and only mutated under its lock.
type session struct {
	scenes       []scene.Scene
	currentIndex int
	playState    State
	mode         scene.Mode
	volume       float64
}

func (s *session) loaded() bool {
	return len(s.scenes) > 0
}

func (s *session) last() int {
	return len(s.scenes) - 1
}
