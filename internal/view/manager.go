// Package view switches between the single-scene player and the video
// gallery. It hands indices to the playback controller and holds no
// playback state of its own.
package view

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AaronLay10/SceneReel/internal/events"
	"github.com/AaronLay10/SceneReel/internal/playback"
	"github.com/AaronLay10/SceneReel/internal/scene"
)

// Mode is the presentation currently shown.
type Mode string

const (
	Single Mode = "single"
	List   Mode = "list"
)

var (
	// ErrNoVideo is returned by PlayAll when no scene has a video.
	ErrNoVideo = errors.New("view: no video scenes")
	// ErrNotInList is returned when opening an index the gallery does not show.
	ErrNotInList = errors.New("view: scene is not in the video list")
)

// Player is the slice of the playback controller the view drives.
type Player interface {
	Load(scenes []scene.Scene, start int) error
	Play(ctx context.Context) error
	Snapshot() playback.Snapshot
}

// Item is one entry of the video gallery.
type Item struct {
	Index    int        `json:"index"`
	Text     string     `json:"text"`
	VideoURL string     `json:"video_url"`
	ShotType string     `json:"shot_type,omitempty"`
	Mood     scene.Mood `json:"mood,omitempty"`
}

// Manager tracks the view mode.
type Manager struct {
	player Player

	mu   sync.Mutex
	mode Mode
}

// NewManager starts in the single view.
func NewManager(p Player) *Manager {
	return &Manager{player: p, mode: Single}
}

func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SwitchView changes the presentation. Playback is not touched.
func (m *Manager) SwitchView(mode Mode) error {
	if mode != Single && mode != List {
		return fmt.Errorf("view: unknown mode %q", mode)
	}
	m.mu.Lock()
	changed := m.mode != mode
	m.mode = mode
	m.mu.Unlock()

	if changed {
		events.Emit("info", "view.switched", "", map[string]interface{}{"mode": string(mode)})
	}
	return nil
}

// Items lists the video-bearing scenes of the loaded session.
func (m *Manager) Items() []Item {
	snap := m.player.Snapshot()
	var items []Item
	for _, i := range scene.VideoIndices(snap.Scenes) {
		s := snap.Scenes[i]
		items = append(items, Item{Index: i, Text: s.Text, VideoURL: s.VideoURL, ShotType: s.ShotType, Mood: s.Mood})
	}
	return items
}

// OpenInSingle loads the gallery entry at index and shows it stopped in
// the single view.
func (m *Manager) OpenInSingle(index int) error {
	snap := m.player.Snapshot()
	if !snap.Loaded() {
		return playback.ErrNotLoaded
	}
	if index < 0 || index >= len(snap.Scenes) || !snap.Scenes[index].HasVideo() {
		return ErrNotInList
	}
	if err := m.player.Load(snap.Scenes, index); err != nil {
		return err
	}
	events.Emit("info", "view.opened", "", map[string]interface{}{"index": index})
	return m.SwitchView(Single)
}

// PlayAll loads the first video scene and starts it. Auto-advance then
// carries playback through the rest of the list.
func (m *Manager) PlayAll(ctx context.Context) error {
	snap := m.player.Snapshot()
	if !snap.Loaded() {
		return playback.ErrNotLoaded
	}
	videos := scene.VideoIndices(snap.Scenes)
	if len(videos) == 0 {
		return ErrNoVideo
	}
	first := videos[0]
	if err := m.player.Load(snap.Scenes, first); err != nil {
		return err
	}
	if err := m.SwitchView(Single); err != nil {
		return err
	}
	events.Emit("info", "view.play_all", "", map[string]interface{}{"index": first})
	return m.player.Play(ctx)
}
