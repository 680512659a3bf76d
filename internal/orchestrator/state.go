package orchestrator

import (
	"github.com/AaronLay10/SceneReel/internal/playback"
	"github.com/AaronLay10/SceneReel/internal/poller"
	"github.com/AaronLay10/SceneReel/internal/submit"
	"github.com/AaronLay10/SceneReel/internal/view"
)

// Screen is the part of the client the user is looking at.
type Screen string

const (
	ScreenUpload   Screen = "upload"
	ScreenProgress Screen = "progress"
	ScreenPlayer   Screen = "player"
	ScreenHistory  Screen = "history"
	ScreenSettings Screen = "settings"
	ScreenLogin    Screen = "login"
)

// Status is a point-in-time view of the whole client.
type Status struct {
	SessionID string            `json:"session_id"`
	Screen    Screen            `json:"screen"`
	TaskID    string            `json:"task_id,omitempty"`
	Phase     submit.Phase      `json:"phase"`
	Progress  int               `json:"progress"`
	Message   string            `json:"message,omitempty"`
	LastError string            `json:"last_error,omitempty"`
	Poll      *poller.Stats     `json:"poll,omitempty"`
	View      view.Mode         `json:"view"`
	Playback  playback.Snapshot `json:"playback"`
}
