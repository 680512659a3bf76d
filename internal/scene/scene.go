// Package scene holds the immutable scene model shared by the poller,
// the playback controller and the view manager.
package scene

import "strings"

// Mode is the kind of media surface a scene needs.
type Mode string

const (
	ModeImageAudio Mode = "image_audio"
	ModeVideo      Mode = "video"
)

// Mood is the emotional tag the backend attaches to a scene.
type Mood string

const (
	MoodHappy     Mood = "happy"
	MoodSad       Mood = "sad"
	MoodTense     Mood = "tense"
	MoodCalm      Mood = "calm"
	MoodSurprised Mood = "surprised"
	MoodAngry     Mood = "angry"
)

// Scene is one narrative beat. It is never mutated after decoding.
type Scene struct {
	Index      int      `json:"index"`
	Text       string   `json:"text"`
	ImageURL   string   `json:"image_url,omitempty"`
	VideoURL   string   `json:"video_url,omitempty"`
	AudioURL   string   `json:"audio_url,omitempty"`
	Characters []string `json:"characters,omitempty"`
	ShotType   string   `json:"shot_type,omitempty"`
	Mood       Mood     `json:"mood,omitempty"`
}

// Mode is Video exactly when a video URL is present.
func (s Scene) Mode() Mode {
	if s.VideoURL != "" {
		return ModeVideo
	}
	return ModeImageAudio
}

// HasVideo reports whether the scene carries a video asset.
func (s Scene) HasVideo() bool {
	return s.VideoURL != ""
}

// VisualURL returns the authoritative visual source.
func (s Scene) VisualURL() string {
	if s.VideoURL != "" {
		return s.VideoURL
	}
	return s.ImageURL
}

// NarrationURL returns the audio track, which video scenes ignore.
func (s Scene) NarrationURL() string {
	if s.VideoURL != "" {
		return ""
	}
	return s.AudioURL
}

// CharactersLabel joins the character names for display.
func (s Scene) CharactersLabel() string {
	return strings.Join(s.Characters, "、")
}

// Label returns the display label of a mood. Unknown moods read as neutral.
func (m Mood) Label() string {
	switch m {
	case MoodHappy, MoodSad, MoodTense, MoodCalm, MoodSurprised, MoodAngry:
		return string(m)
	case "":
		return ""
	default:
		return "neutral"
	}
}

// List is the scene array returned for a completed task.
type List struct {
	TotalScenes int     `json:"total_scenes"`
	Scenes      []Scene `json:"scenes"`
}

// Normalize rewrites each Index to its position and fixes TotalScenes.
func (l *List) Normalize() {
	for i := range l.Scenes {
		l.Scenes[i].Index = i
	}
	l.TotalScenes = len(l.Scenes)
}

// VideoIndices returns the positions of scenes with a video asset.
func VideoIndices(scenes []Scene) []int {
	var out []int
	for i, s := range scenes {
		if s.HasVideo() {
			out = append(out, i)
		}
	}
	return out
}
