package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/AaronLay10/SceneReel/internal/scene"
)

// Surface is the playable slot a scene is mounted on. A surface only
// accepts scenes of its own Kind.
type Surface interface {
	Kind() scene.Mode
	Mount(s scene.Scene, l Listeners) error
	Play(ctx context.Context) error
	Pause()
	SeekToStart() error
	// SetVolume applies to audio-bearing surfaces only.
	SetVolume(v float64)
	// Unmount releases the element; the surface is unusable afterwards.
	Unmount()
}

// Listeners receive element notifications for the mounted scene.
type Listeners struct {
	Ended func()
	Error func(error)
}

// Players are the two elements a host provides.
type Players struct {
	Audio Player
	Video Player
}

// NewSurface mounts a fresh surface of the given kind on players.
func NewSurface(kind scene.Mode, p Players) (Surface, error) {
	switch kind {
	case scene.ModeImageAudio:
		if p.Audio == nil {
			return nil, fmt.Errorf("media: no audio player")
		}
		return &ImageAudioSurface{audio: p.Audio}, nil
	case scene.ModeVideo:
		if p.Video == nil {
			return nil, fmt.Errorf("media: no video player")
		}
		return &VideoSurface{video: p.Video}, nil
	default:
		return nil, fmt.Errorf("media: unknown surface kind %q", kind)
	}
}

// ImageAudioSurface shows a still image and plays the narration track.
type ImageAudioSurface struct {
	mu    sync.Mutex
	audio Player
	image string
}

func (s *ImageAudioSurface) Kind() scene.Mode { return scene.ModeImageAudio }

func (s *ImageAudioSurface) Mount(sc scene.Scene, l Listeners) error {
	if sc.Mode() != scene.ModeImageAudio {
		return fmt.Errorf("media: cannot mount %s scene on image/audio surface", sc.Mode())
	}
	s.mu.Lock()
	s.image = sc.ImageURL
	s.mu.Unlock()

	s.audio.Pause()
	s.audio.OnEnded(l.Ended)
	s.audio.OnError(l.Error)
	return s.audio.SetSource(sc.NarrationURL())
}

// Image returns the image currently displayed.
func (s *ImageAudioSurface) Image() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

func (s *ImageAudioSurface) Play(ctx context.Context) error { return s.audio.Play(ctx) }
func (s *ImageAudioSurface) Pause()                         { s.audio.Pause() }
func (s *ImageAudioSurface) SeekToStart() error             { return s.audio.SeekToStart() }
func (s *ImageAudioSurface) SetVolume(v float64)            { s.audio.SetVolume(v) }

func (s *ImageAudioSurface) Unmount() {
	s.audio.Reset()
	s.mu.Lock()
	s.image = ""
	s.mu.Unlock()
}

// VideoSurface plays a scene's video. Its volume is left to the element.
type VideoSurface struct {
	video Player
}

func (s *VideoSurface) Kind() scene.Mode { return scene.ModeVideo }

func (s *VideoSurface) Mount(sc scene.Scene, l Listeners) error {
	if sc.Mode() != scene.ModeVideo {
		return fmt.Errorf("media: cannot mount %s scene on video surface", sc.Mode())
	}
	s.video.Pause()
	s.video.OnEnded(l.Ended)
	s.video.OnError(l.Error)
	return s.video.SetSource(sc.VideoURL)
}

func (s *VideoSurface) Play(ctx context.Context) error { return s.video.Play(ctx) }
func (s *VideoSurface) Pause()                         { s.video.Pause() }
func (s *VideoSurface) SeekToStart() error             { return s.video.SeekToStart() }
func (s *VideoSurface) SetVolume(float64)              {}
func (s *VideoSurface) Unmount()                       { s.video.Reset() }
