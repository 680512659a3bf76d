package media

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/SceneReel/internal/scene"
)

func TestClockPlayerEndsAfterDuration(t *testing.T) {
	p := NewClockPlayer(20 * time.Millisecond)
	var ended atomic.Int32
	p.OnEnded(func() { ended.Add(1) })

	require.NoError(t, p.SetSource("a.mp3"))
	require.NoError(t, p.Play(context.Background()))
	assert.True(t, p.Playing())

	assert.Eventually(t, func() bool { return ended.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, p.Playing())
}

func TestClockPlayerPauseKeepsPosition(t *testing.T) {
	p := NewClockPlayer(time.Hour)
	require.NoError(t, p.SetSource("a.mp3"))
	require.NoError(t, p.Play(context.Background()))
	time.Sleep(10 * time.Millisecond)
	p.Pause()

	pos := p.Position()
	assert.Greater(t, pos, time.Duration(0))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, pos, p.Position())

	require.NoError(t, p.SeekToStart())
	assert.Zero(t, p.Position())
}

func TestClockPlayerWithoutSource(t *testing.T) {
	p := NewClockPlayer(time.Second)
	assert.ErrorIs(t, p.Play(context.Background()), ErrNoSource)
}

func TestClockPlayerRejectedPlay(t *testing.T) {
	p := NewClockPlayer(time.Second)
	require.NoError(t, p.SetSource("a.mp3"))
	blocked := errors.New("autoplay blocked")
	p.FailNextPlay(blocked)

	assert.ErrorIs(t, p.Play(context.Background()), blocked)
	assert.False(t, p.Playing())
	assert.NoError(t, p.Play(context.Background()))
	p.Reset()
}

func TestClockPlayerResetDropsStaleEnd(t *testing.T) {
	p := NewClockPlayer(10 * time.Millisecond)
	var ended atomic.Int32
	p.OnEnded(func() { ended.Add(1) })
	require.NoError(t, p.SetSource("a.mp3"))
	require.NoError(t, p.Play(context.Background()))
	p.Reset()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, ended.Load())
	assert.Empty(t, p.Source())
}

func TestNewSurfaceByKind(t *testing.T) {
	players := Players{Audio: NewClockPlayer(time.Second), Video: NewClockPlayer(time.Second)}

	s, err := NewSurface(scene.ModeImageAudio, players)
	require.NoError(t, err)
	assert.Equal(t, scene.ModeImageAudio, s.Kind())

	s, err = NewSurface(scene.ModeVideo, players)
	require.NoError(t, err)
	assert.Equal(t, scene.ModeVideo, s.Kind())

	_, err = NewSurface(scene.ModeVideo, Players{Audio: players.Audio})
	assert.Error(t, err)
}

func TestSurfacesRejectWrongKind(t *testing.T) {
	players := Players{Audio: NewClockPlayer(time.Second), Video: NewClockPlayer(time.Second)}
	ia, _ := NewSurface(scene.ModeImageAudio, players)
	v, _ := NewSurface(scene.ModeVideo, players)

	assert.Error(t, ia.Mount(scene.Scene{VideoURL: "v.mp4"}, Listeners{}))
	assert.Error(t, v.Mount(scene.Scene{ImageURL: "i.png"}, Listeners{}))
}

func TestImageAudioSurfaceVolumeAndUnmount(t *testing.T) {
	audio := NewClockPlayer(time.Second)
	s, _ := NewSurface(scene.ModeImageAudio, Players{Audio: audio})

	require.NoError(t, s.Mount(scene.Scene{ImageURL: "i.png", AudioURL: "a.mp3"}, Listeners{Ended: func() {}}))
	assert.Equal(t, "a.mp3", audio.Source())
	assert.Equal(t, "i.png", s.(*ImageAudioSurface).Image())

	s.SetVolume(0.3)
	assert.Equal(t, 0.3, audio.Volume())

	s.Unmount()
	assert.Empty(t, audio.Source())
}

func TestVideoSurfaceIgnoresVolume(t *testing.T) {
	video := NewClockPlayer(time.Second)
	s, _ := NewSurface(scene.ModeVideo, Players{Video: video})
	require.NoError(t, s.Mount(scene.Scene{VideoURL: "v.mp4", AudioURL: "a.mp3"}, Listeners{}))

	s.SetVolume(0.1)
	assert.Equal(t, 1.0, video.Volume())
	assert.Equal(t, "v.mp4", video.Source())
}

func TestClockPlayerFailReportsElementError(t *testing.T) {
	p := NewClockPlayer(time.Hour)
	var got error
	var ended atomic.Int32
	p.OnError(func(err error) { got = err })
	p.OnEnded(func() { ended.Add(1) })

	p.Fail(errors.New("idle player"))
	assert.Nil(t, got, "a player that is not running has nothing to fail")

	require.NoError(t, p.SetSource("a.mp3"))
	require.NoError(t, p.Play(context.Background()))
	p.Fail(errors.New("decode failed"))

	assert.ErrorIs(t, got, ErrElement)
	assert.False(t, p.Playing())
	assert.Zero(t, ended.Load())
}

func TestSurfaceWiresErrorListener(t *testing.T) {
	video := NewClockPlayer(time.Hour)
	s, _ := NewSurface(scene.ModeVideo, Players{Video: video})
	var got error
	require.NoError(t, s.Mount(scene.Scene{VideoURL: "v.mp4"}, Listeners{Error: func(err error) { got = err }}))
	require.NoError(t, s.Play(context.Background()))

	video.Fail(errors.New("stream dropped"))
	assert.ErrorIs(t, got, ErrElement)

	s.Unmount()
	got = nil
	require.NoError(t, video.SetSource("v.mp4"))
	require.NoError(t, video.Play(context.Background()))
	video.Fail(errors.New("after unmount"))
	assert.Nil(t, got, "unmount must drop the error listener")
}
