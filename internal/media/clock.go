package media

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ClockPlayer is a headless Player: a source "plays" for a fixed
// duration and then fires the ended handler. Used for previews without
// a real media stack and in tests.
type ClockPlayer struct {
	mu       sync.Mutex
	duration time.Duration
	source   string
	volume   float64
	playing  bool
	position time.Duration
	started  time.Time
	timer    *time.Timer
	gen      uint64
	onEnded  func()
	onError  func(error)
	playErr  error
	plays    int
}

// NewClockPlayer returns a player whose clips last d.
func NewClockPlayer(d time.Duration) *ClockPlayer {
	return &ClockPlayer{duration: d, volume: 1}
}

// FailNextPlay makes the next Play call return err, like a browser
// rejecting autoplay.
func (p *ClockPlayer) FailNextPlay(err error) {
	p.mu.Lock()
	p.playErr = err
	p.mu.Unlock()
}

func (p *ClockPlayer) SetSource(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.source = url
	p.position = 0
	return nil
}

func (p *ClockPlayer) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

func (p *ClockPlayer) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.playErr; err != nil {
		p.playErr = nil
		return err
	}
	if p.source == "" {
		return ErrNoSource
	}
	if p.playing {
		return nil
	}

	if p.position >= p.duration {
		p.position = 0
	}
	p.playing = true
	p.plays++
	p.started = time.Now()
	p.gen++
	gen := p.gen
	remaining := p.duration - p.position
	p.timer = time.AfterFunc(remaining, func() { p.finish(gen) })
	return nil
}

func (p *ClockPlayer) finish(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.position = p.duration
	p.timer = nil
	fn := p.onEnded
	p.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Finish ends the current clip now, as if it had played to the end.
func (p *ClockPlayer) Finish() {
	p.mu.Lock()
	gen := p.gen
	p.mu.Unlock()
	p.finish(gen)
}

func (p *ClockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// stopLocked halts the clock and keeps the position.
func (p *ClockPlayer) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.playing {
		p.position += time.Since(p.started)
		if p.position > p.duration {
			p.position = p.duration
		}
		p.playing = false
	}
	p.gen++
}

func (p *ClockPlayer) SeekToStart() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	wasPlaying := p.playing
	p.stopLocked()
	p.position = 0
	if wasPlaying {
		p.playing = true
		p.started = time.Now()
		gen := p.gen
		p.timer = time.AfterFunc(p.duration, func() { p.finish(gen) })
	}
	return nil
}

func (p *ClockPlayer) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
}

func (p *ClockPlayer) OnEnded(fn func()) {
	p.mu.Lock()
	p.onEnded = fn
	p.mu.Unlock()
}

func (p *ClockPlayer) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// Fail halts a running clip and reports err to the error handler, like
// an element hitting a decode error mid-play.
func (p *ClockPlayer) Fail(err error) {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.stopLocked()
	fn := p.onError
	p.mu.Unlock()

	if fn != nil {
		fn(fmt.Errorf("%w: %v", ErrElement, err))
	}
}

func (p *ClockPlayer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.source = ""
	p.position = 0
	p.onEnded = nil
	p.onError = nil
}

// Playing reports whether a clip is running.
func (p *ClockPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Position returns the current offset into the clip.
func (p *ClockPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		pos := p.position + time.Since(p.started)
		if pos > p.duration {
			pos = p.duration
		}
		return pos
	}
	return p.position
}

func (p *ClockPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Plays counts successful Play calls that started a clip.
func (p *ClockPlayer) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plays
}
