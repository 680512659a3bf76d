// Package media abstracts the two playable element kinds a scene can
// need behind one Surface interface.
package media

import (
	"context"
	"errors"
)

var (
	// ErrNoSource is returned by Play when no source has been set.
	ErrNoSource = errors.New("media: no source")
	// ErrElement wraps failures an element reports after it started.
	ErrElement = errors.New("media: element error")
)

// Player is one underlying media element (an audio or a video element).
// Implementations must be safe for concurrent use; the ended and error
// handlers are invoked from the implementation's own goroutine.
type Player interface {
	SetSource(url string) error
	Source() string
	Play(ctx context.Context) error
	Pause()
	SeekToStart() error
	SetVolume(v float64)
	// OnEnded replaces the end-of-media handler. nil removes it.
	OnEnded(fn func())
	// OnError replaces the handler for failures after Play returned,
	// such as a decode error or a dropped stream. nil removes it.
	OnError(fn func(error))
	// Reset pauses, clears the source and removes both handlers.
	Reset()
}
