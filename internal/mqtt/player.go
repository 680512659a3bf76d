package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SceneReel/internal/events"
	"github.com/AaronLay10/SceneReel/internal/media"
)

// DefaultAckTimeout bounds how long Play waits for the shell to confirm.
const DefaultAckTimeout = 3 * time.Second

// ErrPlayRejected is wrapped by Play when the shell refused to start.
var ErrPlayRejected = errors.New("remote player rejected play")

// AckTimeoutError means the shell never answered a play command.
type AckTimeoutError struct {
	Player string
}

func (e *AckTimeoutError) Error() string {
	return "mqtt play ack timeout: " + e.Player
}

// Command is published on <prefix>/player/<name>/cmd.
type Command struct {
	Cmd    string   `json:"cmd"`
	Seq    uint64   `json:"seq,omitempty"`
	URL    string   `json:"url,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
}

// PlayerState is reported by the shell on <prefix>/player/<name>/state.
// Event is one of playing, rejected, ended or error.
type PlayerState struct {
	Event string `json:"event"`
	Seq   uint64 `json:"seq,omitempty"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// RemotePlayer is a media.Player whose element lives in the native shell.
type RemotePlayer struct {
	bus        Bus
	name       string
	cmdTopic   string
	stateTopic string
	ackTimeout time.Duration

	mu      sync.Mutex
	source  string
	volume  float64
	onEnded func()
	onError func(error)
	seq     uint64
	pending map[uint64]chan error
}

var _ media.Player = (*RemotePlayer)(nil)

// PlayerTopics returns the command and state topics of a named player.
func PlayerTopics(prefix, name string) (cmd, state string) {
	base := fmt.Sprintf("%s/player/%s", prefix, name)
	return base + "/cmd", base + "/state"
}

// NewRemotePlayer subscribes to the player's state topic.
func NewRemotePlayer(bus Bus, prefix, name string, ackTimeout time.Duration) (*RemotePlayer, error) {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	cmd, state := PlayerTopics(prefix, name)
	p := &RemotePlayer{
		bus:        bus,
		name:       name,
		cmdTopic:   cmd,
		stateTopic: state,
		ackTimeout: ackTimeout,
		volume:     1,
		pending:    make(map[uint64]chan error),
	}
	if err := p.Subscribe(); err != nil {
		return nil, err
	}
	return p, nil
}

// Subscribe (re)attaches the state handler, e.g. after a reconnect.
func (p *RemotePlayer) Subscribe() error {
	return p.bus.Subscribe(p.stateTopic, p.handleState)
}

func (p *RemotePlayer) publish(c Command) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return p.bus.Publish(p.cmdTopic, data)
}

func (p *RemotePlayer) SetSource(url string) error {
	p.mu.Lock()
	p.source = url
	p.mu.Unlock()
	return p.publish(Command{Cmd: "source", URL: url})
}

func (p *RemotePlayer) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// Play asks the shell to start and waits for it to confirm or refuse.
func (p *RemotePlayer) Play(ctx context.Context) error {
	p.mu.Lock()
	if p.source == "" {
		p.mu.Unlock()
		return media.ErrNoSource
	}
	p.seq++
	seq := p.seq
	ack := make(chan error, 1)
	p.pending[seq] = ack
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, seq)
		p.mu.Unlock()
	}()

	if err := p.publish(Command{Cmd: "play", Seq: seq}); err != nil {
		return err
	}

	timer := time.NewTimer(p.ackTimeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &AckTimeoutError{Player: p.name}
	}
}

func (p *RemotePlayer) Pause() {
	if err := p.publish(Command{Cmd: "pause"}); err != nil {
		log.Printf("[mqtt] %s pause: %v", p.name, err)
	}
}

func (p *RemotePlayer) SeekToStart() error {
	return p.publish(Command{Cmd: "seek_start"})
}

func (p *RemotePlayer) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	if err := p.publish(Command{Cmd: "volume", Volume: &v}); err != nil {
		log.Printf("[mqtt] %s volume: %v", p.name, err)
	}
}

// Volume returns the last volume sent to the shell.
func (p *RemotePlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *RemotePlayer) OnEnded(fn func()) {
	p.mu.Lock()
	p.onEnded = fn
	p.mu.Unlock()
}

func (p *RemotePlayer) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

func (p *RemotePlayer) Reset() {
	p.mu.Lock()
	p.source = ""
	p.onEnded = nil
	p.onError = nil
	p.mu.Unlock()
	if err := p.publish(Command{Cmd: "reset"}); err != nil {
		log.Printf("[mqtt] %s reset: %v", p.name, err)
	}
}

// Close drops the state subscription.
func (p *RemotePlayer) Close() error {
	return p.bus.Unsubscribe(p.stateTopic)
}

func (p *RemotePlayer) handleState(_ paho.Client, msg paho.Message) {
	var st PlayerState
	if err := json.Unmarshal(msg.Payload(), &st); err != nil {
		events.Emit("warn", "remote.error", "invalid player state payload", map[string]interface{}{
			"player": p.name,
			"error":  err.Error(),
		})
		return
	}

	switch st.Event {
	case "playing", "rejected":
		var result error
		if st.Event == "rejected" {
			result = fmt.Errorf("%w: %s", ErrPlayRejected, st.Error)
		}
		p.mu.Lock()
		ack, ok := p.pending[st.Seq]
		p.mu.Unlock()
		if ok {
			select {
			case ack <- result:
			default:
			}
		}
	case "ended":
		p.mu.Lock()
		fn := p.onEnded
		stale := st.URL != "" && st.URL != p.source
		p.mu.Unlock()
		if fn == nil || stale {
			return
		}
		// The controller may be inside Play waiting for an ack that
		// arrives on this same goroutine.
		go fn()
	case "error":
		events.Emit("error", "remote.error", st.Error, map[string]interface{}{
			"player": p.name,
			"url":    st.URL,
		})
		p.mu.Lock()
		fn := p.onError
		stale := st.URL != "" && st.URL != p.source
		p.mu.Unlock()
		if fn == nil || stale {
			return
		}
		go fn(fmt.Errorf("%w: %s: %s", media.ErrElement, p.name, st.Error))
	}
}
