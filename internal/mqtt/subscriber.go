package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SceneReel/internal/events"
)

// Controls is what remote commands drive; playback.Controller satisfies it.
type Controls interface {
	Play(ctx context.Context) error
	Pause()
	Stop()
	Navigate(delta int) bool
	SetVolume(v float64)
}

// ControlTopic returns the remote-control topic for a prefix.
func ControlTopic(prefix string) string {
	return prefix + "/control"
}

// ControlSubscriber maps plain-text commands on <prefix>/control onto
// the playback controls. Subscription is idempotent across reconnects.
type ControlSubscriber struct {
	mu         sync.RWMutex
	bus        Bus
	controls   Controls
	topic      string
	playTimeout time.Duration
	subscribed bool
}

// NewControlSubscriber creates a subscriber; call Subscribe to attach it.
func NewControlSubscriber(bus Bus, prefix string, controls Controls) *ControlSubscriber {
	return &ControlSubscriber{
		bus:        bus,
		controls:   controls,
		topic:      ControlTopic(prefix),
		playTimeout: DefaultAckTimeout + time.Second,
	}
}

// Subscribe attaches the handler unless it is already attached.
func (s *ControlSubscriber) Subscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return nil
	}
	if err := s.bus.Subscribe(s.topic, s.handle); err != nil {
		return err
	}
	s.subscribed = true
	return nil
}

// IsSubscribed reports whether the control topic is attached.
func (s *ControlSubscriber) IsSubscribed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscribed
}

// ClearSubscriptions forgets the subscription.
// Call this on disconnect to allow re-subscription on reconnect.
func (s *ControlSubscriber) ClearSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = false
}

// Topic returns the control topic.
func (s *ControlSubscriber) Topic() string { return s.topic }

func (s *ControlSubscriber) handle(_ paho.Client, msg paho.Message) {
	cmd := strings.TrimSpace(string(msg.Payload()))
	if err := s.Apply(cmd); err != nil {
		events.Emit("warn", "remote.error", err.Error(), map[string]interface{}{
			"topic":   msg.Topic(),
			"command": cmd,
		})
		return
	}
	events.Emit("info", "remote.command", "", map[string]interface{}{"command": cmd})
}

// Apply runs one command: play, pause, stop, next, prev or volume:<0-100>.
func (s *ControlSubscriber) Apply(cmd string) error {
	name, arg, _ := strings.Cut(strings.ToLower(cmd), ":")
	switch name {
	case "play":
		ctx, cancel := context.WithTimeout(context.Background(), s.playTimeout)
		defer cancel()
		return s.controls.Play(ctx)
	case "pause":
		s.controls.Pause()
	case "stop":
		s.controls.Stop()
	case "next":
		s.controls.Navigate(1)
	case "prev":
		s.controls.Navigate(-1)
	case "volume":
		v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if err != nil {
			return fmt.Errorf("invalid volume %q: %w", arg, err)
		}
		s.controls.SetVolume(v)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
