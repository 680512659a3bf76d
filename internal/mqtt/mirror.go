package mqtt

import (
	"context"
	"encoding/json"
	"log"

	"github.com/AaronLay10/SceneReel/internal/events"
)

// EventsTopic is where MirrorEvents publishes.
func EventsTopic(prefix string) string {
	return prefix + "/events"
}

// MirrorEvents republishes every session event on <prefix>/events until
// ctx is done. Publish failures are logged and the event dropped.
func MirrorEvents(ctx context.Context, bus Bus, prefix string) {
	sub := events.Subscribe()
	topic := EventsTopic(prefix)

	go func() {
		defer events.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub:
				if !ok {
					return
				}
				data, err := json.Marshal(e)
				if err != nil {
					continue
				}
				if err := bus.Publish(topic, data); err != nil {
					log.Printf("[mqtt] event mirror: %v", err)
				}
			}
		}
	}()
}
