package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// submission
	"task.validation_failed": {},
	"task.submitted":         {},
	"task.rejected":          {},
	"task.created":           {},

	// payment
	"payment.checked":   {},
	"payment.prompted":  {},
	"payment.accepted":  {},
	"payment.cancelled": {},

	// polling
	"poll.started":   {},
	"poll.progress":  {},
	"poll.retry":     {},
	"poll.completed": {},
	"poll.failed":    {},
	"poll.exhausted": {},
	"poll.cancelled": {},

	// scene
	"scene.loaded":  {},
	"scene.mounted": {},
	"scene.ended":   {},

	// playback
	"playback.started":   {},
	"playback.paused":    {},
	"playback.stopped":   {},
	"playback.error":     {},
	"playback.completed": {},
	"playback.volume":    {},
	"playback.advance":   {},

	// view
	"view.switched": {},
	"view.opened":   {},
	"view.play_all": {},

	// session
	"session.home":         {},
	"session.redirect":     {},
	"session.history":      {},
	"session.logout":       {},
	"session.downloaded":   {},
	"session.unauthorized": {},

	// remote control
	"remote.command": {},
	"remote.error":   {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

// Validate returns an error for event names outside the allowlist.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
