package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AaronLay10/SceneReel/internal/storage/postgres"
)

var buffer = NewRingBuffer(256)

var (
	pgClient *postgres.Client
	pgMu     sync.RWMutex
)

// SetPostgresClient sets the Postgres client for event persistence.
func SetPostgresClient(client *postgres.Client) {
	pgMu.Lock()
	pgClient = client
	pgMu.Unlock()
}

// GetPostgresClient returns the current Postgres client (for API queries).
func GetPostgresClient() *postgres.Client {
	pgMu.RLock()
	defer pgMu.RUnlock()
	return pgClient
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Emit records a named event in the ring buffer, fans it out to subscribers,
// mirrors it to the structured log and, when configured, appends it to Postgres.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)
	logEvent(e)

	if client := GetPostgresClient(); client != nil {
		if err := client.Append(ts, level, name, msg, fields, taskOf(fields)); err != nil && !client.HasLoggedError() {
			// Added straight to the buffer, not through Emit, so a dead
			// database cannot recurse.
			client.MarkErrorLogged()
			buffer.Add(Event{
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
				Level:     "error",
				Name:      "system.error",
				Message:   "postgres append failed",
				Fields:    map[string]interface{}{"error": err.Error()},
			})
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

// taskOf picks the task id out of the event fields, if any.
func taskOf(fields map[string]interface{}) string {
	if id, ok := fields["task_id"].(string); ok {
		return id
	}
	return ""
}

func logEvent(e Event) {
	lvl := slog.LevelInfo
	switch e.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	attrs := make([]slog.Attr, 0, len(e.Fields)+1)
	attrs = append(attrs, slog.String("event", e.Name))
	for k, v := range e.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	msg := e.Message
	if msg == "" {
		msg = e.Name
	}
	slog.Default().LogAttrs(context.Background(), lvl, msg, attrs...)
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() int64 {
	return buffer.Total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}

// Named returns the buffered events with the given name, oldest first.
func Named(name string) []Event {
	var out []Event
	for _, e := range buffer.Snapshot() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
