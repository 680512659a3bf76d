package backend

import "strings"

// TaskState is the client-side view of a backend job status.
type TaskState string

const (
	TaskQueued     TaskState = "queued"
	TaskProcessing TaskState = "processing"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
)

// ParseTaskState maps a wire status. "error" and "failed" are both
// failures; unrecognised values are treated as still processing.
func ParseTaskState(raw string) TaskState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending", "":
		return TaskQueued
	case "completed", "done":
		return TaskCompleted
	case "error", "failed":
		return TaskFailed
	default:
		return TaskProcessing
	}
}

// Terminal reports whether polling stops on this state.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskStatus is one status poll result.
type TaskStatus struct {
	State    TaskState `json:"-"`
	Raw      string    `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`
}

// PaymentCheck is the per-submission payment decision.
type PaymentCheck struct {
	RequiresPayment bool    `json:"requires_payment"`
	PaymentAmount   float64 `json:"payment_amount"`
}

// CreateRequest is the payload of one task creation.
type CreateRequest struct {
	Filename      string
	Content       []byte
	APIKey        string
	Provider      string
	EnableVideo   bool
	UseStoryboard bool
	CustomPrompt  string
}

// HistoryEntry is one past upload.
type HistoryEntry struct {
	Filename   string `json:"filename"`
	CreatedAt  string `json:"created_at"`
	SessionID  string `json:"session_id"`
	SceneCount int    `json:"generated_scene_count"`
}

// Viewable reports whether the entry can be opened for playback.
func (h HistoryEntry) Viewable() bool {
	return h.SessionID != "" && h.SceneCount > 0
}

// User is the logged-in account.
type User struct {
	Username string `json:"username"`
}
