package config

import "sync"

// RestoreCause says how the client arrived at the submission screen.
type RestoreCause int

const (
	// RestoreFresh is a cold start or any reload that was not a
	// round-trip through settings.
	RestoreFresh RestoreCause = iota
	// RestoreFromSettings is a return from the settings screen.
	RestoreFromSettings
)

// SessionHints is the session-scoped store. Its only entry is the name
// of the file the user had selected before leaving for settings.
type SessionHints struct {
	mu               sync.Mutex
	selectedFilename string
}

func (h *SessionHints) SetSelectedFilename(name string) {
	h.mu.Lock()
	h.selectedFilename = name
	h.mu.Unlock()
}

// Restore returns the remembered filename when the client came back from
// settings. Any other cause clears the hint.
func (h *SessionHints) Restore(cause RestoreCause) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cause != RestoreFromSettings {
		h.selectedFilename = ""
		return "", false
	}
	name := h.selectedFilename
	return name, name != ""
}

// Clear drops the hint.
func (h *SessionHints) Clear() {
	h.mu.Lock()
	h.selectedFilename = ""
	h.mu.Unlock()
}
