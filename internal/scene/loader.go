package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrEmpty is returned when a scene file holds no scenes.
var ErrEmpty = errors.New("scene list is empty")

// LoadFile loads a scene list saved from the backend's scene endpoint.
func LoadFile(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}

	var l List
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse scene JSON: %w", err)
	}

	if len(l.Scenes) == 0 {
		return nil, ErrEmpty
	}
	if l.TotalScenes != 0 && l.TotalScenes != len(l.Scenes) {
		return nil, fmt.Errorf("scene count mismatch: total_scenes=%d, got %d", l.TotalScenes, len(l.Scenes))
	}

	l.Normalize()
	return &l, nil
}
