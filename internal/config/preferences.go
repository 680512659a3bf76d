package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultProvider is used when no generation provider has been chosen.
const DefaultProvider = "qiniu"

const (
	keyProvider   = "api_provider"
	keyCredential = "api_key"
)

// KV is a durable string key-value store.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// FileStore is a KV persisted as a flat YAML map.
type FileStore struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// DefaultPreferencesPath returns the per-user preferences file location.
func DefaultPreferencesPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "scenereel", "preferences.yaml"), nil
}

// OpenFileStore loads the store at path. A missing file is an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, values: make(map[string]string)}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, &s.values); err != nil {
		return nil, fmt.Errorf("failed to parse preferences %s: %w", path, err)
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	return s, nil
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.flushLocked()
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	b, err := yaml.Marshal(s.values)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Preferences holds the provider and credential the user configured.
type Preferences struct {
	store KV
}

func NewPreferences(store KV) *Preferences {
	return &Preferences{store: store}
}

// Provider returns the configured provider, or DefaultProvider.
func (p *Preferences) Provider() (string, error) {
	v, ok, err := p.store.Get(keyProvider)
	if err != nil {
		return "", err
	}
	if !ok || v == "" {
		return DefaultProvider, nil
	}
	return v, nil
}

func (p *Preferences) SetProvider(provider string) error {
	return p.store.Set(keyProvider, provider)
}

// Credential returns the stored API key. When none is stored it falls
// back to SCENEREEL_API_KEY (or SCENEREEL_API_KEY_FILE).
func (p *Preferences) Credential() (string, error) {
	v, ok, err := p.store.Get(keyCredential)
	if err != nil {
		return "", err
	}
	if ok && v != "" {
		return v, nil
	}
	return ResolveSecret("SCENEREEL_API_KEY")
}

func (p *Preferences) SetCredential(key string) error {
	if key == "" {
		return p.store.Delete(keyCredential)
	}
	return p.store.Set(keyCredential, key)
}
