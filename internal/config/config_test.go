package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 2000*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.AutoAdvanceDebounce())
	assert.Equal(t, 150, cfg.Polling.MaxConsecutiveFailures)
	assert.Equal(t, 1.0, cfg.Polling.BackoffMultiplier)
	assert.Equal(t, 30*time.Second, cfg.PollMaxDelay())
	assert.Equal(t, 100, cfg.Playback.InitialVolume)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "scenereel", cfg.MQTT.TopicPrefix)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "client.yaml", `
version: 1
backend:
  base_url: https://reel.example.com/
polling:
  interval_ms: 250
  max_consecutive_failures: -1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://reel.example.com", cfg.Backend.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, -1, cfg.Polling.MaxConsecutiveFailures)
	assert.Equal(t, 500*time.Millisecond, cfg.AutoAdvanceDebounce())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "client.toml", `
version = 1

[playback]
auto_advance_debounce_ms = 50
initial_volume = 40

[mqtt]
broker = "tcp://localhost:1883"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.AutoAdvanceDebounce())
	assert.Equal(t, 40, cfg.Playback.InitialVolume)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, 2000*time.Millisecond, cfg.PollInterval())
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	path := writeFile(t, "client.yaml", "version: 2\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config version")
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := writeFile(t, "client.json", `{"version": 1}`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")

	store, err := OpenFileStore(path)
	require.NoError(t, err)

	_, ok, err := store.Get("api_key")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("api_key", "sk-123"))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get("api_key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-123", v)

	require.NoError(t, reopened.Delete("api_key"))
	require.NoError(t, reopened.Delete("missing"))
	_, ok, _ = reopened.Get("api_key")
	assert.False(t, ok)
}

func TestPreferencesProviderDefaultsToQiniu(t *testing.T) {
	store, err := OpenFileStore(filepath.Join(t.TempDir(), "prefs.yaml"))
	require.NoError(t, err)
	prefs := NewPreferences(store)

	provider, err := prefs.Provider()
	require.NoError(t, err)
	assert.Equal(t, "qiniu", provider)

	require.NoError(t, prefs.SetProvider("openai"))
	provider, err = prefs.Provider()
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)
}

func TestPreferencesCredentialFallsBackToEnv(t *testing.T) {
	t.Setenv("SCENEREEL_API_KEY", "from-env")
	t.Setenv("SCENEREEL_API_KEY_FILE", "")

	store, err := OpenFileStore(filepath.Join(t.TempDir(), "prefs.yaml"))
	require.NoError(t, err)
	prefs := NewPreferences(store)

	key, err := prefs.Credential()
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	require.NoError(t, prefs.SetCredential("stored"))
	key, err = prefs.Credential()
	require.NoError(t, err)
	assert.Equal(t, "stored", key)

	require.NoError(t, prefs.SetCredential(""))
	key, err = prefs.Credential()
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)
}

func TestSessionHintsSurviveOnlySettingsRoundTrip(t *testing.T) {
	var hints SessionHints

	hints.SetSelectedFilename("chapter1.txt")
	name, ok := hints.Restore(RestoreFromSettings)
	assert.True(t, ok)
	assert.Equal(t, "chapter1.txt", name)

	_, ok = hints.Restore(RestoreFresh)
	assert.False(t, ok)

	_, ok = hints.Restore(RestoreFromSettings)
	assert.False(t, ok, "hint must be gone after a fresh restore")
}
