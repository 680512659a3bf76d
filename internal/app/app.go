// Package app assembles the client from configuration: backend client,
// preference store and optional Postgres persistence.
package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/AaronLay10/SceneReel/internal/backend"
	"github.com/AaronLay10/SceneReel/internal/config"
	"github.com/AaronLay10/SceneReel/internal/events"
	"github.com/AaronLay10/SceneReel/internal/storage/postgres"
	"github.com/AaronLay10/SceneReel/internal/telemetry"
)

// Env is everything the commands share.
type Env struct {
	Config      *config.ClientConfig
	Backend     *backend.Client
	Preferences *config.Preferences
	Postgres    *postgres.Client
	Logger      *slog.Logger
}

// LoadDotEnv reads KEY=VALUE pairs from path into the environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// LoadConfig returns the defaults when path is empty.
func LoadConfig(path string) (*config.ClientConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// Open builds the shared environment. Postgres failures are logged and
// fall back to the file preference store.
func Open(cfg *config.ClientConfig, logLevel string) (*Env, error) {
	env := &Env{
		Config: cfg,
		Logger: telemetry.SetupLogging(os.Stderr, telemetry.ParseLevel(logLevel)),
	}

	cookie, err := config.ResolveSecret("SCENEREEL_SESSION")
	if err != nil {
		return nil, err
	}
	env.Backend, err = backend.New(backend.Options{
		BaseURL:           cfg.Backend.BaseURL,
		Timeout:           cfg.HTTPTimeout(),
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
		SessionCookie:     cookie,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Postgres {
		pg, err := postgres.New(cfg.MQTT.ClientID)
		if err != nil {
			log.Printf("[app] postgres unavailable, using file preferences: %v", err)
		} else {
			env.Postgres = pg
			events.SetPostgresClient(pg)
		}
	}

	store, err := preferenceStore(cfg, env.Postgres)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Preferences = config.NewPreferences(store)
	return env, nil
}

func preferenceStore(cfg *config.ClientConfig, pg *postgres.Client) (config.KV, error) {
	if pg != nil {
		return pg.Preferences(), nil
	}
	path := cfg.Storage.PreferencesPath
	if path == "" {
		var err error
		if path, err = config.DefaultPreferencesPath(); err != nil {
			return nil, fmt.Errorf("failed to locate preferences: %w", err)
		}
	}
	return config.OpenFileStore(path)
}

// Close releases the database connection, if any.
func (e *Env) Close() {
	if e.Postgres != nil {
		events.SetPostgresClient(nil)
		e.Postgres.Close()
		e.Postgres = nil
	}
}
