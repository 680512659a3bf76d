package postgres

import (
	"database/sql"
	"errors"
)

// PreferenceStore exposes the preferences table as a key-value store
// satisfying config.KV.
type PreferenceStore struct {
	client *Client
}

// Preferences returns the durable key-value view of this client.
func (c *Client) Preferences() *PreferenceStore {
	return &PreferenceStore{client: c}
}

// Get returns the stored value and whether the key exists.
func (s *PreferenceStore) Get(key string) (string, bool, error) {
	var value string
	err := s.client.db.QueryRow(
		`SELECT value FROM preferences WHERE client_id = $1 AND key = $2`,
		s.client.clientID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set upserts a value.
func (s *PreferenceStore) Set(key, value string) error {
	_, err := s.client.db.Exec(`
		INSERT INTO preferences (client_id, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (client_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, s.client.clientID, key, value)
	return err
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *PreferenceStore) Delete(key string) error {
	_, err := s.client.db.Exec(
		`DELETE FROM preferences WHERE client_id = $1 AND key = $2`,
		s.client.clientID, key,
	)
	return err
}
