package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/SceneReel/internal/config"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	ClientID  string                 `json:"client_id"`
	TaskID    *string                `json:"task_id,omitempty"`
}

// Client manages the Postgres connection for the event log and the
// durable preferences table.
type Client struct {
	db       *sql.DB
	clientID string

	mu          sync.Mutex
	errorLogged bool
}

// New creates a new Postgres client using environment variables.
// clientID scopes every row to one installation of the player.
func New(clientID string) (*Client, error) {
	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", connString(password))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:       db,
		clientID: clientID,
	}

	if err := client.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

func connString(password string) string {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "scenereel")
	dbname := getEnv("PGDATABASE", "scenereel")
	sslmode := getEnv("PGSSLMODE", "disable")

	parts := []string{
		"host=" + host,
		"port=" + port,
		"user=" + user,
	}
	if password != "" {
		parts = append(parts, "password="+password)
	}
	parts = append(parts, "dbname="+dbname, "sslmode="+sslmode)
	return strings.Join(parts, " ")
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS client_events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			client_id  TEXT NOT NULL,
			task_id    TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_client_events_ts ON client_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_client_events_task ON client_events(task_id);

		CREATE TABLE IF NOT EXISTS preferences (
			client_id  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (client_id, key)
		);
	`
	_, err := c.db.Exec(query)
	return err
}

// Append inserts an event into the database.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, taskID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var taskPtr *string
	if taskID != "" {
		taskPtr = &taskID
	}

	query := `
		INSERT INTO client_events (ts, level, event, msg, fields, client_id, task_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.clientID, taskPtr)
	return err
}

// Query returns the last N events in descending order by timestamp.
func (c *Client) Query(limit int) ([]EventRow, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, client_id, task_id
		FROM client_events
		WHERE client_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	return c.queryRows(query, c.clientID, clampLimit(limit))
}

// QueryTask returns the last N events recorded for one task.
func (c *Client) QueryTask(taskID string, limit int) ([]EventRow, error) {
	query := `
		SELECT event_id, ts, level, event, msg, fields, client_id, task_id
		FROM client_events
		WHERE client_id = $1 AND task_id = $2
		ORDER BY ts DESC
		LIMIT $3
	`
	return c.queryRows(query, c.clientID, taskID, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 10000 {
		return 10000
	}
	return limit
}

func (c *Client) queryRows(query string, args ...interface{}) ([]EventRow, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, taskID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.ClientID, &taskID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if taskID.Valid {
			e.TaskID = &taskID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// MarkErrorLogged records that an append failure was reported, so a
// dead database is reported once per client.
func (c *Client) MarkErrorLogged() {
	c.mu.Lock()
	c.errorLogged = true
	c.mu.Unlock()
}

// HasLoggedError returns true if an error has been logged.
func (c *Client) HasLoggedError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorLogged
}
