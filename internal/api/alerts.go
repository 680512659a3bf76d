package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AaronLay10/SceneReel/internal/poller"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertTaskFailed          = "task_failed"
	AlertPollExhausted       = "poll_exhausted"
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Client    string                 `json:"client"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AlertConfig holds alert configuration.
type AlertConfig struct {
	WebhookURL string
	// How long a required dependency must stay down before alerting.
	MQTTDisconnectDelay     time.Duration
	PostgresDisconnectDelay time.Duration
}

// outage tracks one dependency's downtime so that a single alert goes out
// per outage and a recovery notice follows it.
type outage struct {
	alert     string
	severity  string
	message   string
	since     time.Time
	alerted   bool
	wasUp     bool
	delayFrom func(*AlertConfig) time.Duration
}

var (
	alertConfig = &AlertConfig{
		MQTTDisconnectDelay:     30 * time.Second,
		PostgresDisconnectDelay: 5 * time.Second,
	}
	alertMu     sync.Mutex
	alertsReady bool

	mqttOutage = &outage{
		alert:     AlertMQTTDisconnected,
		severity:  SeverityWarning,
		message:   "MQTT broker disconnected, remote players unavailable",
		wasUp:     true,
		delayFrom: func(c *AlertConfig) time.Duration { return c.MQTTDisconnectDelay },
	}
	postgresOutage = &outage{
		alert:     AlertPostgresUnavailable,
		severity:  SeverityCritical,
		message:   "PostgreSQL unavailable",
		wasUp:     true,
		delayFrom: func(c *AlertConfig) time.Duration { return c.PostgresDisconnectDelay },
	}
)

func durationEnv(name string, into *time.Duration) {
	raw := os.Getenv(name)
	if raw == "" {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("[api] ignoring %s=%q: %v", name, raw, err)
		return
	}
	*into = d
}

// InitAlerts reads the webhook and outage delays from the environment.
func InitAlerts() {
	alertMu.Lock()
	defer alertMu.Unlock()

	alertConfig.WebhookURL = os.Getenv("SCENEREEL_ALERT_WEBHOOK_URL")
	durationEnv("SCENEREEL_MQTT_ALERT_DELAY", &alertConfig.MQTTDisconnectDelay)
	durationEnv("SCENEREEL_POSTGRES_ALERT_DELAY", &alertConfig.PostgresDisconnectDelay)

	if alertConfig.WebhookURL != "" {
		log.Printf("[api] alerts enabled (mqtt_delay=%s, pg_delay=%s)",
			alertConfig.MQTTDisconnectDelay, alertConfig.PostgresDisconnectDelay)
	}

	for _, o := range []*outage{mqttOutage, postgresOutage} {
		o.since, o.alerted, o.wasUp = time.Time{}, false, true
	}
	alertsReady = true
}

// GetAlertWebhookURL returns the configured webhook URL (for testing).
func GetAlertWebhookURL() string {
	alertMu.Lock()
	defer alertMu.Unlock()
	return alertConfig.WebhookURL
}

// SendAlert sends an alert to the configured webhook (best-effort, non-blocking).
func SendAlert(event, severity, message string, details map[string]interface{}) {
	alertMu.Lock()
	webhookURL := alertConfig.WebhookURL
	alertMu.Unlock()

	if webhookURL == "" {
		log.Printf("[ALERT] %s severity=%s msg=%q details=%v", event, severity, message, details)
		return
	}

	client := GetClientName()
	if client == "" {
		client = "unknown"
	}

	payload := AlertPayload{
		Client:    client,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}

	go sendWebhook(webhookURL, payload)
}

// sendWebhook performs the actual HTTP POST (runs in goroutine).
func sendWebhook(url string, payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("alert: failed to marshal payload: %v", err)
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert: webhook POST failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("alert: webhook returned status %d", resp.StatusCode)
	}
}

// TaskFailed is the runtime's task-failure hook. Polling that gave up
// on transient errors is reported separately from a task the backend
// marked as failed.
func TaskFailed(taskID string, err error) {
	details := map[string]interface{}{"task_id": taskID, "error": err.Error()}

	metricsState.mu.Lock()
	if errors.Is(err, poller.ErrPollRetriesExhausted) {
		metricsState.pollExhausted++
		metricsState.mu.Unlock()
		SendAlert(AlertPollExhausted, SeverityWarning, "status polling gave up", details)
		return
	}
	metricsState.tasksFailed++
	metricsState.mu.Unlock()
	SendAlert(AlertTaskFailed, SeverityWarning, "generation task failed", details)
}

// observe folds one connectivity sample into the outage and sends the
// down or recovered alert when due. Callers hold alertMu.
func (o *outage) observe(up bool, now time.Time) {
	if up {
		if !o.wasUp && o.alerted {
			go SendAlert(o.alert, SeverityInfo, o.message+": recovered", map[string]interface{}{
				"recovered_at": now.UTC().Format(time.RFC3339),
			})
		}
		o.since, o.alerted, o.wasUp = time.Time{}, false, true
		return
	}

	if o.wasUp {
		o.since = now
	}
	o.wasUp = false

	down := now.Sub(o.since)
	if o.alerted || down < o.delayFrom(alertConfig) {
		return
	}
	o.alerted = true
	go SendAlert(o.alert, o.severity, o.message, map[string]interface{}{
		"disconnected_since":   o.since.UTC().Format(time.RFC3339),
		"disconnected_seconds": int(down.Seconds()),
	})
}

// CheckAndAlertMQTT records broker connectivity for alerting.
func CheckAndAlertMQTT(connected bool) {
	alertMu.Lock()
	defer alertMu.Unlock()
	if alertsReady {
		mqttOutage.observe(connected, time.Now())
	}
}

// CheckAndAlertPostgres records database connectivity for alerting.
func CheckAndAlertPostgres(connected bool) {
	alertMu.Lock()
	defer alertMu.Unlock()
	if alertsReady {
		postgresOutage.observe(connected, time.Now())
	}
}

// StartAlertMonitor samples readiness every checkInterval. Optional
// dependencies count as up, since the runtime works without them.
func StartAlertMonitor(checkInterval time.Duration) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for range ticker.C {
			readiness.mu.RLock()
			mqttUp := readiness.mqttConnected || readiness.mqttOptional
			postgresUp := readiness.postgresConnected || readiness.postgresOptional
			readiness.mu.RUnlock()

			CheckAndAlertMQTT(mqttUp)
			CheckAndAlertPostgres(postgresUp)
		}
	}()
}
