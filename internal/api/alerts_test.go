package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AaronLay10/SceneReel/internal/poller"
)

func TestTaskFailedSendsAlerts(t *testing.T) {
	received := make(chan AlertPayload, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p AlertPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			received <- p
		}
	}))
	defer hook.Close()

	t.Setenv("SCENEREEL_ALERT_WEBHOOK_URL", hook.URL)
	InitAlerts()
	defer func() {
		alertMu.Lock()
		alertConfig.WebhookURL = ""
		alertMu.Unlock()
	}()
	SetClientName("living-room")

	metricsState.mu.Lock()
	metricsState.tasksFailed, metricsState.pollExhausted = 0, 0
	metricsState.mu.Unlock()

	TaskFailed("t-1", errors.New("backend reported error"))
	TaskFailed("t-2", fmt.Errorf("task t-2: %w", poller.ErrPollRetriesExhausted))

	got := map[string]AlertPayload{}
	for len(got) < 2 {
		select {
		case p := <-received:
			got[p.Event] = p
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for alerts, got %v", got)
		}
	}

	if p := got[AlertTaskFailed]; p.Client != "living-room" || p.Details["task_id"] != "t-1" {
		t.Errorf("unexpected task failure alert: %+v", p)
	}
	if p := got[AlertPollExhausted]; p.Details["task_id"] != "t-2" {
		t.Errorf("unexpected poll exhausted alert: %+v", p)
	}

	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	if metricsState.tasksFailed != 1 || metricsState.pollExhausted != 1 {
		t.Errorf("expected one of each counter, got %d %d", metricsState.tasksFailed, metricsState.pollExhausted)
	}
}

func TestOutageAlertsOncePerOutage(t *testing.T) {
	received := make(chan AlertPayload, 8)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p AlertPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			received <- p
		}
	}))
	defer hook.Close()

	t.Setenv("SCENEREEL_ALERT_WEBHOOK_URL", hook.URL)
	t.Setenv("SCENEREEL_MQTT_ALERT_DELAY", "10s")
	InitAlerts()
	defer func() {
		alertMu.Lock()
		alertConfig.WebhookURL = ""
		alertConfig.MQTTDisconnectDelay = 30 * time.Second
		alertMu.Unlock()
	}()
	if GetAlertWebhookURL() != hook.URL {
		t.Fatalf("expected webhook %s, got %s", hook.URL, GetAlertWebhookURL())
	}

	start := time.Now()
	alertMu.Lock()
	mqttOutage.observe(false, start)
	mqttOutage.observe(false, start.Add(5*time.Second))
	mqttOutage.observe(false, start.Add(11*time.Second))
	mqttOutage.observe(false, start.Add(20*time.Second))
	mqttOutage.observe(true, start.Add(21*time.Second))
	alertMu.Unlock()

	var got []AlertPayload
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case p := <-received:
			got = append(got, p)
		case <-deadline:
			t.Fatalf("timed out waiting for alerts, got %v", got)
		}
	}
	select {
	case p := <-received:
		t.Fatalf("unexpected extra alert: %+v", p)
	case <-time.After(100 * time.Millisecond):
	}

	severities := map[string]bool{}
	for _, p := range got {
		if p.Event != AlertMQTTDisconnected {
			t.Errorf("expected %s, got %s", AlertMQTTDisconnected, p.Event)
		}
		severities[p.Severity] = true
	}
	if !severities[SeverityWarning] || !severities[SeverityInfo] {
		t.Errorf("expected a warning and a recovery, got %v", got)
	}
}
