package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AaronLay10/SceneReel/internal/events"
	"github.com/AaronLay10/SceneReel/internal/playback"
	"github.com/AaronLay10/SceneReel/internal/version"
)

var metricsState = &MetricsState{}

// MetricsState holds process-level values for the /metrics endpoint.
type MetricsState struct {
	mu            sync.RWMutex
	startTime     time.Time
	clientName    string
	tasksFailed   int64
	pollExhausted int64
}

// InitMetrics initializes the metrics system. Must be called at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
}

// SetClientName sets the client label on every metric and alert.
func SetClientName(name string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.clientName = name
}

// GetClientName returns the current client label.
func GetClientName() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.clientName
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	metricsState.mu.RLock()
	startTime := metricsState.startTime
	clientName := metricsState.clientName
	tasksFailed := metricsState.tasksFailed
	pollExhausted := metricsState.pollExhausted
	metricsState.mu.RUnlock()

	readiness.mu.RLock()
	runtimeReady := readiness.runtimeReady
	mqttConnected := readiness.mqttConnected
	postgresConnected := readiness.postgresConnected
	readiness.mu.RUnlock()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
	}

	labels := fmt.Sprintf(`client="%s",instance="%s",version="%s"`, clientName, hostname, version.Version)

	writeMetric("scenereel_uptime_seconds", "gauge",
		"Number of seconds since the process started", time.Since(startTime).Seconds(), labels)
	writeMetric("scenereel_runtime_ready", "gauge",
		"Whether the session runtime is wired (1) or not (0)", boolGauge(runtimeReady), labels)
	writeMetric("scenereel_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount(), labels)
	writeMetric("scenereel_mqtt_connected", "gauge",
		"Whether MQTT broker is connected (1) or not (0)", boolGauge(mqttConnected), labels)
	writeMetric("scenereel_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", boolGauge(postgresConnected), labels)
	writeMetric("scenereel_ws_clients", "gauge",
		"Number of active WebSocket client connections", events.SubscriberCount(), labels)
	writeMetric("scenereel_tasks_failed_total", "counter",
		"Tasks that ended in a terminal failure", tasksFailed, labels)
	writeMetric("scenereel_poll_exhausted_total", "counter",
		"Poll runs that gave up after repeated transient errors", pollExhausted, labels)

	s := currentSession()
	if s == nil {
		return
	}
	st := s.Progress()
	writeMetric("scenereel_task_progress", "gauge",
		"Progress of the current task (0-100)", st.Progress, labels)
	writeMetric("scenereel_scenes_loaded", "gauge",
		"Number of scenes in the playback session", len(st.Playback.Scenes), labels)
	writeMetric("scenereel_playback_playing", "gauge",
		"Whether playback is running (1) or not (0)", boolGauge(st.Playback.PlayState == playback.Playing), labels)
	if st.Poll != nil {
		writeMetric("scenereel_poll_retries", "gauge",
			"Transient retries of the current poll run", st.Poll.Retries, labels)
	}
}
