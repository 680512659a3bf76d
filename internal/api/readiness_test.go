package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	w := httptest.NewRecorder()
	healthHandler(w, httptest.NewRequest("GET", "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "scenereel" {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestDependencyCheck(t *testing.T) {
	tests := []struct {
		connected, optional bool
		status              string
		ok                  bool
	}{
		{true, false, "ok", true},
		{true, true, "ok", true},
		{false, true, "unavailable", true},
		{false, false, "not_ready", false},
	}
	for _, tt := range tests {
		got, ok := dependencyCheck(tt.connected, tt.optional)
		if got.Status != tt.status || ok != tt.ok {
			t.Errorf("dependencyCheck(%v, %v) = %+v %v, want %s %v",
				tt.connected, tt.optional, got, ok, tt.status, tt.ok)
		}
		if got.Optional != tt.optional && tt.status != "not_ready" {
			t.Errorf("dependencyCheck(%v, %v) lost the optional flag", tt.connected, tt.optional)
		}
	}
}

// setReadiness replaces the whole readiness state and restores the
// package defaults when the test ends.
func setReadiness(t *testing.T, runtime, mqtt, mqttOpt, pg, pgOpt bool) {
	t.Helper()
	readiness.mu.Lock()
	readiness.runtimeReady = runtime
	readiness.mqttConnected, readiness.mqttOptional = mqtt, mqttOpt
	readiness.postgresConnected, readiness.postgresOptional = pg, pgOpt
	readiness.mu.Unlock()
	t.Cleanup(func() {
		readiness.mu.Lock()
		readiness.runtimeReady = false
		readiness.mqttConnected, readiness.mqttOptional = false, true
		readiness.postgresConnected, readiness.postgresOptional = false, true
		readiness.mu.Unlock()
	})
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name                    string
		runtime                 bool
		mqtt, mqttOpt, pg, pgOpt bool
		wantCode                int
		wantChecks              map[string]string
		wantReasons             []string
	}{
		{
			name: "headless shell", runtime: true, mqttOpt: true, pgOpt: true,
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"runtime": "ok", "mqtt": "unavailable", "postgres": "unavailable"},
		},
		{
			name: "fully connected", runtime: true, mqtt: true, pg: true,
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"runtime": "ok", "mqtt": "ok", "postgres": "ok"},
		},
		{
			name: "runtime not wired", mqtt: true, pgOpt: true,
			wantCode:    http.StatusServiceUnavailable,
			wantChecks:  map[string]string{"runtime": "not_ready", "mqtt": "ok"},
			wantReasons: []string{"runtime not ready"},
		},
		{
			name: "remote players lost", runtime: true, pgOpt: true,
			wantCode:    http.StatusServiceUnavailable,
			wantChecks:  map[string]string{"mqtt": "not_ready"},
			wantReasons: []string{"mqtt not connected"},
		},
		{
			name:        "everything down",
			wantCode:    http.StatusServiceUnavailable,
			wantChecks:  map[string]string{"runtime": "not_ready", "mqtt": "not_ready", "postgres": "not_ready"},
			wantReasons: []string{"runtime not ready", "mqtt not connected", "postgres not connected"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setReadiness(t, tt.runtime, tt.mqtt, tt.mqttOpt, tt.pg, tt.pgOpt)

			w := httptest.NewRecorder()
			readyHandler(w, httptest.NewRequest("GET", "/ready", nil))
			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, w.Code)
			}

			var resp ReadinessResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Ready != (tt.wantCode == http.StatusOK) {
				t.Errorf("ready=%v does not match status %d", resp.Ready, w.Code)
			}
			for name, status := range tt.wantChecks {
				if got := resp.Checks[name].Status; got != status {
					t.Errorf("check %s: expected %s, got %s", name, status, got)
				}
			}
			for _, reason := range tt.wantReasons {
				if !strings.Contains(resp.NotReadyMsg, reason) {
					t.Errorf("expected %q in message %q", reason, resp.NotReadyMsg)
				}
			}
		})
	}
}

func TestSessionDrivesRuntimeCheck(t *testing.T) {
	setReadiness(t, false, false, true, false, true)

	SetSession(&fakeSession{})
	defer SetSession(nil)

	w := httptest.NewRecorder()
	readyHandler(w, httptest.NewRequest("GET", "/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("installing a session should make the API ready, got %d", w.Code)
	}

	SetSession(nil)
	w = httptest.NewRecorder()
	readyHandler(w, httptest.NewRequest("GET", "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("removing the session should make the API unready, got %d", w.Code)
	}
}

func TestDependencySetters(t *testing.T) {
	setReadiness(t, true, false, true, false, true)

	SetMQTTState(false, false)
	w := httptest.NewRecorder()
	readyHandler(w, httptest.NewRequest("GET", "/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("required broker down should be unready, got %d", w.Code)
	}

	SetMQTTState(true, false)
	SetPostgresState(false, false)
	w = httptest.NewRecorder()
	readyHandler(w, httptest.NewRequest("GET", "/ready", nil))
	if !strings.Contains(w.Body.String(), "postgres not connected") {
		t.Errorf("expected postgres reason, got %s", w.Body.String())
	}

	SetPostgresState(true, false)
	w = httptest.NewRecorder()
	readyHandler(w, httptest.NewRequest("GET", "/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected ready once both connect, got %d", w.Code)
	}
}
