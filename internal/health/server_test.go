package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vietddude/ticketchain/internal/infra/rpc"
)

type staticStats map[string]rpc.HealthStatus

func (s staticStats) ProviderStats() map[string]rpc.HealthStatus { return s }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name      string
		providers staticStats
		checkErr  error
		want      SystemStatus
	}{
		{
			name:      "all up",
			providers: staticStats{"anvil": {Available: true}},
			want:      StatusHealthy,
		},
		{
			name:      "one provider down",
			providers: staticStats{"a": {Available: true}, "b": {Available: false}},
			want:      StatusDegraded,
		},
		{
			name:      "database down",
			providers: staticStats{"a": {Available: true}},
			checkErr:  errors.New("connection refused"),
			want:      StatusDegraded,
		},
		{
			name:      "no provider available",
			providers: staticStats{"a": {Available: false}},
			want:      StatusCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor("31337", tt.providers)
			m.AddCheck("database", func(context.Context) error { return tt.checkErr })

			report := m.CheckHealth(context.Background())
			if report.SystemStatus != tt.want {
				t.Errorf("expected %s, got %s", tt.want, report.SystemStatus)
			}
			if len(report.Providers) != len(tt.providers) {
				t.Errorf("expected %d providers, got %d", len(tt.providers), len(report.Providers))
			}
		})
	}
}

func TestServer_Endpoints(t *testing.T) {
	up := NewServer(NewMonitor("31337", staticStats{"anvil": {Available: true}}), 0)
	rec := get(t, up.Handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != "healthy" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	down := NewServer(NewMonitor("31337", staticStats{"anvil": {Available: false}}), 0)
	if rec := get(t, down.Handler(), "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	rec = get(t, up.Handler(), "/health/detailed")
	var report HealthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.ChainID != "31337" || len(report.Providers) != 1 || report.Providers[0].Name != "anvil" {
		t.Errorf("unexpected report %+v", report)
	}

	if rec := get(t, up.Handler(), "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("expected metrics endpoint, got %d", rec.Code)
	}
}
