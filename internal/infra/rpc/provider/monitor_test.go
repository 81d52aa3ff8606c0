package provider

import (
	"testing"
	"time"
)

func TestMonitorRecordsRequests(t *testing.T) {
	m := NewProviderMonitor()

	m.RecordRequest(100 * time.Millisecond)
	for i := 0; i < 100; i++ {
		m.RecordRequest(50 * time.Millisecond)
	}

	stats := m.GetStats()
	if stats.RequestsLastHour != 101 {
		t.Errorf("Expected 101 requests, got %d", stats.RequestsLastHour)
	}
	if stats.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", stats.Status)
	}
	if avg := m.GetAverageLatency(); avg != 50*time.Millisecond {
		t.Errorf("Expected average over the last 100 requests to be 50ms, got %v", avg)
	}
}

func TestMonitorThrottle(t *testing.T) {
	m := NewProviderMonitor()

	m.RecordThrottle(429, "30")
	if status := m.CheckProviderStatus(); status != StatusThrottled {
		t.Errorf("Expected throttled, got %s", status)
	}
	if ra := m.GetRetryAfter(); ra <= 0 || ra > 30*time.Second {
		t.Errorf("Expected retry after within 30s, got %v", ra)
	}

	m.RecordThrottle(403, "")
	if status := m.CheckProviderStatus(); status != StatusBlocked {
		t.Errorf("Expected blocked, got %s", status)
	}
}

func TestMonitorDegraded(t *testing.T) {
	m := NewProviderMonitor()
	for i := 0; i < 11; i++ {
		m.RecordRequest(5 * time.Second)
	}
	if status := m.CheckProviderStatus(); status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", status)
	}
}

func TestDetectThrottlePattern(t *testing.T) {
	m := NewProviderMonitor()
	if !m.DetectThrottlePattern("Project Rate Limit reached") {
		t.Error("expected throttle pattern to match case-insensitively")
	}
	if m.DetectThrottlePattern("execution reverted") {
		t.Error("did not expect a revert to look like throttling")
	}
}
