// Package health reports the state of the RPC providers and optional
// backing stores, and serves it with the Prometheus metrics.
package health

import (
	"context"
	"sort"
	"time"

	"github.com/vietddude/ticketchain/internal/infra/rpc"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ProviderHealth is the view of one RPC provider.
type ProviderHealth struct {
	Name      string        `json:"name"`
	Available bool          `json:"available"`
	Status    string        `json:"status,omitempty"`
	ErrorRate float64       `json:"error_rate"`
	Latency   time.Duration `json:"latency_ns"`
}

// ComponentHealth is the result of one dependency check.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	ChainID      string                     `json:"chain_id"`
	Providers    []ProviderHealth           `json:"providers"`
	Components   map[string]ComponentHealth `json:"components,omitempty"`
}

// ProviderStats returns the current provider health keyed by name.
// *rpc.Client satisfies it through its ProviderStats method.
type ProviderStats interface {
	ProviderStats() map[string]rpc.HealthStatus
}

// CheckFunc probes a dependency such as the database or Redis.
type CheckFunc func(ctx context.Context) error

// Monitor aggregates provider and component health.
type Monitor struct {
	chainID   string
	providers ProviderStats
	checks    map[string]CheckFunc
	timeout   time.Duration
}

// NewMonitor creates a monitor for the chain's providers.
func NewMonitor(chainID string, providers ProviderStats) *Monitor {
	return &Monitor{
		chainID:   chainID,
		providers: providers,
		checks:    make(map[string]CheckFunc),
		timeout:   3 * time.Second,
	}
}

// AddCheck registers a named dependency probe. A failing probe degrades
// the system but never makes it critical.
func (m *Monitor) AddCheck(name string, fn CheckFunc) {
	m.checks[name] = fn
}

// CheckHealth runs every check. The system is critical when no provider
// is available.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	report := HealthReport{
		SystemStatus: StatusHealthy,
		ChainID:      m.chainID,
	}

	available := 0
	for name, st := range m.providers.ProviderStats() {
		ph := ProviderHealth{
			Name:      name,
			Available: st.Available,
			ErrorRate: st.ErrorRate,
			Latency:   st.Latency,
		}
		if st.MonitorStats != nil {
			ph.Status = st.MonitorStats.Status.String()
		}
		if st.Available {
			available++
		} else {
			report.SystemStatus = StatusDegraded
		}
		report.Providers = append(report.Providers, ph)
	}
	sort.Slice(report.Providers, func(i, j int) bool {
		return report.Providers[i].Name < report.Providers[j].Name
	})

	if len(m.checks) > 0 {
		report.Components = make(map[string]ComponentHealth, len(m.checks))
	}
	for name, check := range m.checks {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := check(cctx)
		cancel()
		if err != nil {
			report.Components[name] = ComponentHealth{Status: StatusDegraded, Error: err.Error()}
			report.SystemStatus = StatusDegraded
			continue
		}
		report.Components[name] = ComponentHealth{Status: StatusHealthy}
	}

	if available == 0 {
		report.SystemStatus = StatusCritical
	}
	return report
}
