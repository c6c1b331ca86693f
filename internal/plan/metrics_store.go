package plan

import "sync"

type metricsKey struct {
	Tenant string
	Date   string
	Engine string
}

var (
	metricsMu    sync.Mutex
	metricsStore = map[metricsKey]EngineMetrics{}
)

// RecordEngineMetrics keeps the latest run metrics per tenant/date/engine
// for the admin views.
func RecordEngineMetrics(tenant, date, engine string, m EngineMetrics) {
	metricsMu.Lock()
	metricsStore[metricsKey{Tenant: tenant, Date: date, Engine: engine}] = m
	metricsMu.Unlock()
}

// EngineMetricsFor returns all recorded runs for a tenant and date, keyed
// by engine tag.
func EngineMetricsFor(tenant, date string) map[string]EngineMetrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	out := map[string]EngineMetrics{}
	for k, v := range metricsStore {
		if k.Tenant == tenant && k.Date == date {
			out[k.Engine] = v
		}
	}
	return out
}
