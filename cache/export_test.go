package cache

import "github.com/prometheus/client_golang/prometheus"

// Counter exposes a labelled counter for assertions.
func (m *Metrics) Counter(name, outcome string) prometheus.Counter {
	switch name {
	case "lookups":
		return m.lookups.WithLabelValues(outcome)
	case "writes":
		return m.writes.WithLabelValues(outcome)
	default:
		return m.generations.WithLabelValues(outcome)
	}
}
