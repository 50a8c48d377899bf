package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics records application measurements.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is a metric label.
type Tag struct {
	Key   string
	Value string
}

// T creates a new Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(name string, value int64, tags ...Tag)    {}
func (NoopMetrics) Gauge(name string, value float64, tags ...Tag)    {}
func (NoopMetrics) Timing(name string, d time.Duration, tags ...Tag) {}

// InMemoryMetrics keeps measurements in memory. Used in tests and exposed
// on the worker health endpoint.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]float64
	timings  map[string][]time.Duration
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		timings:  make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[formatKey(name, tags)] += value
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[formatKey(name, tags)] = value
}

func (m *InMemoryMetrics) Timing(name string, d time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	m.timings[key] = append(m.timings[key], d)
}

// GetCounter returns the current value of a counter.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[formatKey(name, tags)]
}

// GetGauge returns the current value of a gauge.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[formatKey(name, tags)]
}

// GetTimings returns every recorded duration.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.timings[formatKey(name, tags)]...)
}

// Snapshot returns counters and gauges keyed by their formatted name.
func (m *InMemoryMetrics) Snapshot() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.counters)+len(m.gauges))
	for k, v := range m.counters {
		out[k] = float64(v)
	}
	for k, v := range m.gauges {
		out[k] = v
	}
	return out
}

// formatKey renders name:k=v with tags sorted so that label order does not
// split a series.
func formatKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := append([]Tag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	b.WriteString(name)
	for _, t := range sorted {
		b.WriteString(":")
		b.WriteString(t.Key)
		b.WriteString("=")
		b.WriteString(t.Value)
	}
	return b.String()
}

// Metric names.
const (
	MetricSweepRuns     = "tracklane.sweep.runs"
	MetricSweepFired    = "tracklane.sweep.fired"
	MetricSweepFailed   = "tracklane.sweep.failed"
	MetricSweepSkipped  = "tracklane.sweep.skipped"
	MetricSweepDuration = "tracklane.sweep.duration"

	MetricDispatchDelivered = "tracklane.dispatch.delivered"
	MetricDispatchFailed    = "tracklane.dispatch.failed"
	MetricDispatchOffline   = "tracklane.dispatch.offline"

	MetricPresenceConnections = "tracklane.presence.connections"
	MetricPresenceUsers       = "tracklane.presence.users"

	MetricNotificationsCreated = "tracklane.notifications.created"

	MetricOutboxMessages = "tracklane.outbox.messages"
	MetricOutboxLag      = "tracklane.outbox.lag_seconds"
	MetricOutboxCleaned  = "tracklane.outbox.cleaned"
)
