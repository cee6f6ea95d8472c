// Package metrics keeps in-process counters and timings for the sweep
// flows. Values live in memory only and reset on restart.
package metrics

import (
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"
)

const maxSamples = 200

// Manager holds every metric keyed by path ("scan/duration", "delete/result").
type Manager struct {
	mu          sync.RWMutex
	timings     map[string]*TimingMetric
	counters    map[string]*CounterMetric
	successFail map[string]*SuccessFailMetric
	outcomes    map[string]*OutcomeMetric
}

func New() *Manager {
	return &Manager{
		timings:     make(map[string]*TimingMetric),
		counters:    make(map[string]*CounterMetric),
		successFail: make(map[string]*SuccessFailMetric),
		outcomes:    make(map[string]*OutcomeMetric),
	}
}

// buildPath joins topic and function into a metric path.
func buildPath(topic, function string) string {
	if function == "" {
		return topic
	}
	return fmt.Sprintf("%s/%s", topic, function)
}

// lookup returns the metric at path in table, creating it with mk.
func lookup[T any](m *Manager, table map[string]*T, path string, mk func() *T) *T {
	m.mu.RLock()
	metric, ok := table[path]
	m.mu.RUnlock()
	if ok {
		return metric
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if metric, ok = table[path]; !ok {
		metric = mk()
		table[path] = metric
	}
	return metric
}

// RecordDuration adds one timing sample.
func (m *Manager) RecordDuration(topic, function string, d time.Duration) {
	metric := lookup(m, m.timings, buildPath(topic, function), func() *TimingMetric {
		return &TimingMetric{samples: make([]time.Duration, 0, maxSamples), Min: d, Max: d}
	})

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Count++
	metric.Total += d
	metric.Last = d
	metric.Min = min(metric.Min, d)
	metric.Max = max(metric.Max, d)

	if len(metric.samples) < maxSamples {
		metric.samples = append(metric.samples, d)
	} else {
		metric.samples[metric.sampleIdx] = d
		metric.sampleIdx = (metric.sampleIdx + 1) % maxSamples
	}
}

func (m *Manager) IncrementCounter(topic, function string) {
	m.AddCounter(topic, function, 1)
}

func (m *Manager) AddCounter(topic, function string, delta int64) {
	metric := lookup(m, m.counters, buildPath(topic, function), func() *CounterMetric { return &CounterMetric{} })

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Value += delta
	metric.Last = time.Now()
}

func newSuccessFail() *SuccessFailMetric {
	return &SuccessFailMetric{FailureReasons: make(map[string]int64)}
}

// RecordSuccess records a successful operation.
func (m *Manager) RecordSuccess(topic, function string) {
	metric := lookup(m, m.successFail, buildPath(topic, function), newSuccessFail)

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Success++
	metric.LastSuccess = time.Now()
	metric.push(true)
}

// RecordFailure records a failed operation. An empty reason is not tallied.
func (m *Manager) RecordFailure(topic, function, reason string) {
	metric := lookup(m, m.successFail, buildPath(topic, function), newSuccessFail)

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Failures++
	metric.LastFailure = time.Now()
	if reason != "" {
		metric.FailureReasons[reason]++
	}
	metric.push(false)
}

func (s *SuccessFailMetric) push(ok bool) {
	s.recentWindow[s.windowIndex] = ok
	s.windowIndex = (s.windowIndex + 1) % len(s.recentWindow)
	if s.windowSize < len(s.recentWindow) {
		s.windowSize++
	}
}

// RecordOutcome adds n occurrences of outcome.
func (m *Manager) RecordOutcome(topic, function, outcome string, n int64) {
	metric := lookup(m, m.outcomes, buildPath(topic, function), func() *OutcomeMetric {
		return &OutcomeMetric{Outcomes: make(map[string]int64)}
	})

	metric.mu.Lock()
	defer metric.mu.Unlock()
	metric.Outcomes[outcome] += n
	metric.Total += n
	metric.LastOutcome = outcome
}

// Snapshot returns a copy of every metric keyed by path.
func (m *Manager) Snapshot() map[string]*MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*MetricSnapshot)

	for path, t := range m.timings {
		t.mu.Lock()
		avg := float64(0)
		if t.Count > 0 {
			avg = float64(t.Total) / float64(t.Count) / float64(time.Millisecond)
		}
		out[path] = &MetricSnapshot{
			Path:   path,
			Type:   TypeTiming,
			Health: getTimingHealth(avg),
			Data: TimingSnapshot{
				Count:  t.Count,
				AvgMs:  avg,
				MinMs:  ms(t.Min),
				MaxMs:  ms(t.Max),
				LastMs: ms(t.Last),
				P95Ms:  calculatePercentile(t.samples, 95),
			},
		}
		t.mu.Unlock()
	}

	for path, c := range m.counters {
		c.mu.Lock()
		out[path] = &MetricSnapshot{Path: path, Type: TypeCounter, Health: HealthGood, Data: CounterSnapshot{Value: c.Value}}
		c.mu.Unlock()
	}

	for path, s := range m.successFail {
		s.mu.Lock()
		rate := percent(s.Success, s.Success+s.Failures)
		recentOK := 0
		for i := 0; i < s.windowSize; i++ {
			if s.recentWindow[i] {
				recentOK++
			}
		}
		recent := percent(int64(recentOK), int64(s.windowSize))
		out[path] = &MetricSnapshot{
			Path:   path,
			Type:   TypeSuccessFail,
			Health: getSuccessHealth(recent, s.windowSize),
			Data: SuccessFailSnapshot{
				Success:        s.Success,
				Failures:       s.Failures,
				SuccessRate:    rate,
				RecentRate:     recent,
				FailureReasons: maps.Clone(s.FailureReasons),
			},
		}
		s.mu.Unlock()
	}

	for path, o := range m.outcomes {
		o.mu.Lock()
		out[path] = &MetricSnapshot{
			Path:   path,
			Type:   TypeOutcome,
			Health: HealthGood,
			Data:   OutcomeSnapshot{Outcomes: maps.Clone(o.Outcomes), Total: o.Total},
		}
		o.mu.Unlock()
	}

	return out
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// calculatePercentile returns the Nth percentile of samples in milliseconds.
func calculatePercentile(samples []time.Duration, percentile int) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted) * percentile) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return ms(sorted[idx])
}

// getTimingHealth grades a flow's average duration. Scans scroll the whole
// list so the bands are in seconds, not milliseconds.
func getTimingHealth(avgMs float64) HealthStatus {
	if avgMs > 300_000 {
		return HealthCritical
	}
	if avgMs > 60_000 {
		return HealthWarning
	}
	return HealthGood
}

func getSuccessHealth(recentRate float64, window int) HealthStatus {
	if window == 0 {
		return HealthGood
	}
	if recentRate < 50 {
		return HealthCritical
	}
	if recentRate < 90 {
		return HealthWarning
	}
	return HealthGood
}
