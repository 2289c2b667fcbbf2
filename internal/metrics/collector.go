// Package metrics provides in-memory request timing statistics for the
// datachat client. Stats reset when the process exits.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Request kinds recorded by the store.
const (
	KindSend           = "send"
	KindVisualization  = "visualization_turn"
	KindHistory        = "history"
	KindConversations  = "conversations"
	KindVisualizations = "visualizations"
	KindImportant      = "important"
	KindImportance     = "importance"
	KindDelete         = "delete"
)

// RequestMetrics holds aggregated timings for one request kind.
type RequestMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// RequestSnapshot provides computed stats from raw metrics.
type RequestSnapshot struct {
	Kind        string
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
}

// Snapshot is a point-in-time view of all request metrics, sorted by kind.
type Snapshot struct {
	UptimeSeconds float64
	Requests      []RequestSnapshot
}

// Collector aggregates in-memory request timings.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	kinds     map[string]*RequestMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		kinds:     make(map[string]*RequestMetrics),
	}
}

// Record records one request timing.
func (c *Collector) Record(kind string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.kinds[kind]
	if !ok {
		m = &RequestMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.kinds[kind] = m
	}
	m.Count++
	m.TotalTime += d
	if d < m.MinTime {
		m.MinTime = d
	}
	if d > m.MaxTime {
		m.MaxTime = d
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
	}
	for kind, m := range c.kinds {
		if m.Count == 0 {
			continue
		}
		snap.Requests = append(snap.Requests, RequestSnapshot{
			Kind:        kind,
			Count:       m.Count,
			TotalTimeMs: m.TotalTime.Milliseconds(),
			AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
			MinTimeMs:   m.MinTime.Milliseconds(),
			MaxTimeMs:   m.MaxTime.Milliseconds(),
		})
	}
	sort.Slice(snap.Requests, func(i, j int) bool {
		return snap.Requests[i].Kind < snap.Requests[j].Kind
	})
	return snap
}
