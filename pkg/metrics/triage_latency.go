// Package metrics records call latencies for the run summary.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Tracker keeps latency samples for one operation. A run processes a bounded
// batch, so samples are kept up to a fixed cap and the oldest are dropped.
type Tracker struct {
	mu      sync.Mutex
	samples []time.Duration
	limit   int
	errors  int
}

func NewTracker(limit int) *Tracker {
	if limit <= 0 {
		limit = 1000
	}
	return &Tracker{limit: limit}
}

// Observe records one call. Failed calls count toward Errors as well.
func (t *Tracker) Observe(d time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.samples) >= t.limit {
		t.samples = t.samples[1:]
	}
	t.samples = append(t.samples, d)
	if err != nil {
		t.errors++
	}
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	sorted := make([]time.Duration, len(t.samples))
	copy(sorted, t.samples)
	errs := t.errors
	t.mu.Unlock()

	if len(sorted) == 0 {
		return Stats{Errors: errs}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	n := len(sorted)
	return Stats{
		Count:  n,
		Errors: errs,
		Min:    sorted[0],
		Max:    sorted[n-1],
		Avg:    sum / time.Duration(n),
		P50:    percentile(sorted, 0.50),
		P95:    percentile(sorted, 0.95),
	}
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	return sorted[int(float64(len(sorted)-1)*p)]
}

// Stats summarizes a Tracker.
type Stats struct {
	Count  int           `json:"count"`
	Errors int           `json:"errors"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Avg    time.Duration `json:"avg"`
	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
}

// Fields flattens the stats for structured logging, prefixed by name.
func (s Stats) Fields(name string) map[string]any {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return map[string]any{
		name + "_calls":  s.Count,
		name + "_errors": s.Errors,
		name + "_avg_ms": ms(s.Avg),
		name + "_p95_ms": ms(s.P95),
		name + "_max_ms": ms(s.Max),
	}
}

// Registry holds one Tracker per operation name.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
	limit    int
}

func NewRegistry(limit int) *Registry {
	return &Registry{trackers: make(map[string]*Tracker), limit: limit}
}

func (r *Registry) tracker(name string) *Tracker {
	r.mu.RLock()
	t, ok := r.trackers[name]
	r.mu.RUnlock()
	if ok {
		return t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok = r.trackers[name]; !ok {
		t = NewTracker(r.limit)
		r.trackers[name] = t
	}
	return t
}

func (r *Registry) Observe(name string, d time.Duration, err error) {
	r.tracker(name).Observe(d, err)
}

// Snapshot returns stats for every operation seen so far.
func (r *Registry) Snapshot() map[string]Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Stats, len(r.trackers))
	for name, t := range r.trackers {
		out[name] = t.Stats()
	}
	return out
}

func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers = make(map[string]*Tracker)
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry(1000)
	})
	return defaultRegistry
}

// Since records the time elapsed since start under name in the default
// registry. Typical use: defer func() { metrics.Since("op", start, err) }().
func Since(name string, start time.Time, err error) {
	Default().Observe(name, time.Since(start), err)
}
