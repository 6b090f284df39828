// Package xrun collects audio buffer underrun/overrun events from several
// log sources, computes counts over sliding time windows, and classifies the
// overall severity.
package xrun

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/jacktune/jacktune/pkg/jacktune/logging"
)

// Sample is one observed xrun event (or batch of events) from a source.
// Immutable once created.
type Sample struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count"`
}

// Adapter is a pluggable log source. A missing backing facility must report
// zero samples with a nil error, not fail.
type Adapter interface {
	// Name identifies the source in samples and logs.
	Name() string

	// Severe marks hardware-error sources: any event from one of these
	// forces the Severe classification.
	Severe() bool

	// Query returns events observed since the given time.
	Query(ctx context.Context, since time.Time) ([]Sample, error)
}

// Windows are the sliding window durations, smallest to largest.
var Windows = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	time.Minute,
	5 * time.Minute,
}

// classifyWindow is the window severity classification is based on.
const classifyWindow = time.Minute

// WindowCounts maps each window duration to the total xrun count inside it.
type WindowCounts map[time.Duration]int

// Monitor owns the rolling sample buffer and polls the adapters.
type Monitor struct {
	adapters       []Adapter
	adapterTimeout time.Duration
	now            func() time.Time
	log            *log.Logger

	mu        sync.Mutex
	samples   []Sample
	lastQuery map[string]time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAdapterTimeout bounds each adapter query.
func WithAdapterTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.adapterTimeout = d }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor creates a Monitor over the given adapters.
func NewMonitor(adapters []Adapter, opts ...Option) *Monitor {
	m := &Monitor{
		adapters:       adapters,
		adapterTimeout: 3 * time.Second,
		now:            time.Now,
		log:            logging.Get("xrun"),
		lastQuery:      make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sample polls all adapters concurrently, merges new events into the rolling
// buffer, prunes events older than the largest window, and returns the
// per-window totals plus the count of events from severe sources within the
// classification window. Adapter failures and timeouts degrade to zero
// events for that source; they never block or fail the caller.
func (m *Monitor) Sample(ctx context.Context) (WindowCounts, int) {
	now := m.now()
	maxWindow := Windows[len(Windows)-1]

	results := make([][]Sample, len(m.adapters))
	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range m.adapters {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, m.adapterTimeout)
			defer cancel()

			since := m.sinceFor(adapter.Name(), now, maxWindow)
			samples, err := adapter.Query(qctx, since)
			if err != nil {
				m.log.Warn("adapter query failed", "source", adapter.Name(), "err", err)
				return nil // degraded, not fatal
			}
			results[i] = samples
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, adapter := range m.adapters {
		m.lastQuery[adapter.Name()] = now
		m.samples = append(m.samples, results[i]...)
	}

	// Recompute from raw samples every tick; no incremental counters to
	// drift.
	cutoff := now.Add(-maxWindow)
	kept := m.samples[:0]
	for _, s := range m.samples {
		if s.Timestamp.After(cutoff) {
			kept = append(kept, s)
		}
	}
	m.samples = kept

	counts := make(WindowCounts, len(Windows))
	for _, w := range Windows {
		counts[w] = 0
	}
	severe := 0
	severeSources := m.severeSources()
	classifyCutoff := now.Add(-classifyWindow)

	for _, s := range m.samples {
		for _, w := range Windows {
			if s.Timestamp.After(now.Add(-w)) {
				counts[w] += s.Count
			}
		}
		if severeSources[s.Source] && s.Timestamp.After(classifyCutoff) {
			severe += s.Count
		}
	}

	return counts, severe
}

// sinceFor returns the query horizon for a source: its last poll time, or
// the largest window back on the first poll.
func (m *Monitor) sinceFor(source string, now time.Time, maxWindow time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastQuery[source]; ok {
		return last
	}
	return now.Add(-maxWindow)
}

func (m *Monitor) severeSources() map[string]bool {
	severe := make(map[string]bool, len(m.adapters))
	for _, a := range m.adapters {
		if a.Severe() {
			severe[a.Name()] = true
		}
	}
	return severe
}
