package xrun

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter returns a fixed set of samples once, then nothing.
type stubAdapter struct {
	name    string
	severe  bool
	samples []Sample
	err     error
	drained bool
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Severe() bool { return s.severe }

func (s *stubAdapter) Query(_ context.Context, _ time.Time) ([]Sample, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.drained {
		return nil, nil
	}
	s.drained = true
	return s.samples, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSampleWindowCorrectness(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	// Synthetic samples at known offsets before "now".
	samples := []Sample{
		{Source: "engine", Timestamp: now.Add(-2 * time.Second), Count: 1},
		{Source: "engine", Timestamp: now.Add(-8 * time.Second), Count: 2},
		{Source: "engine", Timestamp: now.Add(-20 * time.Second), Count: 1},
		{Source: "engine", Timestamp: now.Add(-45 * time.Second), Count: 3},
		{Source: "engine", Timestamp: now.Add(-4 * time.Minute), Count: 5},
		// Older than the largest window: must never appear anywhere.
		{Source: "engine", Timestamp: now.Add(-6 * time.Minute), Count: 100},
	}

	adapter := &stubAdapter{name: "engine", samples: samples}
	m := NewMonitor([]Adapter{adapter}, WithClock(fixedClock(now)))

	counts, severe := m.Sample(context.Background())

	assert.Equal(t, 1, counts[5*time.Second])
	assert.Equal(t, 3, counts[10*time.Second])
	assert.Equal(t, 4, counts[30*time.Second])
	assert.Equal(t, 7, counts[time.Minute])
	assert.Equal(t, 12, counts[5*time.Minute])
	assert.Zero(t, severe)
}

func TestSamplePrunesOldSamplesAcrossCalls(t *testing.T) {
	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	current := base
	m := NewMonitor(
		[]Adapter{&stubAdapter{name: "engine", samples: []Sample{
			{Source: "engine", Timestamp: base.Add(-time.Second), Count: 4},
		}}},
		WithClock(func() time.Time { return current }),
	)

	counts, _ := m.Sample(context.Background())
	require.Equal(t, 4, counts[time.Minute])

	// Six minutes later the sample has aged out of every window.
	current = base.Add(6 * time.Minute)
	counts, _ = m.Sample(context.Background())
	assert.Zero(t, counts[5*time.Minute])
	assert.Zero(t, counts[time.Minute])
}

func TestSampleSevereSourceCounted(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	engine := &stubAdapter{name: "engine", samples: []Sample{
		{Source: "engine", Timestamp: now.Add(-10 * time.Second), Count: 2},
	}}
	kernel := &stubAdapter{name: "kernel", severe: true, samples: []Sample{
		{Source: "kernel", Timestamp: now.Add(-30 * time.Second), Count: 1},
		// Severe events outside the classification window do not count.
		{Source: "kernel", Timestamp: now.Add(-3 * time.Minute), Count: 9},
	}}

	m := NewMonitor([]Adapter{engine, kernel}, WithClock(fixedClock(now)))
	counts, severe := m.Sample(context.Background())

	assert.Equal(t, 3, counts[time.Minute])
	assert.Equal(t, 1, severe)
}

func TestSampleAdapterFailureDegradesToZero(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	good := &stubAdapter{name: "engine", samples: []Sample{
		{Source: "engine", Timestamp: now.Add(-time.Second), Count: 1},
	}}
	bad := &stubAdapter{name: "journal", err: errors.New("journal unavailable")}

	m := NewMonitor([]Adapter{good, bad}, WithClock(fixedClock(now)))
	counts, _ := m.Sample(context.Background())

	assert.Equal(t, 1, counts[time.Minute])
}

func TestClassifySeverity(t *testing.T) {
	const threshold = 5

	tests := []struct {
		name   string
		minute int
		severe int
		want   Severity
	}{
		{"zero is perfect", 0, 0, Perfect},
		{"one is mild", 1, 0, Mild},
		{"below threshold is mild", 4, 0, Mild},
		{"at threshold is severe", 5, 0, Severe},
		{"above threshold is severe", 17, 0, Severe},
		{"severe source escalates low counts", 1, 1, Severe},
		{"severe source alone escalates", 0, 2, Severe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := WindowCounts{time.Minute: tt.minute}
			assert.Equal(t, tt.want, ClassifySeverity(counts, tt.severe, threshold))
		})
	}
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "perfect", Perfect.String())
	assert.Equal(t, "mild", Mild.String())
	assert.Equal(t, "severe", Severe.String())
}
