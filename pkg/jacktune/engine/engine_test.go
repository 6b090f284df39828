package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacktune/jacktune/pkg/jacktune/config"
	"github.com/jacktune/jacktune/pkg/jacktune/ledger"
	"github.com/jacktune/jacktune/pkg/jacktune/optimizer"
	"github.com/jacktune/jacktune/pkg/jacktune/probe"
	"github.com/jacktune/jacktune/pkg/jacktune/xrun"
)

type fakeDetector struct{ present bool }

func (f *fakeDetector) IsPresent() bool { return f.present }

type fakeTuner struct {
	applies int
	reverts int
	errs    []error
}

func (f *fakeTuner) BuildPlan() []optimizer.Target { return nil }

func (f *fakeTuner) Apply([]optimizer.Target) []error {
	f.applies++
	return f.errs
}

func (f *fakeTuner) RevertAll() []error {
	f.reverts++
	return f.errs
}

type fakeAffinity struct {
	applies int
	reverts int
}

func (f *fakeAffinity) ApplyAll() []error  { f.applies++; return nil }
func (f *fakeAffinity) RevertAll() []error { f.reverts++; return nil }

type fakeProbe struct{ settings probe.Settings }

func (f *fakeProbe) CurrentSettings(context.Context) probe.Settings { return f.settings }

type fakeSampler struct {
	counts xrun.WindowCounts
	severe int
	calls  int
}

func (f *fakeSampler) Sample(context.Context) (xrun.WindowCounts, int) {
	f.calls++
	if f.counts == nil {
		return xrun.WindowCounts{time.Minute: 0}, 0
	}
	return f.counts, f.severe
}

type harness struct {
	engine   *Engine
	detector *fakeDetector
	tuner    *fakeTuner
	affinity *fakeAffinity
	sampler  *fakeSampler
	ledger   *ledger.Ledger
	cfg      *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := &config.Config{
		Pools:      config.PoolsConfig{Audio: []int{2, 3}, Background: []int{0}, IRQ: []int{1}},
		Priorities: config.PriorityConfig{Server: 85, App: 70, Policy: "fifo"},
		Xrun: config.XrunConfig{
			MildThreshold:       config.DefaultMildThreshold,
			SevereJumpThreshold: config.DefaultSevereJumpThreshold,
		},
		Intervals: config.IntervalsConfig{
			Tick:          time.Second,
			AffinityEvery: 2,
			SampleEvery:   3,
		},
		Paths: config.PathsConfig{StateDir: t.TempDir()},
	}

	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	h := &harness{
		detector: &fakeDetector{},
		tuner:    &fakeTuner{},
		affinity: &fakeAffinity{},
		sampler:  &fakeSampler{},
		ledger:   l,
		cfg:      cfg,
	}
	h.engine = New(cfg, Deps{
		Detector: h.detector,
		Tuner:    h.tuner,
		Affinity: h.affinity,
		Probe:    &fakeProbe{settings: probe.Settings{Active: true, BufferFrames: 256, SampleRateHz: 48000, Periods: 3}},
		Sampler:  h.sampler,
		Ledger:   l,
	})
	return h
}

func TestTickPresenceFlipOptimizesWithinOneTick(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// No device: nothing happens.
	outcome := h.engine.Tick(ctx)
	assert.Equal(t, Standard, outcome.To)
	assert.Zero(t, h.tuner.applies)

	// Device appears: Standard -> Optimized in a single tick.
	h.detector.present = true
	outcome = h.engine.Tick(ctx)
	assert.Equal(t, Standard, outcome.From)
	assert.Equal(t, Optimized, outcome.To)
	assert.Equal(t, 1, h.tuner.applies)
	assert.Equal(t, 1, h.affinity.applies)

	// Device disappears: Optimized -> Standard in a single tick.
	h.detector.present = false
	outcome = h.engine.Tick(ctx)
	assert.Equal(t, Optimized, outcome.From)
	assert.Equal(t, Standard, outcome.To)
	assert.Equal(t, 1, h.tuner.reverts)
	assert.Equal(t, 1, h.affinity.reverts)
}

func TestTickNoStuckStatesAcrossRepeatedTicks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.detector.present = true
	for range 10 {
		h.engine.Tick(ctx)
	}
	assert.Equal(t, Optimized, h.engine.State())
	// Apply ran exactly once; later ticks only maintain.
	assert.Equal(t, 1, h.tuner.applies)

	h.detector.present = false
	for range 10 {
		h.engine.Tick(ctx)
	}
	assert.Equal(t, Standard, h.engine.State())
	assert.Equal(t, 1, h.tuner.reverts)
}

func TestTickPeriodicAffinityRescan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.detector.present = true
	h.engine.Tick(ctx) // transition tick, affinity applied once
	require.Equal(t, 1, h.affinity.applies)

	// AffinityEvery=2: re-scan on every second maintenance tick.
	h.engine.Tick(ctx)
	h.engine.Tick(ctx)
	h.engine.Tick(ctx)
	h.engine.Tick(ctx)
	assert.Equal(t, 3, h.affinity.applies)
}

func TestTickPeriodicSamplePublishesSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.sampler.counts = xrun.WindowCounts{
		5 * time.Second:  0,
		10 * time.Second: 1,
		30 * time.Second: 2,
		time.Minute:      3,
		5 * time.Minute:  4,
	}

	h.detector.present = true
	h.engine.Tick(ctx)
	// SampleEvery=3: ticks 2,3,4 -> sample on maintenance tick 3.
	h.engine.Tick(ctx)
	h.engine.Tick(ctx)
	h.engine.Tick(ctx)
	require.Equal(t, 1, h.sampler.calls)

	snap, err := ReadSnapshot(SnapshotPath(h.cfg.Paths.StateDir))
	require.NoError(t, err)
	assert.True(t, snap.DevicePresent)
	assert.Equal(t, Optimized, snap.State)
	assert.True(t, snap.JackActive)
	assert.Equal(t, 256, snap.BufferFrames)
	assert.Equal(t, 3, snap.XrunWindowCounts["1m"])
	assert.Equal(t, 4, snap.XrunWindowCounts["5m"])
	assert.Equal(t, "mild", snap.Severity)
	assert.NotEmpty(t, snap.Recommendations)
}

func TestTickSubOperationFailuresDoNotChangeTransition(t *testing.T) {
	h := newHarness(t)
	h.tuner.errs = []error{errors.New("sysfs entry unwritable")}

	h.detector.present = true
	outcome := h.engine.Tick(context.Background())

	assert.Equal(t, Optimized, outcome.To)
	assert.NotEmpty(t, outcome.Errors)
	assert.Equal(t, Optimized, h.engine.State())
}

func TestActivateDeactivate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Manual activation works without the device present.
	outcome := h.engine.Activate(ctx)
	assert.Equal(t, Optimized, outcome.To)
	assert.Equal(t, 1, h.tuner.applies)

	outcome = h.engine.Deactivate(ctx)
	assert.Equal(t, Standard, outcome.To)
	assert.Equal(t, 1, h.tuner.reverts)

	// Deactivate is idempotent.
	outcome = h.engine.Deactivate(ctx)
	assert.Equal(t, Standard, outcome.To)
}

func TestReconcileStaleOptimizationDeviceAbsent(t *testing.T) {
	h := newHarness(t)

	// Simulate a crash mid-optimization: state persisted, ledger dirty.
	require.NoError(t, h.ledger.SaveState(string(Optimized)))
	require.NoError(t, h.ledger.Record("/sys/x", ledger.KindGovernor, "ondemand", "performance"))
	h.detector.present = false

	outcome := h.engine.Reconcile(context.Background())
	assert.Equal(t, Standard, outcome.To)
	assert.Equal(t, 1, h.tuner.reverts)
	assert.Equal(t, Standard, h.engine.State())
}

func TestReconcileOptimizedDeviceStillPresent(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ledger.SaveState(string(Optimized)))
	h.detector.present = true

	outcome := h.engine.Reconcile(context.Background())
	assert.Equal(t, Optimized, outcome.To)
	assert.Equal(t, 1, h.tuner.applies)
}

func TestReconcileCleanStart(t *testing.T) {
	h := newHarness(t)

	outcome := h.engine.Reconcile(context.Background())
	assert.Equal(t, Standard, outcome.To)
	assert.Zero(t, h.tuner.applies)
	assert.Zero(t, h.tuner.reverts)
}

func TestStatusAndDetailedStatus(t *testing.T) {
	h := newHarness(t)
	h.detector.present = true
	h.sampler.counts = xrun.WindowCounts{time.Minute: 0, 5 * time.Second: 0}
	ctx := context.Background()

	snap := h.engine.Status(ctx)
	assert.True(t, snap.DevicePresent)
	assert.True(t, snap.JackActive)
	assert.Empty(t, snap.Severity) // light status skips sampling
	assert.Zero(t, h.sampler.calls)

	detailed := h.engine.DetailedStatus(ctx)
	assert.Equal(t, "perfect", detailed.Severity)
	assert.NotEmpty(t, detailed.Recommendations)
	assert.Equal(t, 1, h.sampler.calls)
}

func TestLiveMonitorStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.cfg.Intervals.MonitorRefresh = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan *Snapshot, 16)

	done := make(chan struct{})
	go func() {
		h.engine.LiveMonitor(ctx, func(s *Snapshot) { got <- s })
		close(done)
	}()

	// The first snapshot arrives immediately.
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("no snapshot from live monitor")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("live monitor did not stop on cancel")
	}

	// Read-only: no tunable mutation happened.
	assert.Zero(t, h.tuner.applies)
	assert.Zero(t, h.tuner.reverts)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := SnapshotPath(t.TempDir())
	want := &Snapshot{
		DevicePresent:    true,
		State:            Optimized,
		JackActive:       true,
		BufferFrames:     128,
		SampleRateHz:     96000,
		Periods:          3,
		XrunWindowCounts: map[string]int{"5s": 0, "1m": 2},
		Severity:         "mild",
		Recommendations:  []string{"Increase buffer"},
		UpdatedAt:        time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, WriteSnapshot(path, want))

	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWindowLabel(t *testing.T) {
	assert.Equal(t, "5s", windowLabel(5*time.Second))
	assert.Equal(t, "30s", windowLabel(30*time.Second))
	assert.Equal(t, "1m", windowLabel(time.Minute))
	assert.Equal(t, "5m", windowLabel(5*time.Minute))
}
