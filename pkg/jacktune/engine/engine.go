// Package engine drives the optimization state machine: presence-triggered
// apply/revert of the OS tunable set, periodic affinity re-scans, and xrun
// sampling with published status snapshots.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/jacktune/jacktune/pkg/jacktune/advise"
	"github.com/jacktune/jacktune/pkg/jacktune/config"
	"github.com/jacktune/jacktune/pkg/jacktune/ledger"
	"github.com/jacktune/jacktune/pkg/jacktune/logging"
	"github.com/jacktune/jacktune/pkg/jacktune/optimizer"
	"github.com/jacktune/jacktune/pkg/jacktune/probe"
	"github.com/jacktune/jacktune/pkg/jacktune/xrun"
)

// State is the optimization state machine's position. Optimizing and
// Deoptimizing are transient: they are entered and left within a single
// tick unless a crash interrupts them, in which case startup reconciliation
// picks up the pieces.
type State string

// States.
const (
	Standard     State = "standard"
	Optimizing   State = "optimizing"
	Optimized    State = "optimized"
	Deoptimizing State = "deoptimizing"
)

// PresenceDetector answers whether the target device is attached.
type PresenceDetector interface {
	IsPresent() bool
}

// Tuner applies and reverts the OS tunable plan.
type Tuner interface {
	BuildPlan() []optimizer.Target
	Apply(plan []optimizer.Target) []error
	RevertAll() []error
}

// AffinityManager pins and releases audio processes.
type AffinityManager interface {
	ApplyAll() []error
	RevertAll() []error
}

// EngineProbe queries the audio engine's active settings.
type EngineProbe interface {
	CurrentSettings(ctx context.Context) probe.Settings
}

// XrunSampler computes windowed xrun counts.
type XrunSampler interface {
	Sample(ctx context.Context) (xrun.WindowCounts, int)
}

// Outcome records what one tick did, for diagnosis. Sub-operation failures
// land here; they never change the state transition itself.
type Outcome struct {
	ID     string
	From   State
	To     State
	Errors []string
}

// Engine is the optimization state machine.
type Engine struct {
	cfg      *config.Config
	detector PresenceDetector
	tuner    Tuner
	affinity AffinityManager
	probe    EngineProbe
	sampler  XrunSampler
	advisor  *advise.Engine
	ledger   *ledger.Ledger
	log      *log.Logger

	snapshotPath string

	// mu is the single-flight guard: no two ticks (or operations) run
	// concurrently.
	mu        sync.Mutex
	state     State
	tickCount uint64
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Detector PresenceDetector
	Tuner    Tuner
	Affinity AffinityManager
	Probe    EngineProbe
	Sampler  XrunSampler
	Ledger   *ledger.Ledger
}

// New creates an Engine in the Standard state. Call Reconcile before the
// first Tick.
func New(cfg *config.Config, deps Deps) *Engine {
	return &Engine{
		cfg:          cfg,
		detector:     deps.Detector,
		tuner:        deps.Tuner,
		affinity:     deps.Affinity,
		probe:        deps.Probe,
		sampler:      deps.Sampler,
		advisor:      advise.New(cfg.Xrun.SevereJumpThreshold),
		ledger:       deps.Ledger,
		log:          logging.Get("engine"),
		snapshotPath: SnapshotPath(cfg.Paths.StateDir),
		state:        Standard,
	}
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Reconcile compares persisted state against actual device presence and
// forces a transition before normal ticking resumes. A ledger with live
// entries while the device is absent means a previous run died
// mid-optimization: revert it. A persisted optimized state with the device
// still attached is re-applied (idempotently) to catch drift.
func (e *Engine) Reconcile(ctx context.Context) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	persisted, err := e.ledger.LoadState()
	if err != nil {
		e.log.Warn("persisted state unreadable, assuming standard", "err", err)
		persisted = string(Standard)
	}

	present := e.detector.IsPresent()
	dirty := e.ledger.Len() > 0 || (persisted != "" && persisted != string(Standard))

	outcome := Outcome{ID: uuid.NewString(), From: State(persisted)}
	if outcome.From == "" {
		outcome.From = Standard
	}

	switch {
	case dirty && !present:
		e.log.Warn("reconciling: stale optimization with device absent, forcing revert",
			"persisted", persisted, "ledger_entries", e.ledger.Len())
		outcome.Errors = collect(e.revertLocked())
		e.setStateLocked(Standard)
	case dirty && present:
		e.log.Info("reconciling: device present, re-applying optimization",
			"persisted", persisted)
		outcome.Errors = collect(e.applyLocked())
		e.setStateLocked(Optimized)
	default:
		e.setStateLocked(Standard)
	}

	outcome.To = e.state
	_ = ctx
	return outcome
}

// Tick runs one cycle of the state machine. Ticks are serialized by the
// single-flight guard.
func (e *Engine) Tick(ctx context.Context) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := Outcome{ID: uuid.NewString(), From: e.state}
	present := e.detector.IsPresent()

	switch {
	case present && e.state == Standard:
		e.setStateLocked(Optimizing)
		outcome.Errors = collect(e.applyLocked())
		e.setStateLocked(Optimized)
		e.log.Info("device attached, system optimized", "skipped", len(outcome.Errors))

	case !present && e.state == Optimized:
		e.setStateLocked(Deoptimizing)
		outcome.Errors = collect(e.revertLocked())
		e.setStateLocked(Standard)
		e.log.Info("device detached, system restored", "skipped", len(outcome.Errors))

	case e.state == Optimized:
		e.tickCount++
		if e.cfg.Intervals.AffinityEvery > 0 && e.tickCount%uint64(e.cfg.Intervals.AffinityEvery) == 0 {
			// Catch audio processes started since the last scan.
			outcome.Errors = append(outcome.Errors, collect(e.affinity.ApplyAll())...)
		}
		if e.cfg.Intervals.SampleEvery > 0 && e.tickCount%uint64(e.cfg.Intervals.SampleEvery) == 0 {
			e.sampleAndPublishLocked(ctx, present)
		}
	}

	outcome.To = e.state
	if len(outcome.Errors) > 0 {
		e.log.Debug("tick completed with skipped sub-operations",
			"tick", outcome.ID, "from", outcome.From, "to", outcome.To,
			"skipped", len(outcome.Errors))
	}
	return outcome
}

// Activate applies the optimization immediately, regardless of presence.
// Exposed to the CLI wrapper.
func (e *Engine) Activate(ctx context.Context) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := Outcome{ID: uuid.NewString(), From: e.state}
	e.setStateLocked(Optimizing)
	outcome.Errors = collect(e.applyLocked())
	e.setStateLocked(Optimized)
	outcome.To = e.state

	e.sampleAndPublishLocked(ctx, e.detector.IsPresent())
	return outcome
}

// Deactivate reverts every recorded tunable and releases all pinned
// processes. Idempotent.
func (e *Engine) Deactivate(ctx context.Context) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := Outcome{ID: uuid.NewString(), From: e.state}
	e.setStateLocked(Deoptimizing)
	outcome.Errors = collect(e.revertLocked())
	e.setStateLocked(Standard)
	outcome.To = e.state

	e.sampleAndPublishLocked(ctx, e.detector.IsPresent())
	return outcome
}

// Status returns a light snapshot: presence, state, and engine settings,
// without polling the xrun sources.
func (e *Engine) Status(ctx context.Context) *Snapshot {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	settings := e.probe.CurrentSettings(ctx)
	return &Snapshot{
		DevicePresent: e.detector.IsPresent(),
		State:         state,
		JackActive:    settings.Active,
		BufferFrames:  settings.BufferFrames,
		SampleRateHz:  settings.SampleRateHz,
		Periods:       settings.Periods,
		UpdatedAt:     time.Now(),
	}
}

// DetailedStatus additionally samples the xrun sources and runs the
// recommendation engine.
func (e *Engine) DetailedStatus(ctx context.Context) *Snapshot {
	snap := e.Status(ctx)

	counts, severe := e.sampler.Sample(ctx)
	severity := xrun.ClassifySeverity(counts, severe, e.cfg.Xrun.MildThreshold)

	snap.XrunWindowCounts = windowCountLabels(counts)
	snap.Severity = severity.String()
	snap.Recommendations = e.advisor.Advise(probe.Settings{
		Active:       snap.JackActive,
		BufferFrames: snap.BufferFrames,
		SampleRateHz: snap.SampleRateHz,
		Periods:      snap.Periods,
	}, severity, counts)
	return snap
}

// LiveMonitor samples at the configured refresh cadence and hands each
// snapshot to fn until ctx is cancelled. Strictly read-only: no tunable
// mutation happens here.
func (e *Engine) LiveMonitor(ctx context.Context, fn func(*Snapshot)) {
	interval := e.cfg.Intervals.MonitorRefresh
	if interval <= 0 {
		interval = config.DefaultMonitorRefresh
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(e.DetailedStatus(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(e.DetailedStatus(ctx))
		}
	}
}

// applyLocked runs the full apply pass. Caller holds mu.
func (e *Engine) applyLocked() []error {
	errs := e.tuner.Apply(e.tuner.BuildPlan())
	errs = append(errs, e.affinity.ApplyAll()...)
	return errs
}

// revertLocked runs the full revert pass. Caller holds mu.
func (e *Engine) revertLocked() []error {
	errs := e.tuner.RevertAll()
	errs = append(errs, e.affinity.RevertAll()...)
	return errs
}

// setStateLocked transitions and persists the state. Caller holds mu.
func (e *Engine) setStateLocked(s State) {
	e.state = s
	if e.ledger == nil {
		return
	}
	if err := e.ledger.SaveState(string(s)); err != nil {
		e.log.Warn("state persistence failed", "state", s, "err", err)
	}
}

// sampleAndPublishLocked runs a full sample/advise cycle and publishes the
// snapshot. Caller holds mu.
func (e *Engine) sampleAndPublishLocked(ctx context.Context, present bool) {
	counts, severe := e.sampler.Sample(ctx)
	severity := xrun.ClassifySeverity(counts, severe, e.cfg.Xrun.MildThreshold)
	settings := e.probe.CurrentSettings(ctx)

	snap := &Snapshot{
		DevicePresent:    present,
		State:            e.state,
		JackActive:       settings.Active,
		BufferFrames:     settings.BufferFrames,
		SampleRateHz:     settings.SampleRateHz,
		Periods:          settings.Periods,
		XrunWindowCounts: windowCountLabels(counts),
		Severity:         severity.String(),
		Recommendations:  e.advisor.Advise(settings, severity, counts),
		UpdatedAt:        time.Now(),
	}
	if err := WriteSnapshot(e.snapshotPath, snap); err != nil {
		e.log.Warn("snapshot publish failed", "path", e.snapshotPath, "err", err)
	}
}

func collect(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
