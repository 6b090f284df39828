package engine

import (
	"fmt"

	"github.com/jacktune/jacktune/pkg/jacktune/affinity"
	"github.com/jacktune/jacktune/pkg/jacktune/config"
	"github.com/jacktune/jacktune/pkg/jacktune/device"
	"github.com/jacktune/jacktune/pkg/jacktune/ledger"
	"github.com/jacktune/jacktune/pkg/jacktune/optimizer"
	"github.com/jacktune/jacktune/pkg/jacktune/probe"
	"github.com/jacktune/jacktune/pkg/jacktune/xrun"
)

// Bootstrap wires the full dependency graph from configuration: ledger
// store, presence detector, tunable optimizer, affinity manager, engine
// probe, and the xrun monitor. The returned cleanup closes the ledger and
// the log-tailing adapters. Mutating entry points (daemon, manual
// activate/deactivate) go through here; exactly one process may hold the
// ledger store at a time.
func Bootstrap(cfg *config.Config) (*Engine, func(), error) {
	l, err := ledger.Open(cfg.Paths.LedgerDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}

	detector := device.NewDetector(cfg.Device)
	sampler, closeAdapters := buildSampler(cfg)

	eng := New(cfg, Deps{
		Detector: detector,
		Tuner:    optimizer.New(l, cfg, optimizer.WithDevicePath(detector.DevicePath)),
		Affinity: affinity.NewManager(affinity.BuildRules(cfg)),
		Probe:    probe.New(),
		Sampler:  sampler,
		Ledger:   l,
	})

	cleanup := func() {
		closeAdapters()
		_ = l.Close()
	}
	return eng, cleanup, nil
}

// BootstrapReadOnly wires only the observation side: presence, probe, and
// xrun sampling. No ledger is opened, so it is safe to run while a daemon
// holds the store. Status, detailed status, and the live monitor use this;
// anything that mutates tunables must not.
func BootstrapReadOnly(cfg *config.Config) (*Engine, func()) {
	detector := device.NewDetector(cfg.Device)
	sampler, closeAdapters := buildSampler(cfg)

	eng := New(cfg, Deps{
		Detector: detector,
		Probe:    probe.New(),
		Sampler:  sampler,
	})
	return eng, closeAdapters
}

// buildSampler assembles the xrun monitor from the configured log paths
// plus the journal and kernel sources.
func buildSampler(cfg *config.Config) (*xrun.Monitor, func()) {
	var adapters []xrun.Adapter
	var tails []*xrun.LogFileAdapter

	if cfg.Paths.EngineLog != "" {
		a := xrun.NewLogFileAdapter("engine-log", cfg.Paths.EngineLog)
		adapters = append(adapters, a)
		tails = append(tails, a)
	}
	if cfg.Paths.TunnelLog != "" {
		a := xrun.NewLogFileAdapter("tunnel-log", cfg.Paths.TunnelLog)
		adapters = append(adapters, a)
		tails = append(tails, a)
	}
	adapters = append(adapters, xrun.NewJournalAdapter(), xrun.NewKernelAdapter())

	monitor := xrun.NewMonitor(adapters, xrun.WithAdapterTimeout(cfg.Xrun.AdapterTimeout))
	closeAll := func() {
		for _, t := range tails {
			_ = t.Close()
		}
	}
	return monitor, closeAll
}
