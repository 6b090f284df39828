// Package optimizer applies and reverts the coordinated OS tunable set for
// low-latency audio: CPU frequency governors, IRQ affinity, USB power policy,
// and kernel scheduler parameters. Every change is recorded in the ledger
// before it is made, so RevertAll restores the exact prior values.
package optimizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jacktune/jacktune/pkg/jacktune/ledger"
)

// Target is one tunable the optimizer intends to change. Targets are built
// by BuildPlan, consumed by Apply, and live on only as ledger entries.
type Target struct {
	// Key is the tunable's path, or "service:<name>" for service targets.
	Key string

	// Kind classifies the tunable for ledger bookkeeping and revert
	// dispatch.
	Kind ledger.Kind

	// Desired is the value Apply writes.
	Desired string
}

// serviceKeyPrefix marks targets handled through the service controller
// rather than a file write.
const serviceKeyPrefix = "service:"

// irqBalanceService is the interrupt rebalancing daemon that must not move
// our pinned IRQs around while optimized.
const irqBalanceService = "irqbalance"

// sysfs/procfs layout, relative to the filesystem root.
const (
	cpuFreqDirFmt      = "sys/devices/system/cpu/cpu%d/cpufreq"
	irqAffinityFmt     = "proc/irq/%s/smp_affinity"
	usbAutosuspendPath = "sys/module/usbcore/parameters/autosuspend"
	rtRuntimePath      = "proc/sys/kernel/sched_rt_runtime_us"
	swappinessPath     = "proc/sys/vm/swappiness"
)

// BuildPlan assembles the full tunable set for the configured CPU pools and
// the currently attached device. Tunables whose preconditions are missing
// (no cpufreq support, device not on the bus) are simply left out.
func (o *Optimizer) BuildPlan() []Target {
	var plan []Target

	// Fast-path pool: performance governor, minimum frequency pinned to
	// the maximum so the cores never clock down mid-buffer.
	for _, cpu := range o.pools.Audio {
		freqDir := filepath.Join(o.fsRoot, fmt.Sprintf(cpuFreqDirFmt, cpu))
		plan = append(plan, Target{
			Key:     filepath.Join(freqDir, "scaling_governor"),
			Kind:    ledger.KindGovernor,
			Desired: "performance",
		})
		if maxFreq, err := readTrimmed(filepath.Join(freqDir, "cpuinfo_max_freq")); err == nil {
			plan = append(plan, Target{
				Key:     filepath.Join(freqDir, "scaling_min_freq"),
				Kind:    ledger.KindMinFreq,
				Desired: maxFreq,
			})
		}
	}

	// Background pool keeps the configured low-power governor.
	for _, cpu := range o.pools.Background {
		plan = append(plan, Target{
			Key:     filepath.Join(o.fsRoot, fmt.Sprintf(cpuFreqDirFmt, cpu), "scaling_governor"),
			Kind:    ledger.KindGovernor,
			Desired: o.backgroundGovernor,
		})
	}

	// Interrupt-handling pool runs at full clock so IRQ service latency
	// stays flat.
	for _, cpu := range o.pools.IRQ {
		plan = append(plan, Target{
			Key:     filepath.Join(o.fsRoot, fmt.Sprintf(cpuFreqDirFmt, cpu), "scaling_governor"),
			Kind:    ledger.KindGovernor,
			Desired: "performance",
		})
	}

	// Pin the USB controller and audio driver interrupts to the IRQ pool.
	mask := cpuMask(o.pools.IRQ)
	for _, irq := range o.discoverIRQs() {
		plan = append(plan, Target{
			Key:     filepath.Join(o.fsRoot, fmt.Sprintf(irqAffinityFmt, irq)),
			Kind:    ledger.KindIRQAffinity,
			Desired: mask,
		})
	}

	// Automatic rebalancing would undo the pinning above.
	plan = append(plan, Target{
		Key:     serviceKeyPrefix + irqBalanceService,
		Kind:    ledger.KindIRQBalance,
		Desired: "inactive",
	})

	// Keep the interface powered: autosuspend off globally and the
	// device's own port forced on.
	plan = append(plan, Target{
		Key:     filepath.Join(o.fsRoot, usbAutosuspendPath),
		Kind:    ledger.KindUSBAutosuspend,
		Desired: "-1",
	})
	if devPath := o.devicePath(); devPath != "" {
		plan = append(plan, Target{
			Key:     filepath.Join(devPath, "power", "control"),
			Kind:    ledger.KindUSBPower,
			Desired: "on",
		})
	}

	// Scheduler: lift the RT throttling ceiling and keep the VM from
	// swapping audio buffers.
	plan = append(plan,
		Target{
			Key:     filepath.Join(o.fsRoot, rtRuntimePath),
			Kind:    ledger.KindSchedParam,
			Desired: "-1",
		},
		Target{
			Key:     filepath.Join(o.fsRoot, swappinessPath),
			Kind:    ledger.KindSchedParam,
			Desired: "10",
		},
	)

	return plan
}

// cpuMask renders a CPU set as the hex bitmask format smp_affinity expects.
func cpuMask(cpus []int) string {
	var mask uint64
	for _, cpu := range cpus {
		if cpu >= 0 && cpu < 64 {
			mask |= 1 << uint(cpu)
		}
	}
	return fmt.Sprintf("%x", mask)
}

// baselineFor is the documented fallback recorded when a tunable's current
// value cannot be read (first-run case). Revert then restores these rather
// than leaving the tunable wherever Apply put it.
func baselineFor(kind ledger.Kind, key string) string {
	switch kind {
	case ledger.KindGovernor:
		return "ondemand"
	case ledger.KindMinFreq:
		return "0"
	case ledger.KindIRQAffinity:
		return "ffffffff"
	case ledger.KindIRQBalance:
		return "active"
	case ledger.KindUSBPower:
		return "auto"
	case ledger.KindUSBAutosuspend:
		return "2"
	case ledger.KindSchedParam:
		if strings.HasSuffix(key, "sched_rt_runtime_us") {
			return "950000" // kernel default RT throttle
		}
		return "60" // kernel default swappiness
	default:
		return ""
	}
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func isServiceKey(key string) bool {
	return strings.HasPrefix(key, serviceKeyPrefix)
}

func serviceName(key string) string {
	return strings.TrimPrefix(key, serviceKeyPrefix)
}
