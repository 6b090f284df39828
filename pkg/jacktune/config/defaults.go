// Package config provides configuration management for the jacktune
// resource optimizer.
package config

import "time"

// Default configuration values for jacktune.
const (
	// DefaultVendorID is the USB vendor ID of the target audio interface
	// (Focusrite Novation).
	DefaultVendorID = "1235"

	// DefaultProductID is the USB product ID of the target audio interface
	// (Scarlett 18i20 3rd Gen).
	DefaultProductID = "8215"

	// DefaultCardName is the ALSA card label the driver registers for the
	// target interface.
	DefaultCardName = "Scarlett 18i20 USB"

	// DefaultTickInterval is the base cadence of the optimization state
	// machine.
	DefaultTickInterval = 5 * time.Second

	// DefaultAffinityEvery is how many base ticks pass between affinity
	// re-scans while optimized (6 ticks at 5s = 30s).
	DefaultAffinityEvery = 6

	// DefaultSampleEvery is how many base ticks pass between xrun samples
	// while optimized (2 ticks at 5s = 10s).
	DefaultSampleEvery = 2

	// DefaultMonitorRefresh is the live monitor sampling cadence.
	DefaultMonitorRefresh = 2 * time.Second

	// DefaultMildThreshold is the 1-minute xrun count below which the
	// situation is classified as mild rather than severe.
	DefaultMildThreshold = 5

	// DefaultSevereJumpThreshold is the 1-minute xrun count at which the
	// recommendation engine jumps straight to the largest buffer tier.
	DefaultSevereJumpThreshold = 20

	// DefaultServerPriority is the SCHED_FIFO priority for audio-server
	// class processes (jackd and its helper daemons).
	DefaultServerPriority = 85

	// DefaultAppPriority is the SCHED_FIFO priority for application class
	// processes. It must stay strictly below DefaultServerPriority so the
	// audio server always preempts applications.
	DefaultAppPriority = 70

	// DefaultBackgroundGovernor is the frequency governor applied to the
	// background CPU pool while optimized.
	DefaultBackgroundGovernor = "powersave"

	// DefaultAdapterTimeout bounds each xrun log-source query.
	DefaultAdapterTimeout = 3 * time.Second
)

// DefaultServerProcesses are the audio-server class process names: the JACK
// engine itself and the bridge daemons that feed it.
var DefaultServerProcesses = []string{
	"jackd", "jackdbus", "a2jmidid", "zita-a2j", "zita-j2a", "alsa_in", "alsa_out",
}

// DefaultAppProcesses are the application class process names: DAWs,
// synthesizers, and plugin hosts commonly run against JACK.
var DefaultAppProcesses = []string{
	"ardour", "reaper", "qtractor", "carla", "guitarix", "hydrogen",
}

// Default CPU pools, expressed as logical CPU indices. Suitable for a
// four-core machine; override in the config file for anything else.
var (
	// DefaultAudioPool is the fast-path pool reserved for the audio server.
	DefaultAudioPool = []int{2, 3}

	// DefaultBackgroundPool hosts everything else, including audio
	// applications.
	DefaultBackgroundPool = []int{0}

	// DefaultIRQPool services the USB controller and sound interrupts.
	DefaultIRQPool = []int{1}
)
