// Package advise turns the engine's current configuration and the observed
// xrun severity into concrete, ranked tuning suggestions. Pure functions,
// no side effects.
package advise

import (
	"fmt"
	"time"

	"github.com/jacktune/jacktune/pkg/jacktune/probe"
	"github.com/jacktune/jacktune/pkg/jacktune/xrun"
)

// BufferLadder is the tier progression recommendations move along.
var BufferLadder = []int{64, 128, 256, 512, 1024}

// referenceRate is used for latency numbers when the engine's actual sample
// rate is unknown.
const referenceRate = 48000

// Latency is the round-trip cost of one buffer at the given rate, in
// milliseconds.
func Latency(bufferFrames, rateHz int) float64 {
	if rateHz == 0 {
		return 0
	}
	return float64(bufferFrames) * 1000 / float64(rateHz)
}

// Engine produces recommendations. The severe-jump threshold is empirically
// chosen, not derived; it stays configurable.
type Engine struct {
	severeJumpThreshold int
}

// New creates a recommendation engine. A threshold of 0 or less disables
// the severe jump shortcut.
func New(severeJumpThreshold int) *Engine {
	return &Engine{severeJumpThreshold: severeJumpThreshold}
}

// Advise returns ranked suggestions for the current situation. The first
// applicable rule per category wins.
func (e *Engine) Advise(settings probe.Settings, severity xrun.Severity, counts xrun.WindowCounts) []string {
	if !settings.Active {
		return genericGuidance()
	}

	rate := settings.SampleRateHz
	if rate == 0 {
		rate = referenceRate
	}

	switch severity {
	case xrun.Perfect:
		return e.advisePerfect(settings, rate)
	case xrun.Mild:
		return e.adviseMild(settings, rate)
	default:
		return e.adviseSevere(settings, rate, counts)
	}
}

func (e *Engine) advisePerfect(settings probe.Settings, rate int) []string {
	if settings.BufferFrames == 0 {
		return []string{"No xruns in the last minute. Current settings are stable."}
	}
	return []string{fmt.Sprintf(
		"No xruns in the last minute: %d frames @ %d Hz (%.1f ms) is stable.",
		settings.BufferFrames, rate, Latency(settings.BufferFrames, rate))}
}

func (e *Engine) adviseMild(settings probe.Settings, rate int) []string {
	var recs []string

	if next, ok := climb(settings.BufferFrames, 1); ok {
		recs = append(recs, fmt.Sprintf(
			"Occasional xruns: increase buffer from %d to %d frames (%.1f ms @ %d Hz).",
			settings.BufferFrames, next, Latency(next, rate), rate))
	} else {
		recs = append(recs, "Occasional xruns at the largest buffer size: check for competing system load.")
	}

	if settings.Periods == 2 {
		recs = append(recs, "Switch from 2 to 3 periods; USB interfaces behave better with triple buffering.")
	}

	return recs
}

func (e *Engine) adviseSevere(settings probe.Settings, rate int, counts xrun.WindowCounts) []string {
	var recs []string

	target, ok := climb(settings.BufferFrames, 2)
	if e.severeJumpThreshold > 0 && counts[time.Minute] > e.severeJumpThreshold {
		target = BufferLadder[len(BufferLadder)-1]
		ok = target > settings.BufferFrames
	}
	if ok {
		recs = append(recs, fmt.Sprintf(
			"Frequent xruns: jump buffer from %d to %d frames (%.1f ms @ %d Hz).",
			settings.BufferFrames, target, Latency(target, rate), rate))
	} else {
		recs = append(recs, "Frequent xruns at the largest buffer size: inspect IRQ conflicts and USB cabling.")
	}

	if settings.SampleRateHz > 48000 {
		recs = append(recs, fmt.Sprintf(
			"Reduce sample rate from %d to 48000 Hz to halve the per-buffer deadline pressure.",
			settings.SampleRateHz))
	}

	if settings.Periods == 2 {
		recs = append(recs, "Switch from 2 to 3 periods; USB interfaces behave better with triple buffering.")
	}

	return recs
}

// climb moves steps tiers up the ladder from the current buffer size.
// Returns false when the buffer is already at or beyond the top.
func climb(buffer, steps int) (int, bool) {
	if buffer == 0 {
		// Unknown buffer: suggest the middle of the ladder.
		return BufferLadder[len(BufferLadder)/2], true
	}

	idx := len(BufferLadder)
	for i, tier := range BufferLadder {
		if tier > buffer {
			idx = i
			break
		}
	}
	idx += steps - 1
	if idx >= len(BufferLadder) {
		idx = len(BufferLadder) - 1
	}
	if BufferLadder[idx] <= buffer {
		return 0, false
	}
	return BufferLadder[idx], true
}

// genericGuidance is the buffer/latency reference table shown when no
// engine is running to tailor numbers to.
func genericGuidance() []string {
	recs := []string{"JACK is not running. General guidance at 48000 Hz:"}
	for _, buffer := range BufferLadder {
		recs = append(recs, fmt.Sprintf(
			"  %4d frames = %.1f ms (%s)",
			buffer, Latency(buffer, referenceRate), bufferUseCase(buffer)))
	}
	return recs
}

func bufferUseCase(buffer int) string {
	switch {
	case buffer <= 64:
		return "live monitoring, very fast machines only"
	case buffer <= 128:
		return "live recording with software monitoring"
	case buffer <= 256:
		return "general tracking"
	case buffer <= 512:
		return "mixing"
	default:
		return "mastering and playback"
	}
}
