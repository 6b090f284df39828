package xrun

import "time"

// Severity is the derived overall xrun classification. Never stored.
type Severity int

// Severity levels.
const (
	Perfect Severity = iota
	Mild
	Severe
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case Perfect:
		return "perfect"
	case Mild:
		return "mild"
	case Severe:
		return "severe"
	default:
		return "unknown"
	}
}

// ClassifySeverity derives the overall severity from window counts:
//   - Perfect: the 1-minute total is zero.
//   - Mild: the 1-minute total is below mildThreshold and no severe
//     (hardware-error) source reported anything.
//   - Severe: everything else.
func ClassifySeverity(counts WindowCounts, severeCount, mildThreshold int) Severity {
	minute := counts[time.Minute]
	if minute == 0 && severeCount == 0 {
		return Perfect
	}
	if minute < mildThreshold && severeCount == 0 {
		return Mild
	}
	return Severe
}
