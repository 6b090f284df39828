package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jacktune/jacktune/pkg/jacktune/xrun"
)

// Snapshot is the published status record. It is written to a well-known,
// world-readable location after every optimized-phase sample so the CLI and
// tray collaborators can read it without privilege.
type Snapshot struct {
	DevicePresent    bool           `json:"device_present"`
	State            State          `json:"state"`
	JackActive       bool           `json:"jack_active"`
	BufferFrames     int            `json:"buffer_frames,omitempty"`
	SampleRateHz     int            `json:"sample_rate_hz,omitempty"`
	Periods          int            `json:"periods,omitempty"`
	XrunWindowCounts map[string]int `json:"xrun_window_counts,omitempty"`
	Severity         string         `json:"severity,omitempty"`
	Recommendations  []string       `json:"recommendations,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// SnapshotPath returns the status file path for a state directory.
func SnapshotPath(stateDir string) string {
	return filepath.Join(stateDir, "status.json")
}

// WriteSnapshot writes the snapshot, world-readable.
func WriteSnapshot(path string, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot reads a previously published snapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// windowLabel renders a window duration as the compact form used in
// snapshot keys ("5s", "1m0s" would be wrong, so minutes are special-cased).
func windowLabel(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
	return fmt.Sprintf("%ds", int(d/time.Second))
}

// windowCountLabels converts window counts to their snapshot representation.
func windowCountLabels(counts xrun.WindowCounts) map[string]int {
	out := make(map[string]int, len(counts))
	for w, n := range counts {
		out[windowLabel(w)] = n
	}
	return out
}
