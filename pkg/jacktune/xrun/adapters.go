package xrun

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// execCommand runs an external log query; injectable for tests.
type execCommand func(ctx context.Context, name string, args ...string) (string, error)

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	return string(out), err
}

// xrunMarkers are the substrings that identify an xrun line in JACK and
// bridge logs.
var xrunMarkers = []string{"xrun", "delay of", "delay exceeds"}

func lineHasXrun(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range xrunMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// LogFileAdapter tails a log file (the JACK engine log, or a cross-engine
// tunnel/bridge log) and counts xrun lines appended since the previous
// query. An fsnotify watcher detects truncation and rotation so the read
// offset can be reset instead of silently missing events.
type LogFileAdapter struct {
	name   string
	path   string
	severe bool

	mu      sync.Mutex
	offset  int64
	started bool
	watcher *fsnotify.Watcher
}

// NewLogFileAdapter creates an adapter for the given log file. The file may
// not exist yet; the adapter then reports zero until it appears.
func NewLogFileAdapter(name, path string) *LogFileAdapter {
	a := &LogFileAdapter{name: name, path: path}
	if w, err := fsnotify.NewWatcher(); err == nil {
		if w.Add(path) == nil {
			a.watcher = w
		} else {
			_ = w.Close()
		}
	}
	return a
}

// Name implements Adapter.
func (a *LogFileAdapter) Name() string { return a.name }

// Severe implements Adapter.
func (a *LogFileAdapter) Severe() bool { return a.severe }

// Close releases the rotation watcher.
func (a *LogFileAdapter) Close() error {
	if a.watcher != nil {
		return a.watcher.Close()
	}
	return nil
}

// Query counts xrun lines appended since the last call. The first call
// seeks to the end of the file: only events that happen while we watch are
// counted, mirroring the sliding-window semantics.
func (a *LogFileAdapter) Query(_ context.Context, _ time.Time) ([]Sample, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.drainRotationEvents()

	f, err := os.Open(a.path)
	if err != nil {
		return nil, nil // missing facility: zero, not an error
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil
	}

	if !a.started {
		a.started = true
		a.offset = info.Size()
		return nil, nil
	}
	if info.Size() < a.offset {
		// Truncated or rotated underneath us.
		a.offset = 0
	}

	if _, err := f.Seek(a.offset, io.SeekStart); err != nil {
		return nil, nil
	}

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if lineHasXrun(scanner.Text()) {
			count++
		}
	}
	a.offset = info.Size()

	if count == 0 {
		return nil, nil
	}
	return []Sample{{Source: a.name, Timestamp: time.Now(), Count: count}}, nil
}

// drainRotationEvents consumes pending fsnotify events; a remove or rename
// means the file was rotated and the offset no longer applies.
func (a *LogFileAdapter) drainRotationEvents() {
	if a.watcher == nil {
		return
	}
	for {
		select {
		case ev := <-a.watcher.Events:
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Create) {
				a.offset = 0
				_ = a.watcher.Add(a.path)
			}
		case <-a.watcher.Errors:
		default:
			return
		}
	}
}

// JournalAdapter queries the system journal for xrun reports from audio
// services.
type JournalAdapter struct {
	run execCommand
}

// NewJournalAdapter creates a journal-backed adapter.
func NewJournalAdapter() *JournalAdapter {
	return &JournalAdapter{run: runCommand}
}

// Name implements Adapter.
func (a *JournalAdapter) Name() string { return "journal" }

// Severe implements Adapter.
func (a *JournalAdapter) Severe() bool { return false }

// Query runs journalctl for entries since the horizon and counts xrun
// lines. No journal on this system means zero, not an error.
func (a *JournalAdapter) Query(ctx context.Context, since time.Time) ([]Sample, error) {
	out, err := a.run(ctx, "journalctl",
		"--since", since.Format("2006-01-02 15:04:05"),
		"--no-pager", "-q", "-o", "short-iso")
	if err != nil {
		return nil, nil
	}
	return countLines(a.Name(), out), nil
}

// KernelAdapter watches the kernel ring buffer for USB audio hardware
// errors. It is the severe source: anything it reports escalates the
// classification.
type KernelAdapter struct {
	run execCommand
}

// NewKernelAdapter creates a kernel-log adapter.
func NewKernelAdapter() *KernelAdapter {
	return &KernelAdapter{run: runCommand}
}

// Name implements Adapter.
func (a *KernelAdapter) Name() string { return "kernel" }

// Severe implements Adapter.
func (a *KernelAdapter) Severe() bool { return true }

// kernelMarkers identify hardware-level audio trouble in kernel logs.
var kernelMarkers = []string{
	"cannot submit urb",
	"delay: estimated",
	"frame bytes mismatch",
	"usb_set_interface failed",
}

// Query runs journalctl against the kernel ring buffer and counts hardware
// error lines.
func (a *KernelAdapter) Query(ctx context.Context, since time.Time) ([]Sample, error) {
	out, err := a.run(ctx, "journalctl", "-k",
		"--since", since.Format("2006-01-02 15:04:05"),
		"--no-pager", "-q")
	if err != nil {
		return nil, nil
	}

	count := 0
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		for _, marker := range kernelMarkers {
			if strings.Contains(lower, marker) {
				count++
				break
			}
		}
	}
	if count == 0 {
		return nil, nil
	}
	return []Sample{{Source: a.Name(), Timestamp: time.Now(), Count: count}}, nil
}

// countLines converts matching log lines into a single aggregate sample.
func countLines(source, out string) []Sample {
	count := 0
	for _, line := range strings.Split(out, "\n") {
		if lineHasXrun(line) {
			count++
		}
	}
	if count == 0 {
		return nil
	}
	return []Sample{{Source: source, Timestamp: time.Now(), Count: count}}
}
