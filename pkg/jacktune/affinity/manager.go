package affinity

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/jacktune/jacktune/pkg/jacktune/logging"
)

// Syscalls is the scheduling syscall surface the manager needs. The
// production implementation lives in syscalls_linux.go; tests inject a
// recorder.
type Syscalls interface {
	SetAffinity(pid int, cpus []int) error
	SetScheduler(pid int, policy string, priority int) error
}

// Manager re-scans the process table and (re-)applies affinity and priority
// to every rule match. It holds no state between scans.
type Manager struct {
	rules    []Rule
	sys      Syscalls
	procRoot string
	numCPU   int
	log      *log.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithProcRoot points the scanner at an alternate proc mount (tests).
func WithProcRoot(root string) Option {
	return func(m *Manager) { m.procRoot = root }
}

// WithSyscalls replaces the scheduling syscall layer (tests).
func WithSyscalls(sys Syscalls) Option {
	return func(m *Manager) { m.sys = sys }
}

// WithNumCPU overrides the CPU count used for the full-set revert (tests).
func WithNumCPU(n int) Option {
	return func(m *Manager) { m.numCPU = n }
}

// NewManager creates a Manager for the given rule table.
func NewManager(rules []Rule, opts ...Option) *Manager {
	m := &Manager{
		rules:    rules,
		sys:      defaultSyscalls(),
		procRoot: "/proc",
		numCPU:   runtime.NumCPU(),
		log:      logging.Get("affinity"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Scan reads the live process table and returns the current rule matches.
// A process's executable name must equal a rule name, case-insensitively.
func (m *Manager) Scan() []Assignment {
	entries, err := os.ReadDir(m.procRoot)
	if err != nil {
		// Structural unavailability reads as an empty table.
		return nil
	}

	var matches []Assignment
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(m.procRoot, entry.Name(), "comm"))
		if err != nil {
			continue // process exited between readdir and read
		}
		name := strings.TrimSpace(string(comm))
		for _, rule := range m.rules {
			if strings.EqualFold(name, rule.Name) {
				matches = append(matches, Assignment{PID: pid, Comm: name, Rule: rule})
				break
			}
		}
	}
	return matches
}

// ApplyAll scans and issues affinity and scheduler settings for every match.
// Per-process failures (usually privileges) are logged, collected, and
// skipped; they never abort the pass. Safe to call repeatedly.
func (m *Manager) ApplyAll() []error {
	var errs []error

	for _, a := range m.Scan() {
		if err := m.sys.SetAffinity(a.PID, a.Rule.CPUs); err != nil {
			errs = append(errs, fmt.Errorf("affinity pid %d (%s): %w", a.PID, a.Comm, err))
			m.log.Warn("affinity set failed", "pid", a.PID, "comm", a.Comm, "err", err)
			continue
		}
		if err := m.sys.SetScheduler(a.PID, a.Rule.Policy, a.Rule.Priority); err != nil {
			errs = append(errs, fmt.Errorf("scheduler pid %d (%s): %w", a.PID, a.Comm, err))
			m.log.Warn("scheduler set failed", "pid", a.PID, "comm", a.Comm, "err", err)
			continue
		}
		m.log.Debug("process pinned",
			"pid", a.PID, "comm", a.Comm, "cpus", a.Rule.CPUs,
			"priority", a.Rule.Priority, "class", a.Rule.Class)
	}

	return errs
}

// RevertAll re-scans and resets every match to the full CPU set and standard
// non-real-time scheduling. Idempotent; per-process failures are skipped.
func (m *Manager) RevertAll() []error {
	full := make([]int, m.numCPU)
	for i := range full {
		full[i] = i
	}

	var errs []error
	for _, a := range m.Scan() {
		if err := m.sys.SetAffinity(a.PID, full); err != nil {
			errs = append(errs, fmt.Errorf("affinity pid %d (%s): %w", a.PID, a.Comm, err))
			continue
		}
		if err := m.sys.SetScheduler(a.PID, "other", 0); err != nil {
			errs = append(errs, fmt.Errorf("scheduler pid %d (%s): %w", a.PID, a.Comm, err))
			continue
		}
		m.log.Debug("process released", "pid", a.PID, "comm", a.Comm)
	}
	return errs
}
