package affinity

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacktune/jacktune/pkg/jacktune/config"
)

// recordingSyscalls captures calls instead of issuing them.
type recordingSyscalls struct {
	affinity  map[int][]int
	scheduler map[int][2]int // policy mapped below, priority
	policies  map[int]string
	failPIDs  map[int]bool
}

func newRecordingSyscalls() *recordingSyscalls {
	return &recordingSyscalls{
		affinity:  make(map[int][]int),
		scheduler: make(map[int][2]int),
		policies:  make(map[int]string),
		failPIDs:  make(map[int]bool),
	}
}

func (r *recordingSyscalls) SetAffinity(pid int, cpus []int) error {
	if r.failPIDs[pid] {
		return errors.New("operation not permitted")
	}
	r.affinity[pid] = append([]int{}, cpus...)
	return nil
}

func (r *recordingSyscalls) SetScheduler(pid int, policy string, priority int) error {
	if r.failPIDs[pid] {
		return errors.New("operation not permitted")
	}
	r.policies[pid] = policy
	r.scheduler[pid] = [2]int{0, priority}
	return nil
}

// fakeProc creates a proc-style directory with the given pid->comm table.
func fakeProc(t *testing.T, procs map[int]string) string {
	t.Helper()
	root := t.TempDir()
	for pid, comm := range procs {
		dir := filepath.Join(root, strconv.Itoa(pid))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644))
	}
	// Non-pid entries must be ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys"), 0o755))
	return root
}

func testRules() []Rule {
	cfg := &config.Config{
		Pools: config.PoolsConfig{
			Audio:      []int{2, 3},
			Background: []int{0},
			IRQ:        []int{1},
		},
		Priorities:     config.PriorityConfig{Server: 85, App: 70, Policy: "fifo"},
		ExtraProcesses: []string{"bitwig-studio"},
	}
	return BuildRules(cfg)
}

func TestBuildRulesPriorityOrdering(t *testing.T) {
	rules := testRules()

	var serverMin, appMax int
	serverMin = 1 << 30
	for _, rule := range rules {
		switch rule.Class {
		case ClassServer:
			if rule.Priority < serverMin {
				serverMin = rule.Priority
			}
			assert.Equal(t, []int{2, 3}, rule.CPUs, rule.Name)
		case ClassApp:
			if rule.Priority > appMax {
				appMax = rule.Priority
			}
			assert.Equal(t, []int{0}, rule.CPUs, rule.Name)
		}
	}

	// Load-bearing invariant: every server rule outranks every app rule.
	assert.Greater(t, serverMin, appMax)
}

func TestBuildRulesIncludesExtras(t *testing.T) {
	rules := testRules()

	var found bool
	for _, rule := range rules {
		if rule.Name == "bitwig-studio" {
			found = true
			assert.Equal(t, ClassApp, rule.Class)
		}
	}
	assert.True(t, found)
}

func TestScanMatchesExactCaseInsensitive(t *testing.T) {
	proc := fakeProc(t, map[int]string{
		100: "jackd",
		101: "JACKDBUS", // case differs, still a match
		102: "ardour",
		103: "jackd-helper", // partial, must not match
		104: "firefox",
	})

	m := NewManager(testRules(), WithProcRoot(proc), WithSyscalls(newRecordingSyscalls()))
	matches := m.Scan()

	pids := make(map[int]string)
	for _, a := range matches {
		pids[a.PID] = string(a.Rule.Class)
	}
	assert.Equal(t, map[int]string{
		100: "server",
		101: "server",
		102: "app",
	}, pids)
}

func TestApplyAll(t *testing.T) {
	proc := fakeProc(t, map[int]string{
		100: "jackd",
		102: "ardour",
	})
	sys := newRecordingSyscalls()
	m := NewManager(testRules(), WithProcRoot(proc), WithSyscalls(sys))

	errs := m.ApplyAll()
	assert.Empty(t, errs)

	assert.Equal(t, []int{2, 3}, sys.affinity[100])
	assert.Equal(t, 85, sys.scheduler[100][1])
	assert.Equal(t, "fifo", sys.policies[100])

	assert.Equal(t, []int{0}, sys.affinity[102])
	assert.Equal(t, 70, sys.scheduler[102][1])

	// The audio server outranks the application.
	assert.Greater(t, sys.scheduler[100][1], sys.scheduler[102][1])
}

func TestApplyAllSkipsFailingProcesses(t *testing.T) {
	proc := fakeProc(t, map[int]string{
		100: "jackd",
		102: "ardour",
	})
	sys := newRecordingSyscalls()
	sys.failPIDs[100] = true
	m := NewManager(testRules(), WithProcRoot(proc), WithSyscalls(sys))

	errs := m.ApplyAll()
	// The failure is reported but the other process is still pinned.
	assert.Len(t, errs, 1)
	assert.Equal(t, []int{0}, sys.affinity[102])
}

func TestRevertAll(t *testing.T) {
	proc := fakeProc(t, map[int]string{
		100: "jackd",
		102: "ardour",
	})
	sys := newRecordingSyscalls()
	m := NewManager(testRules(), WithProcRoot(proc), WithSyscalls(sys), WithNumCPU(4))

	require.Empty(t, m.ApplyAll())
	require.Empty(t, m.RevertAll())

	// Everything back to the full CPU set and non-RT scheduling.
	assert.Equal(t, []int{0, 1, 2, 3}, sys.affinity[100])
	assert.Equal(t, []int{0, 1, 2, 3}, sys.affinity[102])
	assert.Equal(t, 0, sys.scheduler[100][1])
	assert.Equal(t, "other", sys.policies[100])
}

func TestScanMissingProcRoot(t *testing.T) {
	m := NewManager(testRules(),
		WithProcRoot(filepath.Join(t.TempDir(), "missing")),
		WithSyscalls(newRecordingSyscalls()))
	assert.Empty(t, m.Scan())
	assert.Empty(t, m.ApplyAll())
}
