package probe

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jacktune/jacktune/pkg/jacktune/logging"
)

// Settings is the engine's active configuration. A zero field means
// "unknown": the probe could not determine it, which is an answer, not an
// error.
type Settings struct {
	Active       bool `json:"active"`
	BufferFrames int  `json:"buffer_frames,omitempty"`
	SampleRateHz int  `json:"sample_rate_hz,omitempty"`
	Periods      int  `json:"periods,omitempty"`
}

// engineProcesses are the process names that mean "JACK is up".
var engineProcesses = []string{"jackd", "jackdbus"}

// queryTimeout bounds the external jack_control invocation.
const queryTimeout = 3 * time.Second

// Probe queries the running JACK engine.
type Probe struct {
	runner   Runner
	resolve  func() Identity
	procRoot string
	timeout  time.Duration
	log      *log.Logger
}

// Option configures a Probe.
type Option func(*Probe)

// WithRunner replaces the command runner (tests).
func WithRunner(r Runner) Option {
	return func(p *Probe) { p.runner = r }
}

// WithIdentityResolver replaces the sudo-identity resolver (tests).
func WithIdentityResolver(fn func() Identity) Option {
	return func(p *Probe) { p.resolve = fn }
}

// WithProcRoot points engine detection at an alternate proc mount (tests).
func WithProcRoot(root string) Option {
	return func(p *Probe) { p.procRoot = root }
}

// New creates a Probe.
func New(opts ...Option) *Probe {
	p := &Probe{
		runner:   SudoRunner{},
		resolve:  ResolveIdentity,
		procRoot: "/proc",
		timeout:  queryTimeout,
		log:      logging.Get("probe"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CurrentSettings detects the engine and queries its driver parameters.
// When the engine is not running it returns active=false with all fields
// unknown. Individual query failures degrade fields to unknown.
func (p *Probe) CurrentSettings(ctx context.Context) Settings {
	if !p.engineRunning() {
		return Settings{}
	}

	settings := Settings{Active: true}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.runner.Run(ctx, p.resolve(), "jack_control", "dp")
	if err != nil {
		p.log.Debug("driver parameter query failed", "err", err)
		return settings
	}

	buffer, rate, periods := parseDriverParams(out)
	settings.BufferFrames = buffer
	settings.SampleRateHz = rate
	settings.Periods = periods
	return settings
}

// engineRunning scans the process table for a JACK engine process.
func (p *Probe) engineRunning() bool {
	entries, err := os.ReadDir(p.procRoot)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(p.procRoot, entry.Name(), "comm"))
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(comm))
		for _, engine := range engineProcesses {
			if strings.EqualFold(name, engine) {
				return true
			}
		}
	}
	return false
}

// parseDriverParams extracts period, rate, and nperiods from jack_control dp
// output. Lines look like:
//
//	period: (uint:256:256) 256
//	rate: (uint:48000:48000) 48000
//	nperiods: (uint:2:2) 2
//
// or the colon-separated variant "period: u32:set:256:256". The last
// numeric token on a matching line wins; an unparseable line leaves that
// field unknown.
func parseDriverParams(out string) (buffer, rate, periods int) {
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "period:"):
			buffer = lastInt(trimmed)
		case strings.HasPrefix(trimmed, "rate:"):
			rate = lastInt(trimmed)
		case strings.HasPrefix(trimmed, "nperiods:"):
			periods = lastInt(trimmed)
		}
	}
	return buffer, rate, periods
}

// lastInt returns the last integer-parseable token of a line, splitting on
// both whitespace and colons, or 0 when there is none.
func lastInt(line string) int {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ':' || r == ' ' || r == '\t' || r == '(' || r == ')'
	})
	for i := len(fields) - 1; i >= 0; i-- {
		if n, err := strconv.Atoi(fields[i]); err == nil {
			return n
		}
	}
	return 0
}
