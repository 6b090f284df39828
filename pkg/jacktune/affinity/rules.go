// Package affinity pins audio processes to CPU pools with real-time
// priorities. The rule table is static configuration; matching against the
// live process table is re-done from scratch every cycle, so processes that
// appear or vanish between scans never leave stale state behind.
package affinity

import (
	"strings"

	"github.com/jacktune/jacktune/pkg/jacktune/config"
)

// Class separates audio-server rules from application rules. The server
// class always carries the higher real-time priority: the audio engine must
// preempt the applications feeding it.
type Class string

// Rule classes.
const (
	ClassServer Class = "server"
	ClassApp    Class = "app"
)

// Rule maps a process name to a CPU set and scheduling parameters.
type Rule struct {
	// Name is matched case-insensitively and exactly against the
	// process's executable name (comm).
	Name string

	Class    Class
	CPUs     []int
	Priority int
	Policy   string
}

// Assignment is one matched process in a scan cycle. Ephemeral: recomputed
// every scan, never stored.
type Assignment struct {
	PID  int
	Comm string
	Rule Rule
}

// BuildRules assembles the rule table from configuration: the audio-server
// daemons on the fast-path pool at server priority, applications (including
// operator-supplied extras) on the background pool at the strictly lower
// app priority.
func BuildRules(cfg *config.Config) []Rule {
	rules := make([]Rule, 0,
		len(config.DefaultServerProcesses)+len(config.DefaultAppProcesses)+len(cfg.ExtraProcesses))

	for _, name := range config.DefaultServerProcesses {
		rules = append(rules, Rule{
			Name:     name,
			Class:    ClassServer,
			CPUs:     cfg.Pools.Audio,
			Priority: cfg.Priorities.Server,
			Policy:   cfg.Priorities.Policy,
		})
	}

	appNames := append([]string{}, config.DefaultAppProcesses...)
	for _, extra := range cfg.ExtraProcesses {
		if !containsFold(appNames, extra) {
			appNames = append(appNames, extra)
		}
	}
	for _, name := range appNames {
		rules = append(rules, Rule{
			Name:     name,
			Class:    ClassApp,
			CPUs:     cfg.Pools.Background,
			Priority: cfg.Priorities.App,
			Policy:   cfg.Priorities.Policy,
		})
	}

	return rules
}

func containsFold(names []string, want string) bool {
	for _, name := range names {
		if strings.EqualFold(name, want) {
			return true
		}
	}
	return false
}
