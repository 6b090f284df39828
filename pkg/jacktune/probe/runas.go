// Package probe queries the running JACK engine for its active buffer size,
// sample rate, and period count. It tolerates running with elevated
// privileges while the engine lives in a different user session: the query
// is re-issued under that session's identity.
package probe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strings"
)

// Identity is the user a query should run as. The zero value means "the
// current user, directly".
type Identity struct {
	Username string
	UID      string
}

// IsSet reports whether the identity names a different user to run as.
func (id Identity) IsSet() bool {
	return id.Username != ""
}

// Runner executes a command, optionally under another identity. Tests
// inject a fake; production uses SudoRunner.
type Runner interface {
	Run(ctx context.Context, id Identity, name string, args ...string) (string, error)
}

// ResolveIdentity implements the sudo convention: when running as root via
// sudo, queries against the user's session bus must run as the invoking
// desktop user, not as root.
func ResolveIdentity() Identity {
	if os.Geteuid() != 0 {
		return Identity{}
	}
	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" || sudoUser == "root" {
		return Identity{}
	}
	u, err := user.Lookup(sudoUser)
	if err != nil {
		return Identity{}
	}
	return Identity{Username: u.Username, UID: u.Uid}
}

// SudoRunner runs commands directly, or through sudo -u with the target
// session's D-Bus address when an identity is set.
type SudoRunner struct{}

// Run executes the command and returns combined stdout.
func (SudoRunner) Run(ctx context.Context, id Identity, name string, args ...string) (string, error) {
	var cmd *exec.Cmd
	if id.IsSet() {
		bus := fmt.Sprintf("DBUS_SESSION_BUS_ADDRESS=unix:path=/run/user/%s/bus", id.UID)
		sudoArgs := append([]string{"-u", id.Username, "env", bus, name}, args...)
		cmd = exec.CommandContext(ctx, "sudo", sudoArgs...)
	} else {
		cmd = exec.CommandContext(ctx, name, args...)
	}

	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}
