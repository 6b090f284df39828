package optimizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jacktune/jacktune/pkg/jacktune/config"
	"github.com/jacktune/jacktune/pkg/jacktune/ledger"
	"github.com/jacktune/jacktune/pkg/jacktune/logging"
)

// ServiceController starts and stops system services. The production
// implementation shells out to systemctl; tests inject a fake.
type ServiceController interface {
	IsActive(ctx context.Context, name string) (bool, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
}

// serviceTimeout bounds every service-controller call so a wedged systemd
// never stalls a tick.
const serviceTimeout = 5 * time.Second

// SystemdController controls services through systemctl.
type SystemdController struct{}

// IsActive reports whether the unit is currently active.
func (SystemdController) IsActive(ctx context.Context, name string) (bool, error) {
	out, err := exec.CommandContext(ctx, "systemctl", "is-active", name).Output()
	state := strings.TrimSpace(string(out))
	if state == "active" {
		return true, nil
	}
	// systemctl exits non-zero for inactive units; that is an answer,
	// not a failure.
	if state == "inactive" || state == "failed" || state == "unknown" {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// Start starts the unit.
func (SystemdController) Start(ctx context.Context, name string) error {
	return exec.CommandContext(ctx, "systemctl", "start", name).Run()
}

// Stop stops the unit.
func (SystemdController) Stop(ctx context.Context, name string) error {
	return exec.CommandContext(ctx, "systemctl", "stop", name).Run()
}

// Optimizer applies and reverts the coordinated tunable set.
type Optimizer struct {
	ledger             *ledger.Ledger
	pools              config.PoolsConfig
	backgroundGovernor string
	fsRoot             string
	services           ServiceController
	devicePath         func() string
	log                interface {
		Info(msg interface{}, kv ...interface{})
		Warn(msg interface{}, kv ...interface{})
		Debug(msg interface{}, kv ...interface{})
	}
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithFSRoot redirects all sysfs/procfs paths under root. Tests use this to
// operate on a fake filesystem.
func WithFSRoot(root string) Option {
	return func(o *Optimizer) { o.fsRoot = root }
}

// WithServiceController replaces the systemctl-backed controller.
func WithServiceController(sc ServiceController) Option {
	return func(o *Optimizer) { o.services = sc }
}

// WithDevicePath sets the resolver for the target device's sysfs directory.
func WithDevicePath(fn func() string) Option {
	return func(o *Optimizer) { o.devicePath = fn }
}

// New creates an Optimizer writing through the given ledger.
func New(l *ledger.Ledger, cfg *config.Config, opts ...Option) *Optimizer {
	o := &Optimizer{
		ledger:             l,
		pools:              cfg.Pools,
		backgroundGovernor: cfg.Pools.BackgroundGovernor,
		fsRoot:             "/",
		services:           SystemdController{},
		devicePath:         func() string { return "" },
		log:                logging.Get("optimizer"),
	}
	if o.backgroundGovernor == "" {
		o.backgroundGovernor = config.DefaultBackgroundGovernor
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Apply walks the plan, recording each tunable's prior value before writing
// the desired one. Failures on individual targets are collected and
// returned, never fatal: a kernel missing one facility must not block the
// rest of the plan.
func (o *Optimizer) Apply(plan []Target) []error {
	var errs []error

	for _, target := range plan {
		prior, err := o.readCurrent(target)
		if err != nil {
			prior = baselineFor(target.Kind, target.Key)
			o.log.Debug("current value unreadable, recording baseline",
				"key", target.Key, "baseline", prior)
		}

		if prior == target.Desired {
			// Already in the desired state. Recording it anyway keeps
			// the ledger complete, and first-write-wins means a
			// repeated Apply never clobbers the real prior value.
			if err := o.ledger.Record(target.Key, target.Kind, prior, target.Desired); err != nil {
				errs = append(errs, fmt.Errorf("record %s: %w", target.Key, err))
			}
			continue
		}

		if err := o.ledger.Record(target.Key, target.Kind, prior, target.Desired); err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", target.Key, err))
			continue
		}
		if err := o.write(target.Key, target.Kind, target.Desired); err != nil {
			errs = append(errs, fmt.Errorf("apply %s: %w", target.Key, err))
			o.log.Warn("tunable write failed", "key", target.Key, "err", err)
			continue
		}
		o.log.Info("tunable applied", "key", target.Key, "prior", prior, "value", target.Desired)
	}

	return errs
}

// RevertAll walks the ledger in reverse-insertion order and restores every
// recorded prior value verbatim. Entries are cleared as they are restored;
// a failed restore keeps its entry so a later pass can retry.
func (o *Optimizer) RevertAll() []error {
	var errs []error

	for _, entry := range o.ledger.Entries() {
		if err := o.write(entry.Key, entry.Kind, entry.Prior); err != nil {
			errs = append(errs, fmt.Errorf("revert %s: %w", entry.Key, err))
			o.log.Warn("tunable revert failed", "key", entry.Key, "err", err)
			continue
		}
		if err := o.ledger.Clear(entry.Key); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", entry.Key, err))
			continue
		}
		o.log.Info("tunable reverted", "key", entry.Key, "restored", entry.Prior)
	}

	return errs
}

// readCurrent reads a tunable's present value.
func (o *Optimizer) readCurrent(target Target) (string, error) {
	if isServiceKey(target.Key) {
		ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
		defer cancel()
		active, err := o.services.IsActive(ctx, serviceName(target.Key))
		if err != nil {
			return "", err
		}
		if active {
			return "active", nil
		}
		return "inactive", nil
	}
	return readTrimmed(target.Key)
}

// write sets a tunable to value, dispatching on the key form.
func (o *Optimizer) write(key string, kind ledger.Kind, value string) error {
	if isServiceKey(key) {
		ctx, cancel := context.WithTimeout(context.Background(), serviceTimeout)
		defer cancel()
		name := serviceName(key)
		if value == "active" {
			return o.services.Start(ctx, name)
		}
		return o.services.Stop(ctx, name)
	}
	return os.WriteFile(key, []byte(value), 0o644)
}
