package optimizer

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// Drivers whose interrupts get pinned to the IRQ pool: the USB host
// controller carrying the interface and the USB audio driver itself.
var irqDrivers = []string{"xhci_hcd", "ehci_hcd", "snd_usb_audio"}

// discoverIRQs returns the IRQ numbers belonging to the USB controller and
// audio driver, from two independent sources OR'd together: the
// /proc/interrupts table and the per-device msi_irqs directories under
// /sys/devices. Either source may be missing; discovery then degrades to
// whatever the other one found.
func (o *Optimizer) discoverIRQs() []string {
	found := make(map[string]struct{})

	for _, irq := range parseInterruptsTable(filepath.Join(o.fsRoot, "proc", "interrupts")) {
		found[irq] = struct{}{}
	}
	for _, irq := range walkDeviceIRQs(filepath.Join(o.fsRoot, "sys", "devices")) {
		found[irq] = struct{}{}
	}

	irqs := make([]string, 0, len(found))
	for irq := range found {
		irqs = append(irqs, irq)
	}
	sort.Strings(irqs)
	return irqs
}

// parseInterruptsTable extracts IRQ numbers from /proc/interrupts lines whose
// action column names one of the watched drivers.
func parseInterruptsTable(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var irqs []string
	for _, line := range strings.Split(string(data), "\n") {
		if !lineMentionsDriver(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		num := strings.TrimSuffix(fields[0], ":")
		if _, err := strconv.Atoi(num); err == nil {
			irqs = append(irqs, num)
		}
	}
	return irqs
}

func lineMentionsDriver(line string) bool {
	for _, driver := range irqDrivers {
		if strings.Contains(line, driver) {
			return true
		}
	}
	return false
}

// walkDeviceIRQs walks the /sys/devices tree looking for devices bound to a
// watched driver and collects the entries of their msi_irqs directories.
// The tree is deep and wide, so the concurrent walker earns its keep here.
func walkDeviceIRQs(root string) []string {
	if _, err := os.Stat(root); err != nil {
		return nil
	}

	var (
		mu   sync.Mutex
		irqs []string
	)

	conf := fastwalk.Config{Follow: false}
	_ = fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree: skip, not fatal
		}
		if d.Name() != "driver" || d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		dest, err := os.Readlink(path)
		if err != nil || !destMatchesDriver(dest) {
			return nil
		}
		entries, err := os.ReadDir(filepath.Join(filepath.Dir(path), "msi_irqs"))
		if err != nil {
			return nil
		}
		mu.Lock()
		for _, e := range entries {
			if _, convErr := strconv.Atoi(e.Name()); convErr == nil {
				irqs = append(irqs, e.Name())
			}
		}
		mu.Unlock()
		return nil
	})

	return irqs
}

func destMatchesDriver(dest string) bool {
	base := filepath.Base(dest)
	for _, driver := range irqDrivers {
		if base == driver {
			return true
		}
	}
	return false
}
