// Package device detects whether the target USB audio interface is attached.
// It combines two independent probes: the ALSA card registry and the USB bus
// device tree. Either probe answering yes means the device is present.
package device

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jacktune/jacktune/pkg/jacktune/config"
)

// Default enumeration roots on Linux.
const (
	DefaultCardsPath  = "/proc/asound/cards"
	DefaultUSBBusPath = "/sys/bus/usb/devices"
	vendorIDFileName  = "idVendor"
	productIDFileName = "idProduct"
)

// Detector answers "is the target device attached". It has no side effects
// and never returns an error: a missing enumeration path (sandboxed
// environment, non-Linux filesystem layout) reads as "not found".
type Detector struct {
	identity config.DeviceConfig

	// Enumeration roots, overridable for tests.
	cardsPath  string
	usbBusPath string
}

// NewDetector creates a detector for the configured device identity.
func NewDetector(identity config.DeviceConfig) *Detector {
	return &Detector{
		identity:   identity,
		cardsPath:  DefaultCardsPath,
		usbBusPath: DefaultUSBBusPath,
	}
}

// NewDetectorWithRoots creates a detector with explicit enumeration paths.
// Used by tests to point at a fake filesystem.
func NewDetectorWithRoots(identity config.DeviceConfig, cardsPath, usbBusPath string) *Detector {
	return &Detector{
		identity:   identity,
		cardsPath:  cardsPath,
		usbBusPath: usbBusPath,
	}
}

// IsPresent probes, in order, short-circuiting on the first hit:
//  1. driver-registered sound cards (ALSA card label match)
//  2. the USB device tree (vendor/product ID match)
func (d *Detector) IsPresent() bool {
	return d.cardRegistered() || d.onUSBBus()
}

// cardRegistered scans the ALSA cards file for the configured card label.
func (d *Detector) cardRegistered() bool {
	if d.identity.CardName == "" {
		return false
	}
	data, err := os.ReadFile(d.cardsPath)
	if err != nil {
		return false
	}
	needle := strings.ToLower(d.identity.CardName)
	for _, line := range strings.Split(string(data), "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			return true
		}
	}
	return false
}

// onUSBBus scans the USB device tree for the configured vendor/product pair.
func (d *Detector) onUSBBus() bool {
	if d.identity.VendorID == "" || d.identity.ProductID == "" {
		return false
	}
	entries, err := os.ReadDir(d.usbBusPath)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		dir := filepath.Join(d.usbBusPath, entry.Name())
		if !matchIDFile(filepath.Join(dir, vendorIDFileName), d.identity.VendorID) {
			continue
		}
		if matchIDFile(filepath.Join(dir, productIDFileName), d.identity.ProductID) {
			return true
		}
	}
	return false
}

// DevicePath returns the sysfs directory of the matched USB device, or ""
// when the device is not on the bus. The optimizer uses it to locate the
// device's power policy files.
func (d *Detector) DevicePath() string {
	entries, err := os.ReadDir(d.usbBusPath)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		dir := filepath.Join(d.usbBusPath, entry.Name())
		if matchIDFile(filepath.Join(dir, vendorIDFileName), d.identity.VendorID) &&
			matchIDFile(filepath.Join(dir, productIDFileName), d.identity.ProductID) {
			return dir
		}
	}
	return ""
}

func matchIDFile(path, want string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(string(data)), want)
}
