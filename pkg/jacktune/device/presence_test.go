package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacktune/jacktune/pkg/jacktune/config"
)

var testIdentity = config.DeviceConfig{
	VendorID:  "1235",
	ProductID: "8215",
	CardName:  "Scarlett 18i20 USB",
}

// writeCards writes a fake /proc/asound/cards file and returns its path.
func writeCards(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cards")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeUSBDevice creates a fake sysfs USB device directory under root.
func writeUSBDevice(t *testing.T, root, name, vendor, product string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "idVendor"), []byte(vendor+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "idProduct"), []byte(product+"\n"), 0o644))
}

func TestIsPresentViaCardRegistry(t *testing.T) {
	cards := writeCards(t, ` 0 [PCH            ]: HDA-Intel - HDA Intel PCH
 1 [USB            ]: USB-Audio - Scarlett 18i20 USB
                      Focusrite Scarlett 18i20 USB at usb-0000:00:14.0-3
`)
	d := NewDetectorWithRoots(testIdentity, cards, filepath.Join(t.TempDir(), "missing"))
	assert.True(t, d.IsPresent())
}

func TestIsPresentViaUSBBus(t *testing.T) {
	cards := writeCards(t, " 0 [PCH            ]: HDA-Intel - HDA Intel PCH\n")
	usbRoot := t.TempDir()
	writeUSBDevice(t, usbRoot, "1-3", "1235", "8215")
	writeUSBDevice(t, usbRoot, "1-4", "046d", "c52b")

	d := NewDetectorWithRoots(testIdentity, cards, usbRoot)
	assert.True(t, d.IsPresent())
	assert.Equal(t, filepath.Join(usbRoot, "1-3"), d.DevicePath())
}

func TestNotPresent(t *testing.T) {
	cards := writeCards(t, " 0 [PCH            ]: HDA-Intel - HDA Intel PCH\n")
	usbRoot := t.TempDir()
	writeUSBDevice(t, usbRoot, "1-4", "046d", "c52b")

	d := NewDetectorWithRoots(testIdentity, cards, usbRoot)
	assert.False(t, d.IsPresent())
	assert.Empty(t, d.DevicePath())
}

func TestMissingEnumerationPathsAreNotFound(t *testing.T) {
	// Sandboxed environments may expose neither path. That reads as
	// absent, never as an error.
	d := NewDetectorWithRoots(testIdentity,
		filepath.Join(t.TempDir(), "no-cards"),
		filepath.Join(t.TempDir(), "no-usb"))
	assert.False(t, d.IsPresent())
}

func TestVendorMatchWithoutProductIsNotPresent(t *testing.T) {
	usbRoot := t.TempDir()
	writeUSBDevice(t, usbRoot, "1-3", "1235", "0000")

	d := NewDetectorWithRoots(testIdentity, filepath.Join(t.TempDir(), "no-cards"), usbRoot)
	assert.False(t, d.IsPresent())
}

func TestIDComparisonIsCaseInsensitive(t *testing.T) {
	usbRoot := t.TempDir()
	writeUSBDevice(t, usbRoot, "2-1", "0ABC", "8DEF")

	identity := config.DeviceConfig{VendorID: "0abc", ProductID: "8def"}
	d := NewDetectorWithRoots(identity, filepath.Join(t.TempDir(), "no-cards"), usbRoot)
	assert.True(t, d.IsPresent())
}
