package engine

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned when a daemon instance already holds the
// PID file.
var ErrAlreadyRunning = errors.New("jacktuned already running")

// WritePIDFile writes the current process ID to a file.
func WritePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPIDFile reads a PID from a file.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// RemovePIDFile removes the PID file.
func RemovePIDFile(path string) error {
	return os.Remove(path)
}

// IsProcessRunning checks whether a process with the given PID exists.
func IsProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// IsDaemonRunning checks whether a daemon is running based on its PID file.
func IsDaemonRunning(pidPath string) bool {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return false
	}
	return IsProcessRunning(pid)
}

// RecoverStaleDaemon cleans up artifacts left by a crashed daemon: the PID
// file and the ledger store's lock. Returns ErrAlreadyRunning when a live
// daemon holds the PID file.
func RecoverStaleDaemon(pidPath, ledgerDir string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return nil // no PID file: nothing to recover
	}
	if IsProcessRunning(pid) {
		return ErrAlreadyRunning
	}
	_ = os.Remove(pidPath)
	_ = os.Remove(filepath.Join(ledgerDir, "LOCK"))
	return nil
}
