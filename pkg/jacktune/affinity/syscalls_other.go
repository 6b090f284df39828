//go:build !linux

package affinity

import "errors"

// errUnsupported is returned on platforms without Linux scheduling syscalls.
var errUnsupported = errors.New("process scheduling control requires Linux")

type stubSyscalls struct{}

func defaultSyscalls() Syscalls {
	return stubSyscalls{}
}

func (stubSyscalls) SetAffinity(int, []int) error {
	return errUnsupported
}

func (stubSyscalls) SetScheduler(int, string, int) error {
	return errUnsupported
}
