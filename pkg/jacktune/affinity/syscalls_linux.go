//go:build linux

package affinity

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// linuxSyscalls issues the real sched_setaffinity / sched_setscheduler
// calls.
type linuxSyscalls struct{}

func defaultSyscalls() Syscalls {
	return linuxSyscalls{}
}

// SetAffinity restricts pid to the given CPU set.
func (linuxSyscalls) SetAffinity(pid int, cpus []int) error {
	var set unix.CPUSet
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	return unix.SchedSetaffinity(pid, &set)
}

// schedParam mirrors struct sched_param.
type schedParam struct {
	priority int32
}

// SetScheduler switches pid to the given scheduling class. Policy "fifo"
// and "rr" are real-time classes; anything else resets to SCHED_NORMAL with
// priority 0.
func (linuxSyscalls) SetScheduler(pid int, policy string, priority int) error {
	var policyNo uintptr
	switch policy {
	case "fifo":
		policyNo = unix.SCHED_FIFO
	case "rr":
		policyNo = unix.SCHED_RR
	default:
		policyNo = unix.SCHED_NORMAL
		priority = 0
	}

	param := schedParam{priority: int32(priority)}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER,
		uintptr(pid), policyNo, uintptr(unsafe.Pointer(&param)))
	if errno != 0 {
		return errno
	}
	return nil
}
