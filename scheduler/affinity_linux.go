//go:build linux

package scheduler

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// pinThread locks the calling goroutine to its OS thread and binds that
// thread to the given core. Called once at scheduler startup.
func pinThread(core int) error {
	runtime.LockOSThread()

	if core >= runtime.NumCPU() {
		return fmt.Errorf("core %d not available (max: %d)", core, runtime.NumCPU()-1)
	}

	var cpuSet unix.CPUSet
	cpuSet.Zero()
	cpuSet.Set(core)

	tid := unix.Gettid()
	if err := unix.SchedSetaffinity(tid, &cpuSet); err != nil {
		return fmt.Errorf("set CPU affinity to core %d: %w", core, err)
	}
	return nil
}
