//go:build !linux

package scheduler

import "runtime"

// pinThread locks the goroutine to a thread; core binding is a linux
// facility and is skipped elsewhere.
func pinThread(core int) error {
	runtime.LockOSThread()
	return nil
}
