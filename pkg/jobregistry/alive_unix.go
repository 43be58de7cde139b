//go:build !windows

package jobregistry

import (
	"os"
	"syscall"
)

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks for existence without sending a signal.
	return p.Signal(syscall.Signal(0)) == nil
}
