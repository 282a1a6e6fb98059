//go:build !unix

package proc

import "os"

// processAlive reports whether a process with pid can be opened.
// On non-unix platforms FindProcess fails for processes that have exited.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
