//go:build windows

package osthread

import "golang.org/x/sys/windows"

const Supported = true

// ID returns the Win32 thread id of the calling thread.
func ID() int {
	return int(windows.GetCurrentThreadId())
}
