//go:build linux || windows

package osthread

import (
	"runtime"
	"testing"
)

// TestIDStableWhileLocked prueft, dass die ID bei gesperrtem Thread stabil bleibt.
func TestIDStableWhileLocked(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	first := ID()
	for range 100 {
		runtime.Gosched()
		if id := ID(); id != first {
			t.Fatalf("ID: erwartet %d, bekommen %d", first, id)
		}
	}
}

// TestIDDiffersAcrossLockedThreads prueft zwei gesperrte Goroutinen.
func TestIDDiffersAcrossLockedThreads(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	mine := ID()
	theirs := make(chan int)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		theirs <- ID()
	}()

	if other := <-theirs; other == mine {
		t.Errorf("ID: zwei gesperrte Goroutinen teilen Thread %d", mine)
	}
}
