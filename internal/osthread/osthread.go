// Package osthread identifies the operating system thread the calling
// goroutine runs on. The result is only stable while the goroutine is locked
// with runtime.LockOSThread.
package osthread
