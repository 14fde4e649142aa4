//go:build !linux && !windows

package osthread

// Supported reports whether ID works on this platform. Callers check it
// before the first ID call.
const Supported = false

// ID panics: thread identity is only implemented for linux and windows.
func ID() int {
	panic("osthread: thread identity is not supported on this platform")
}
