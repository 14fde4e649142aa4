// errors.go - Fehler des device-Pakets
package device

import (
	"errors"
	"fmt"
)

var (
	// ErrContextNotCurrent is returned when an operation needs the receiver
	// to be the current context of the calling thread.
	ErrContextNotCurrent = errors.New("device: context is not current on this thread")

	// ErrContextAlreadyActive is returned when the calling thread already has
	// an active context.
	ErrContextAlreadyActive = errors.New("device: a context is already active on this thread")

	// ErrContextCreation matches every *CreationError.
	ErrContextCreation = errors.New("device: context creation failed")
)

// CreationError reports a failed native context creation.
type CreationError struct {
	Device int
	Err    error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("device: creating context on device %d: %v", e.Device, e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

func (e *CreationError) Is(target error) bool {
	return target == ErrContextCreation
}
