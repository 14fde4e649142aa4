// errors.go - Fehler des memory-Pakets
package memory

import (
	"errors"
	"fmt"

	"github.com/ollama/accel/format"
)

var (
	// ErrNotContinuous is returned for slice views of memory without a
	// linear host-addressable layout.
	ErrNotContinuous = errors.New("memory: not continuous")

	// ErrUnsupportedFormat is returned for array element types without a
	// native array format.
	ErrUnsupportedFormat = errors.New("memory: unsupported array element type")

	// ErrUnsupportedCopy matches every *UnsupportedCopyError.
	ErrUnsupportedCopy = errors.New("memory: unsupported copy")
)

// AllocationError reports a failed native allocation. Exhaustion matches
// driver.ErrorOutOfMemory through Unwrap.
type AllocationError struct {
	Kind  Kind
	Bytes int
	Err   error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("memory: allocating %s of %s memory: %v", format.HumanBytes(int64(e.Bytes)), e.Kind, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// UnsupportedCopyError reports a pair of kinds Copy cannot transfer between.
type UnsupportedCopyError struct {
	Dst, Src Kind
}

func (e *UnsupportedCopyError) Error() string {
	return fmt.Sprintf("memory: copy from %s to %s is not supported", e.Src, e.Dst)
}

func (e *UnsupportedCopyError) Is(target error) bool {
	return target == ErrUnsupportedCopy
}
