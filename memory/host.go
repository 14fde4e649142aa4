// host.go - Gewoehnlicher Host-Speicher
package memory

import (
	"log/slog"
	"unsafe"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/driver"
)

// Host is a Go slice used as memory. Its kind and context are discovered
// through the default driver's pointer attributes, so a slice over
// page-locked or device memory reports that kind.
type Host[T Scalar] []T

func (h Host[T]) pointer() unsafe.Pointer { return unsafe.Pointer(unsafe.SliceData(h)) }

func (h Host[T]) HeadAddr() uintptr { return uintptr(h.pointer()) }
func (h Host[T]) NumElem() int      { return len(h) }
func (h Host[T]) Len() int          { return len(h) }
func (h Host[T]) ByteSize() int     { return len(h) * sizeOf[T]() }

func (h Host[T]) Slice() []T                { return h }
func (h Host[T]) MutSlice() []T             { return h }
func (h Host[T]) TrySlice() ([]T, error)    { return h, nil }
func (h Host[T]) TryMutSlice() ([]T, error) { return h, nil }

// Kind returns KindPageLocked for driver-known host memory, KindDevice for
// device memory and KindHost otherwise.
func (h Host[T]) Kind() Kind {
	if len(h) == 0 {
		return KindHost
	}

	drv, err := driver.Default()
	if err != nil {
		return KindHost
	}

	t, err := drv.PointerGetAttribute(driver.PointerAttributeMemoryType, h.pointer())
	if err != nil {
		return KindHost
	}

	switch driver.MemoryType(t) {
	case driver.MemoryTypeHost:
		return KindPageLocked
	case driver.MemoryTypeDevice:
		return KindDevice
	case driver.MemoryTypeArray:
		return KindArray
	default:
		return KindHost
	}
}

// Context returns the context owning the slice's memory, or nil.
func (h Host[T]) Context() *device.Context {
	if len(h) == 0 {
		return nil
	}

	drv, err := driver.Default()
	if err != nil {
		return nil
	}

	ctx, err := device.Lookup(drv, h.pointer())
	if err != nil {
		slog.Debug("context lookup failed", "addr", h.HeadAddr(), "error", err)
		return nil
	}
	return ctx
}

func (h Host[T]) CopyFrom(src Memory[T]) error {
	return Copy[T](h, src)
}

func (h Host[T]) Set(v T) error {
	for i := range h {
		h[i] = v
	}
	return nil
}
