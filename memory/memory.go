// memory.go - Faehigkeiten von Speicherobjekten
//
// Enthaelt:
// - Memory, MemoryMut, Continuous, ContinuousMut, Managed
// - linear: gemeinsame Basis von PageLocked, Registered und Device
package memory

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"unsafe"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/driver"
	"github.com/ollama/accel/format"
)

// Memory has a head address and a byte size.
type Memory[T Scalar] interface {
	HeadAddr() uintptr
	ByteSize() int
	NumElem() int
	Kind() Kind

	// TrySlice returns the memory as a slice, or ErrNotContinuous.
	TrySlice() ([]T, error)

	// Context returns the owning context, or nil for memory the driver does
	// not manage.
	Context() *device.Context
}

// MemoryMut is writable memory.
type MemoryMut[T Scalar] interface {
	Memory[T]

	TryMutSlice() ([]T, error)

	// CopyFrom copies src into the receiver, see Copy.
	CopyFrom(src Memory[T]) error

	// Set writes v to every element.
	Set(v T) error
}

// Continuous is memory with a linear host-addressable layout.
type Continuous[T Scalar] interface {
	Memory[T]
	Len() int
	Slice() []T
}

// ContinuousMut is writable Continuous memory.
type ContinuousMut[T Scalar] interface {
	Continuous[T]
	MemoryMut[T]
	MutSlice() []T
}

// Managed is memory known to the driver's unified addressing.
type Managed[T Scalar] interface {
	Memory[T]
	BufferID() (uint64, error)
}

// pointered is memory Copy can address linearly.
type pointered interface {
	pointer() unsafe.Pointer
}

func zeroSized(n int) {
	if n <= 0 {
		panic("memory: zero-sized allocation is forbidden")
	}
}

// linear is a driver allocation of n elements of T owned together with a
// clone of its context.
type linear[T Scalar] struct {
	ctx    *device.Context
	ptr    unsafe.Pointer
	n      int
	closed atomic.Bool
}

func (m *linear[T]) pointer() unsafe.Pointer { return m.ptr }

func (m *linear[T]) HeadAddr() uintptr { return uintptr(m.ptr) }
func (m *linear[T]) NumElem() int      { return m.n }
func (m *linear[T]) Len() int          { return m.n }
func (m *linear[T]) ByteSize() int     { return m.n * sizeOf[T]() }

func (m *linear[T]) Context() *device.Context { return m.ctx }

// Slice returns the elements. It must not be used after Close.
func (m *linear[T]) Slice() []T    { return unsafe.Slice((*T)(m.ptr), m.n) }
func (m *linear[T]) MutSlice() []T { return m.Slice() }

func (m *linear[T]) TrySlice() ([]T, error)    { return m.Slice(), nil }
func (m *linear[T]) TryMutSlice() ([]T, error) { return m.Slice(), nil }

func (m *linear[T]) Set(v T) error {
	s := m.Slice()
	for i := range s {
		s[i] = v
	}
	return nil
}

func (m *linear[T]) BufferID() (uint64, error) {
	return m.ctx.Driver().PointerGetAttribute(driver.PointerAttributeBufferID, m.ptr)
}

// release frees the allocation with free under its context and drops the
// context clone. Only the first call has an effect.
func (m *linear[T]) release(kind Kind, free func(unsafe.Pointer) error) error {
	if m.closed.Swap(true) {
		return nil
	}

	err := m.ctx.Do(func() error { return free(m.ptr) })
	if err != nil {
		slog.Error("releasing memory failed", "kind", kind, "bytes", m.ByteSize(), "error", err)
	}

	return errors.Join(err, m.ctx.Close())
}

func (m *linear[T]) logValue(kind Kind) slog.Value {
	return slog.GroupValue(
		slog.String("kind", kind.String()),
		slog.Int("len", m.n),
		slog.String("size", format.HumanBytes2(uint64(m.ByteSize()))),
		slog.Any("context", m.ctx),
	)
}

var (
	_ ContinuousMut[float32] = Host[float32](nil)
	_ ContinuousMut[float32] = (*PageLocked[float32])(nil)
	_ ContinuousMut[float32] = (*Registered[float32])(nil)
	_ ContinuousMut[float32] = (*Device[float32])(nil)
	_ MemoryMut[float32]     = (*Array[float32])(nil)

	_ Managed[float32] = (*PageLocked[float32])(nil)
	_ Managed[float32] = (*Registered[float32])(nil)
	_ Managed[float32] = (*Device[float32])(nil)
)
