// pagelocked.go - Page-locked Host-Speicher
package memory

import (
	"errors"
	"log/slog"
	"unsafe"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/logutil"
)

// PageLocked is host memory allocated pinned by the driver.
type PageLocked[T Scalar] struct {
	linear[T]
}

// NewPageLocked allocates n elements of page-locked memory. It panics if n
// is not positive.
func NewPageLocked[T Scalar](ctx *device.Context, n int) (*PageLocked[T], error) {
	zeroSized(n)

	bytes := n * sizeOf[T]()
	var p unsafe.Pointer
	err := ctx.Do(func() (err error) {
		p, err = ctx.Driver().MemAllocHost(bytes)
		return err
	})
	if err != nil {
		return nil, &AllocationError{Kind: KindPageLocked, Bytes: bytes, Err: err}
	}

	m := &PageLocked[T]{linear[T]{ctx: ctx.Clone(), ptr: p, n: n}}
	logutil.Trace("allocated", "memory", m)
	return m, nil
}

// NewPageLockedFromElem allocates n elements set to v.
func NewPageLockedFromElem[T Scalar](ctx *device.Context, n int, v T) (*PageLocked[T], error) {
	m, err := NewPageLocked[T](ctx, n)
	if err != nil {
		return nil, err
	}
	if err := m.Set(v); err != nil {
		return nil, errors.Join(err, m.Close())
	}
	return m, nil
}

func (m *PageLocked[T]) Kind() Kind { return KindPageLocked }

func (m *PageLocked[T]) CopyFrom(src Memory[T]) error {
	return Copy[T](m, src)
}

// Close frees the memory and releases its context.
func (m *PageLocked[T]) Close() error {
	return m.release(KindPageLocked, m.ctx.Driver().MemFreeHost)
}

func (m *PageLocked[T]) LogValue() slog.Value {
	return m.logValue(KindPageLocked)
}
