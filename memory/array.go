// array.go - Array-Speicher
package memory

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/driver"
	"github.com/ollama/accel/format"
	"github.com/ollama/accel/logutil"
)

// Array is opaque device memory laid out for texture and surface access.
// It has no host-addressable layout; data moves through Copy.
type Array[T Scalar] struct {
	ctx    *device.Context
	handle driver.Array
	dim    Dimension
	closed atomic.Bool
}

// NewArray allocates an array of shape dim. It panics if dim has no
// elements and fails with ErrUnsupportedFormat if T has no array format.
func NewArray[T Scalar](ctx *device.Context, dim Dimension) (*Array[T], error) {
	zeroSized(dim.Len())

	desc, err := Descriptor[T](dim)
	if err != nil {
		return nil, err
	}

	var h driver.Array
	err = ctx.Do(func() (err error) {
		h, err = ctx.Driver().Array3DCreate(&desc)
		return err
	})
	if err != nil {
		return nil, &AllocationError{Kind: KindArray, Bytes: dim.Len() * sizeOf[T](), Err: err}
	}
	if h == 0 {
		panic("memory: driver returned a null array")
	}

	a := &Array[T]{ctx: ctx.Clone(), handle: h, dim: dim}
	logutil.Trace("allocated", "memory", a)
	return a, nil
}

// HeadAddr returns the array handle, which is unique among live allocations.
func (a *Array[T]) HeadAddr() uintptr { return uintptr(a.handle) }
func (a *Array[T]) NumElem() int      { return a.dim.Len() }
func (a *Array[T]) ByteSize() int     { return a.dim.Len() * sizeOf[T]() }
func (a *Array[T]) Kind() Kind        { return KindArray }
func (a *Array[T]) Dim() Dimension    { return a.dim }

func (a *Array[T]) Context() *device.Context { return a.ctx }

func (a *Array[T]) arrayHandle() driver.Array { return a.handle }

func (a *Array[T]) TrySlice() ([]T, error)    { return nil, ErrNotContinuous }
func (a *Array[T]) TryMutSlice() ([]T, error) { return nil, ErrNotContinuous }

func (a *Array[T]) CopyFrom(src Memory[T]) error {
	return Copy[T](a, src)
}

// Set writes v to every element through a page-locked staging buffer that
// is allocated and freed on every call.
func (a *Array[T]) Set(v T) error {
	staging, err := NewPageLockedFromElem(a.ctx, a.dim.Len(), v)
	if err != nil {
		return err
	}

	return errors.Join(a.CopyFrom(staging), staging.Close())
}

// Close destroys the array and releases its context.
func (a *Array[T]) Close() error {
	if a.closed.Swap(true) {
		return nil
	}

	err := a.ctx.Do(func() error { return a.ctx.Driver().ArrayDestroy(a.handle) })
	if err != nil {
		slog.Error("destroying array failed", "dim", a.dim, "error", err)
	}

	return errors.Join(err, a.ctx.Close())
}

func (a *Array[T]) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", KindArray.String()),
		slog.Any("dim", a.dim),
		slog.String("size", format.HumanBytes2(uint64(a.ByteSize()))),
		slog.Any("context", a.ctx),
	)
}
