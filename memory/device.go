// device.go - Linearer Geraetespeicher
package memory

import (
	"errors"
	"log/slog"
	"unsafe"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/driver"
	"github.com/ollama/accel/logutil"
)

// Device is linear device memory. It is allocated as managed memory and
// therefore also addressable from the host.
type Device[T Scalar] struct {
	linear[T]
}

// NewDevice allocates n elements of device memory. It panics if n is not
// positive.
func NewDevice[T Scalar](ctx *device.Context, n int) (*Device[T], error) {
	zeroSized(n)

	bytes := n * sizeOf[T]()
	var p unsafe.Pointer
	err := ctx.Do(func() (err error) {
		p, err = ctx.Driver().MemAllocManaged(bytes, driver.MemAttachGlobal)
		return err
	})
	if err != nil {
		return nil, &AllocationError{Kind: KindDevice, Bytes: bytes, Err: err}
	}

	m := &Device[T]{linear[T]{ctx: ctx.Clone(), ptr: p, n: n}}
	logutil.Trace("allocated", "memory", m)
	return m, nil
}

// NewDeviceFromElem allocates n elements set to v.
func NewDeviceFromElem[T Scalar](ctx *device.Context, n int, v T) (*Device[T], error) {
	m, err := NewDevice[T](ctx, n)
	if err != nil {
		return nil, err
	}
	if err := m.Set(v); err != nil {
		return nil, errors.Join(err, m.Close())
	}
	return m, nil
}

func (m *Device[T]) Kind() Kind { return KindDevice }

func (m *Device[T]) CopyFrom(src Memory[T]) error {
	return Copy[T](m, src)
}

// Close frees the memory and releases its context.
func (m *Device[T]) Close() error {
	return m.release(KindDevice, m.ctx.Driver().MemFree)
}

func (m *Device[T]) LogValue() slog.Value {
	return m.logValue(KindDevice)
}
