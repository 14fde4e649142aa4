// registered.go - Registrierter Host-Speicher
package memory

import (
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/logutil"
)

// Registered is a Go slice registered with the driver. The slice stays
// pinned until Close.
type Registered[T Scalar] struct {
	linear[T]
	pinner *runtime.Pinner
}

// NewRegistered registers buf with the driver. It panics if buf is empty.
func NewRegistered[T Scalar](ctx *device.Context, buf []T) (*Registered[T], error) {
	zeroSized(len(buf))

	p := unsafe.Pointer(unsafe.SliceData(buf))
	bytes := len(buf) * sizeOf[T]()

	pinner := new(runtime.Pinner)
	pinner.Pin(p)

	err := ctx.Do(func() error {
		return ctx.Driver().MemHostRegister(p, bytes, 0)
	})
	if err != nil {
		pinner.Unpin()
		return nil, &AllocationError{Kind: KindRegistered, Bytes: bytes, Err: err}
	}

	m := &Registered[T]{linear: linear[T]{ctx: ctx.Clone(), ptr: p, n: len(buf)}, pinner: pinner}
	logutil.Trace("registered", "memory", m)
	return m, nil
}

func (m *Registered[T]) Kind() Kind { return KindRegistered }

func (m *Registered[T]) CopyFrom(src Memory[T]) error {
	return Copy[T](m, src)
}

// Close unregisters the slice and unpins it. The slice itself stays valid.
func (m *Registered[T]) Close() error {
	err := m.release(KindRegistered, m.ctx.Driver().MemHostUnregister)
	m.pinner.Unpin()
	return err
}

func (m *Registered[T]) LogValue() slog.Value {
	return m.logValue(KindRegistered)
}
