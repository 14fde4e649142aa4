// copy.go - Kopien zwischen allen Speicherarten
//
// Enthaelt:
// - Copy: Dispatch ueber das Paar (Ziel, Quelle)
// - Kontextaufloesung fuer Geraetekopien
// - 3D-Kopien von und nach Arrays
package memory

import (
	"fmt"
	"unsafe"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/driver"
)

type arrayed interface {
	arrayHandle() driver.Array
	Dim() Dimension
}

// Copy copies src into dst. It panics if the byte sizes differ or both
// report the same head address. All copies are synchronous.
//
// Host-side pairs (host, registered, page-locked) use a slice copy. Pairs
// involving device memory run under the context owned by either side;
// operands owned by different contexts panic. Copies between linear memory
// and arrays use a 3D copy under the array's context. Array to array copies
// fail with *UnsupportedCopyError.
func Copy[T Scalar](dst MemoryMut[T], src Memory[T]) error {
	if dst.ByteSize() != src.ByteSize() {
		panic(fmt.Sprintf("memory: copy size mismatch: dst %d bytes, src %d bytes", dst.ByteSize(), src.ByteSize()))
	}
	if dst.HeadAddr() == src.HeadAddr() {
		panic(fmt.Sprintf("memory: copy source and destination alias at %#x", dst.HeadAddr()))
	}

	dk, sk := dst.Kind(), src.Kind()
	switch {
	case dk == KindArray && sk == KindArray:
		return &UnsupportedCopyError{Dst: dk, Src: sk}
	case dk == KindArray || sk == KindArray:
		return copyArray(dst, src, dk, sk)
	case dk.hostSide() && sk.hostSide():
		d, err := dst.TryMutSlice()
		if err != nil {
			return err
		}
		s, err := src.TrySlice()
		if err != nil {
			return err
		}
		copy(d, s)
		return nil
	default:
		return copyLinear(dst, src, dk, sk)
	}
}

// owner returns the context both operands agree on.
func owner(a, b *device.Context) *device.Context {
	switch {
	case a != nil && b != nil:
		if !a.Equal(b) {
			panic(fmt.Sprintf("memory: copy between contexts %#x and %#x", uintptr(a.Handle()), uintptr(b.Handle())))
		}
		return a
	case a != nil:
		return a
	default:
		return b
	}
}

func copyLinear[T Scalar](dst MemoryMut[T], src Memory[T], dk, sk Kind) error {
	dp, dok := dst.(pointered)
	sp, sok := src.(pointered)
	if !dok || !sok {
		return &UnsupportedCopyError{Dst: dk, Src: sk}
	}

	ctx := owner(dst.Context(), src.Context())
	if ctx == nil {
		return fmt.Errorf("memory: copy from %s to %s: %w", sk, dk, device.ErrContextNotCurrent)
	}

	drv, n := ctx.Driver(), dst.ByteSize()
	d, s := dp.pointer(), sp.pointer()

	return ctx.Do(func() error {
		switch {
		case dk == KindDevice && sk == KindDevice:
			return drv.MemcpyDtoD(d, s, n)
		case dk == KindDevice:
			return drv.MemcpyHtoD(d, s, n)
		default:
			return drv.MemcpyDtoH(d, s, n)
		}
	})
}

// linearSide fills one side of a 3D copy with a linear operand.
func linearSide(kind Kind, p unsafe.Pointer) (mt driver.MemoryType, host, dev unsafe.Pointer) {
	if kind == KindDevice {
		return driver.MemoryTypeDevice, nil, p
	}
	return driver.MemoryTypeHost, p, nil
}

func copyArray[T Scalar](dst MemoryMut[T], src Memory[T], dk, sk Kind) error {
	var (
		arr  arrayed
		arrC *device.Context
		lin  pointered
		linC *device.Context
		linK Kind
		ok   bool
	)

	if dk == KindArray {
		arr, ok = dst.(arrayed)
		arrC = dst.Context()
		lin, _ = src.(pointered)
		linC, linK = src.Context(), sk
	} else {
		arr, ok = src.(arrayed)
		arrC = src.Context()
		lin, _ = dst.(pointered)
		linC, linK = dst.Context(), dk
	}
	if !ok || lin == nil {
		return &UnsupportedCopyError{Dst: dk, Src: sk}
	}

	ctx := owner(arrC, linC)

	dim := arr.Dim()
	width := dim.Width() * sizeOf[T]() * dim.NumChannels()
	p := driver.Memcpy3D{
		WidthInBytes: width,
		Height:       dim.Height(),
		Depth:        dim.Depth(),
	}

	mt, host, dev := linearSide(linK, lin.pointer())
	if dk == KindArray {
		p.DstMemoryType, p.DstArray = driver.MemoryTypeArray, arr.arrayHandle()
		p.SrcMemoryType, p.SrcHost, p.SrcDevice, p.SrcPitch = mt, host, dev, width
	} else {
		p.SrcMemoryType, p.SrcArray = driver.MemoryTypeArray, arr.arrayHandle()
		p.DstMemoryType, p.DstHost, p.DstDevice, p.DstPitch = mt, host, dev, width
	}

	return ctx.Do(func() error { return ctx.Driver().Memcpy3D(&p) })
}
