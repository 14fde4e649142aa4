package sim

import "unsafe"

// pages is a block of memory outside the Go heap backing a linear
// allocation. Platforms without mmap fall back to a Go slice.
type pages struct {
	data   []byte
	locked bool
}

func (p *pages) pointer() unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(p.data))
}

func (p *pages) addr() uintptr {
	return uintptr(p.pointer())
}
