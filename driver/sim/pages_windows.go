package sim

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func mapPages(size int) (*pages, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return &pages{data: unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)}, nil
}

func (p *pages) lock() error {
	if err := windows.VirtualLock(p.addr(), uintptr(len(p.data))); err != nil {
		return err
	}
	p.locked = true
	return nil
}

func (p *pages) free() error {
	if p.locked {
		_ = windows.VirtualUnlock(p.addr(), uintptr(len(p.data)))
		p.locked = false
	}
	return windows.VirtualFree(p.addr(), 0, windows.MEM_RELEASE)
}
