//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package sim

import "golang.org/x/sys/unix"

func mapPages(size int) (*pages, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &pages{data: data}, nil
}

func (p *pages) lock() error {
	if err := unix.Mlock(p.data); err != nil {
		return err
	}
	p.locked = true
	return nil
}

func (p *pages) free() error {
	if p.locked {
		_ = unix.Munlock(p.data)
		p.locked = false
	}
	return unix.Munmap(p.data)
}
