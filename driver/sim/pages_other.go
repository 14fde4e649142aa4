//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package sim

import "github.com/ollama/accel/driver"

func mapPages(size int) (*pages, error) {
	return &pages{data: make([]byte, size)}, nil
}

func (p *pages) lock() error {
	return driver.ErrorNotSupported
}

func (p *pages) free() error {
	p.data = nil
	return nil
}
