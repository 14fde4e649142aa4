// memory.go - Linearer Speicher des simulierten Treibers
//
// Enthaelt:
// - Allokationen (device, page-locked, registriert) im Rot-Schwarz-Baum
// - Pointer-Attribute ueber Bereichssuche (Floor)
// - Lineare Kopien
package sim

import (
	"log/slog"
	"unsafe"

	"github.com/ollama/accel/driver"
)

type allocKind int

const (
	allocDevice allocKind = iota
	allocPinned
	allocRegistered
)

type allocation struct {
	kind     allocKind
	base     uintptr
	size     int
	ctx      driver.Context
	bufferID uint64

	// nil for registered ranges, the caller owns those pages
	pages *pages
}

func (a *allocation) contains(p uintptr, size int) bool {
	return p >= a.base && p+uintptr(size) <= a.base+uintptr(a.size)
}

// lookup returns the allocation containing p.
func (d *Driver) lookup(p uintptr) *allocation {
	node, ok := d.allocs.Floor(p)
	if !ok {
		return nil
	}
	if a := node.Value; a.contains(p, 1) {
		return a
	}
	return nil
}

func (d *Driver) insert(kind allocKind, base uintptr, size int, ctx driver.Context, pg *pages) {
	d.nextBuffer++
	d.allocs.Put(base, &allocation{
		kind:     kind,
		base:     base,
		size:     size,
		ctx:      ctx,
		bufferID: d.nextBuffer,
		pages:    pg,
	})
}

// release drops a from the table and returns its pages and device capacity.
func (d *Driver) release(a *allocation) {
	d.allocs.Remove(a.base)

	if a.kind == allocDevice {
		if ctx, ok := d.contexts[a.ctx]; ok {
			d.devices[ctx.device].used -= uint64(a.size)
		}
	}

	if a.pages != nil {
		if err := a.pages.free(); err != nil {
			slog.Warn("sim: unmapping pages failed", "base", a.base, "size", a.size, "error", err)
		}
	}
}

// reserve accounts size bytes on the device of ctx.
func (d *Driver) reserve(ctx *context, size int) driver.Result {
	dev := d.devices[ctx.device]
	if uint64(size) > dev.total-dev.used {
		return driver.ErrorOutOfMemory
	}
	dev.used += uint64(size)
	return driver.Success
}

func (d *Driver) MemAllocManaged(size int, flags uint32) (unsafe.Pointer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.allocCalls++

	h, ctx := d.current()
	if ctx == nil {
		return nil, driver.Check("cuMemAllocManaged", driver.ErrorInvalidContext)
	}
	if size <= 0 || flags&^driver.MemAttachGlobal != 0 {
		return nil, driver.Check("cuMemAllocManaged", driver.ErrorInvalidValue)
	}

	if r := d.reserve(ctx, size); r != driver.Success {
		return nil, driver.Check("cuMemAllocManaged", r)
	}

	pg, err := mapPages(size)
	if err != nil {
		d.devices[ctx.device].used -= uint64(size)
		slog.Debug("sim: mapping device pages failed", "size", size, "error", err)
		return nil, driver.Check("cuMemAllocManaged", driver.ErrorOutOfMemory)
	}

	d.insert(allocDevice, pg.addr(), size, h, pg)
	return pg.pointer(), nil
}

func (d *Driver) MemFree(p unsafe.Pointer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.allocs.Get(uintptr(p))
	if !ok || a.kind != allocDevice {
		return driver.Check("cuMemFree", driver.ErrorInvalidValue)
	}

	d.release(a)
	return nil
}

func (d *Driver) MemAllocHost(size int) (unsafe.Pointer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.allocCalls++

	h, ctx := d.current()
	if ctx == nil {
		return nil, driver.Check("cuMemAllocHost", driver.ErrorInvalidContext)
	}
	if size <= 0 {
		return nil, driver.Check("cuMemAllocHost", driver.ErrorInvalidValue)
	}

	pg, err := mapPages(size)
	if err != nil {
		slog.Debug("sim: mapping host pages failed", "size", size, "error", err)
		return nil, driver.Check("cuMemAllocHost", driver.ErrorOutOfMemory)
	}

	if err := pg.lock(); err != nil {
		if d.opts.StrictMlock {
			_ = pg.free()
			slog.Debug("sim: locking host pages failed", "size", size, "error", err)
			return nil, driver.Check("cuMemAllocHost", driver.ErrorOutOfMemory)
		}
		slog.Debug("sim: mlock failed, page-locked allocation stays pageable", "size", size, "error", err)
	}

	d.insert(allocPinned, pg.addr(), size, h, pg)
	return pg.pointer(), nil
}

func (d *Driver) MemFreeHost(p unsafe.Pointer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.allocs.Get(uintptr(p))
	if !ok || a.kind != allocPinned {
		return driver.Check("cuMemFreeHost", driver.ErrorInvalidValue)
	}

	d.release(a)
	return nil
}

func (d *Driver) MemHostRegister(p unsafe.Pointer, size int, flags driver.HostRegisterFlags) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.allocCalls++

	h, ctx := d.current()
	if ctx == nil {
		return driver.Check("cuMemHostRegister", driver.ErrorInvalidContext)
	}
	if p == nil || size <= 0 {
		return driver.Check("cuMemHostRegister", driver.ErrorInvalidValue)
	}

	base := uintptr(p)
	if d.overlaps(base, size) {
		return driver.Check("cuMemHostRegister", driver.ErrorHostMemoryAlreadyRegistered)
	}

	d.insert(allocRegistered, base, size, h, nil)
	return nil
}

// overlaps reports whether [base, base+size) intersects a known allocation.
func (d *Driver) overlaps(base uintptr, size int) bool {
	if node, ok := d.allocs.Floor(base + uintptr(size) - 1); ok {
		a := node.Value
		return a.base+uintptr(a.size) > base
	}
	return false
}

func (d *Driver) MemHostUnregister(p unsafe.Pointer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.allocs.Get(uintptr(p))
	if !ok || a.kind != allocRegistered {
		return driver.Check("cuMemHostUnregister", driver.ErrorHostMemoryNotRegistered)
	}

	d.release(a)
	return nil
}

func (d *Driver) PointerGetAttribute(attr driver.PointerAttribute, p unsafe.Pointer) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a := d.lookup(uintptr(p))
	if a == nil {
		return 0, driver.Check("cuPointerGetAttribute", driver.ErrorInvalidValue)
	}

	switch attr {
	case driver.PointerAttributeContext:
		return uint64(a.ctx), nil
	case driver.PointerAttributeMemoryType:
		if a.kind == allocDevice {
			return uint64(driver.MemoryTypeDevice), nil
		}
		return uint64(driver.MemoryTypeHost), nil
	case driver.PointerAttributeBufferID:
		return a.bufferID, nil
	case driver.PointerAttributeIsManaged:
		if a.kind == allocDevice {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, driver.Check("cuPointerGetAttribute", driver.ErrorInvalidValue)
	}
}

// =============================================================================
// Lineare Kopien
// =============================================================================

// checkDevice verifies that [p, p+size) lies inside one device allocation.
func (d *Driver) checkDevice(p unsafe.Pointer, size int) driver.Result {
	a := d.lookup(uintptr(p))
	if a == nil || a.kind != allocDevice || !a.contains(uintptr(p), size) {
		return driver.ErrorInvalidValue
	}
	return driver.Success
}

func (d *Driver) memcpy(op string, dst, src unsafe.Pointer, size int, dstDevice, srcDevice bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if h, _ := d.current(); h == 0 {
		return driver.Check(op, driver.ErrorInvalidContext)
	}
	if size < 0 || (size > 0 && (dst == nil || src == nil)) {
		return driver.Check(op, driver.ErrorInvalidValue)
	}
	if size == 0 {
		return nil
	}

	if dstDevice {
		if r := d.checkDevice(dst, size); r != driver.Success {
			return driver.Check(op, r)
		}
	}
	if srcDevice {
		if r := d.checkDevice(src, size); r != driver.Success {
			return driver.Check(op, r)
		}
	}

	copy(unsafe.Slice((*byte)(dst), size), unsafe.Slice((*byte)(src), size))
	return nil
}

func (d *Driver) Memcpy(dst, src unsafe.Pointer, size int) error {
	return d.memcpy("cuMemcpy", dst, src, size, false, false)
}

func (d *Driver) MemcpyHtoD(dst, src unsafe.Pointer, size int) error {
	return d.memcpy("cuMemcpyHtoD", dst, src, size, true, false)
}

func (d *Driver) MemcpyDtoH(dst, src unsafe.Pointer, size int) error {
	return d.memcpy("cuMemcpyDtoH", dst, src, size, false, true)
}

func (d *Driver) MemcpyDtoD(dst, src unsafe.Pointer, size int) error {
	return d.memcpy("cuMemcpyDtoD", dst, src, size, true, true)
}
