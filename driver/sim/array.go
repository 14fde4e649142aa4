// array.go - Arrays und 3D-Kopien des simulierten Treibers
//
// Enthaelt:
// - Array3DCreate/ArrayDestroy: Arrays mit eigenem Speicher hinter einem Handle
// - Memcpy3D: zeilenweise Kopie zwischen linearem Speicher und Arrays
package sim

import (
	"unsafe"

	"github.com/ollama/accel/driver"
)

type array struct {
	desc driver.Array3DDescriptor
	ctx  driver.Context
	data []byte
}

// rowBytes is the byte length of one row of the array.
func (a *array) rowBytes() int {
	return a.desc.Width * int(a.desc.NumChannels) * a.desc.Format.Size()
}

func (a *array) height() int {
	return max(a.desc.Height, 1)
}

func (a *array) depth() int {
	return max(a.desc.Depth, 1)
}

func validDescriptor(desc *driver.Array3DDescriptor) bool {
	if desc == nil || desc.Width <= 0 || desc.Height < 0 || desc.Depth < 0 {
		return false
	}
	if desc.Format.Size() == 0 {
		return false
	}
	switch desc.NumChannels {
	case 1, 2, 4:
	default:
		return false
	}
	if desc.Flags&^uint32(driver.ArrayLayered|driver.ArraySurfaceLDST|driver.ArrayTextureGather) != 0 {
		return false
	}
	if desc.Flags&driver.ArrayLayered != 0 {
		return desc.Depth > 0
	}
	// 1D-Arrays haben keine Tiefe ohne Hoehe
	return desc.Height > 0 || desc.Depth == 0
}

func (d *Driver) Array3DCreate(desc *driver.Array3DDescriptor) (driver.Array, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.allocCalls++

	h, ctx := d.current()
	if ctx == nil {
		return 0, driver.Check("cuArray3DCreate", driver.ErrorInvalidContext)
	}
	if !validDescriptor(desc) {
		return 0, driver.Check("cuArray3DCreate", driver.ErrorInvalidValue)
	}

	arr := &array{desc: *desc, ctx: h}
	size := arr.rowBytes() * arr.height() * arr.depth()
	if r := d.reserve(ctx, size); r != driver.Success {
		return 0, driver.Check("cuArray3DCreate", r)
	}
	arr.data = make([]byte, size)

	handle := driver.Array(d.handle())
	d.arrays[handle] = arr
	return handle, nil
}

func (d *Driver) releaseArray(handle driver.Array, arr *array) {
	if ctx, ok := d.contexts[arr.ctx]; ok {
		d.devices[ctx.device].used -= uint64(len(arr.data))
	}
	delete(d.arrays, handle)
}

func (d *Driver) ArrayDestroy(handle driver.Array) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	arr, ok := d.arrays[handle]
	if !ok {
		return driver.Check("cuArrayDestroy", driver.ErrorInvalidHandle)
	}

	d.releaseArray(handle, arr)
	return nil
}

// surface is one side of a 3D copy: rows of pitch bytes, height rows per slice.
type surface struct {
	buf    []byte
	pitch  int
	height int
}

func (d *Driver) surface(mt driver.MemoryType, host, dev unsafe.Pointer, handle driver.Array, pitch, height int, p *driver.Memcpy3D) (surface, driver.Result) {
	if mt == driver.MemoryTypeArray {
		arr, ok := d.arrays[handle]
		if !ok {
			return surface{}, driver.ErrorInvalidHandle
		}
		if p.WidthInBytes > arr.rowBytes() || p.Height > arr.height() || p.Depth > arr.depth() {
			return surface{}, driver.ErrorInvalidValue
		}
		return surface{buf: arr.data, pitch: arr.rowBytes(), height: arr.height()}, driver.Success
	}

	ptr := host
	if mt != driver.MemoryTypeHost {
		ptr = dev
	}
	if ptr == nil {
		return surface{}, driver.ErrorInvalidValue
	}

	if pitch == 0 {
		pitch = p.WidthInBytes
	}
	if height == 0 {
		height = p.Height
	}
	if pitch < p.WidthInBytes || height < p.Height {
		return surface{}, driver.ErrorInvalidValue
	}

	span := ((p.Depth-1)*height+(p.Height-1))*pitch + p.WidthInBytes
	if mt == driver.MemoryTypeDevice {
		if r := d.checkDevice(ptr, span); r != driver.Success {
			return surface{}, r
		}
	}

	return surface{buf: unsafe.Slice((*byte)(ptr), span), pitch: pitch, height: height}, driver.Success
}

func (d *Driver) Memcpy3D(p *driver.Memcpy3D) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if h, _ := d.current(); h == 0 {
		return driver.Check("cuMemcpy3D", driver.ErrorInvalidContext)
	}
	if p == nil || p.WidthInBytes <= 0 || p.Height <= 0 || p.Depth <= 0 {
		return driver.Check("cuMemcpy3D", driver.ErrorInvalidValue)
	}

	src, r := d.surface(p.SrcMemoryType, p.SrcHost, p.SrcDevice, p.SrcArray, p.SrcPitch, p.SrcHeight, p)
	if r != driver.Success {
		return driver.Check("cuMemcpy3D", r)
	}

	dst, r := d.surface(p.DstMemoryType, p.DstHost, p.DstDevice, p.DstArray, p.DstPitch, p.DstHeight, p)
	if r != driver.Success {
		return driver.Check("cuMemcpy3D", r)
	}

	for z := range p.Depth {
		for y := range p.Height {
			so := (z*src.height + y) * src.pitch
			do := (z*dst.height + y) * dst.pitch
			copy(dst.buf[do:do+p.WidthInBytes], src.buf[so:so+p.WidthInBytes])
		}
	}

	return nil
}
