// MODUL: cuda
// ZWECK: driver.Driver ueber die CUDA Driver API (libcuda)
// INPUT: Aufrufe der device- und memory-Pakete
// OUTPUT: Ergebnisse als driver.Result / *driver.Error
// NEBENEFFEKTE: CGO-Aufrufe in den CUDA-Treiber
// ABHAENGIGKEITEN: cuda.h, libcuda (nvcuda unter Windows)
// HINWEISE: Build-Tag "cuda" fuer bedingte Kompilierung

//go:build cuda

package cuda

/*
#cgo linux LDFLAGS: -lcuda
#cgo windows LDFLAGS: -lnvcuda

#include <cuda.h>
*/
import "C"

import (
	"runtime"
	"unsafe"

	"github.com/google/uuid"

	"github.com/ollama/accel/driver"
)

// Available reports whether the CUDA binding was compiled in.
const Available = true

func init() {
	driver.Register("cuda", &Driver{})
}

// Driver ruft die CUDA Driver API direkt auf. Die expliziten _v2-Symbole
// entsprechen den Makros aus cuda.h.
type Driver struct{}

var _ driver.Driver = (*Driver)(nil)

func check(op string, r C.CUresult) error {
	return driver.Check(op, driver.Result(r))
}

func context(h driver.Context) C.CUcontext {
	return C.CUcontext(unsafe.Pointer(uintptr(h)))
}

func handle(c C.CUcontext) driver.Context {
	return driver.Context(uintptr(unsafe.Pointer(c)))
}

func devptr(p unsafe.Pointer) C.CUdeviceptr {
	return C.CUdeviceptr(uintptr(p))
}

func (d *Driver) Init() error {
	return check("cuInit", C.cuInit(0))
}

// ============================================================================
// Geraete
// ============================================================================

func (d *Driver) DeviceCount() (int, error) {
	var n C.int
	if err := check("cuDeviceGetCount", C.cuDeviceGetCount(&n)); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (d *Driver) DeviceGet(ordinal int) (driver.Device, error) {
	var dev C.CUdevice
	if err := check("cuDeviceGet", C.cuDeviceGet(&dev, C.int(ordinal))); err != nil {
		return 0, err
	}
	return driver.Device(dev), nil
}

func (d *Driver) DeviceName(dev driver.Device) (string, error) {
	var buf [256]C.char
	if err := check("cuDeviceGetName", C.cuDeviceGetName(&buf[0], C.int(len(buf)), C.CUdevice(dev))); err != nil {
		return "", err
	}
	return C.GoString(&buf[0]), nil
}

func (d *Driver) DeviceUUID(dev driver.Device) (uuid.UUID, error) {
	var u C.CUuuid
	if err := check("cuDeviceGetUuid", C.cuDeviceGetUuid_v2(&u, C.CUdevice(dev))); err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(C.GoBytes(unsafe.Pointer(&u.bytes[0]), 16))
}

func (d *Driver) DeviceTotalMem(dev driver.Device) (uint64, error) {
	var total C.size_t
	if err := check("cuDeviceTotalMem", C.cuDeviceTotalMem_v2(&total, C.CUdevice(dev))); err != nil {
		return 0, err
	}
	return uint64(total), nil
}

// ============================================================================
// Kontexte
// ============================================================================

func (d *Driver) CtxCreate(flags driver.ContextFlags, dev driver.Device) (driver.Context, error) {
	var c C.CUcontext
	if err := check("cuCtxCreate", C.cuCtxCreate_v2(&c, C.uint(flags), C.CUdevice(dev))); err != nil {
		return 0, err
	}
	return handle(c), nil
}

func (d *Driver) CtxDestroy(h driver.Context) error {
	return check("cuCtxDestroy", C.cuCtxDestroy_v2(context(h)))
}

func (d *Driver) CtxPushCurrent(h driver.Context) error {
	return check("cuCtxPushCurrent", C.cuCtxPushCurrent_v2(context(h)))
}

func (d *Driver) CtxPopCurrent() (driver.Context, error) {
	var c C.CUcontext
	if err := check("cuCtxPopCurrent", C.cuCtxPopCurrent_v2(&c)); err != nil {
		return 0, err
	}
	return handle(c), nil
}

func (d *Driver) CtxGetCurrent() (driver.Context, error) {
	var c C.CUcontext
	if err := check("cuCtxGetCurrent", C.cuCtxGetCurrent(&c)); err != nil {
		return 0, err
	}
	return handle(c), nil
}

func (d *Driver) CtxGetAPIVersion(h driver.Context) (uint32, error) {
	var v C.uint
	if err := check("cuCtxGetApiVersion", C.cuCtxGetApiVersion(context(h), &v)); err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func (d *Driver) CtxSynchronize() error {
	return check("cuCtxSynchronize", C.cuCtxSynchronize())
}

func (d *Driver) MemGetInfo() (free, total uint64, err error) {
	var f, t C.size_t
	if err := check("cuMemGetInfo", C.cuMemGetInfo_v2(&f, &t)); err != nil {
		return 0, 0, err
	}
	return uint64(f), uint64(t), nil
}

// ============================================================================
// Speicher
// ============================================================================

func (d *Driver) MemAllocManaged(size int, flags uint32) (unsafe.Pointer, error) {
	var p C.CUdeviceptr
	if err := check("cuMemAllocManaged", C.cuMemAllocManaged(&p, C.size_t(size), C.uint(flags))); err != nil {
		return nil, err
	}
	// managed memory ist auch vom Host adressierbar
	return unsafe.Pointer(uintptr(p)), nil
}

func (d *Driver) MemFree(p unsafe.Pointer) error {
	return check("cuMemFree", C.cuMemFree_v2(devptr(p)))
}

func (d *Driver) MemAllocHost(size int) (unsafe.Pointer, error) {
	var p unsafe.Pointer
	if err := check("cuMemAllocHost", C.cuMemAllocHost_v2(&p, C.size_t(size))); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *Driver) MemFreeHost(p unsafe.Pointer) error {
	return check("cuMemFreeHost", C.cuMemFreeHost(p))
}

func (d *Driver) MemHostRegister(p unsafe.Pointer, size int, flags driver.HostRegisterFlags) error {
	return check("cuMemHostRegister", C.cuMemHostRegister_v2(p, C.size_t(size), C.uint(flags)))
}

func (d *Driver) MemHostUnregister(p unsafe.Pointer) error {
	return check("cuMemHostUnregister", C.cuMemHostUnregister(p))
}

func (d *Driver) Array3DCreate(desc *driver.Array3DDescriptor) (driver.Array, error) {
	cdesc := C.CUDA_ARRAY3D_DESCRIPTOR{
		Width:       C.size_t(desc.Width),
		Height:      C.size_t(desc.Height),
		Depth:       C.size_t(desc.Depth),
		Format:      C.CUarray_format(desc.Format),
		NumChannels: C.uint(desc.NumChannels),
		Flags:       C.uint(desc.Flags),
	}

	var a C.CUarray
	if err := check("cuArray3DCreate", C.cuArray3DCreate_v2(&a, &cdesc)); err != nil {
		return 0, err
	}
	return driver.Array(uintptr(unsafe.Pointer(a))), nil
}

func (d *Driver) ArrayDestroy(h driver.Array) error {
	return check("cuArrayDestroy", C.cuArrayDestroy(C.CUarray(unsafe.Pointer(uintptr(h)))))
}

// ============================================================================
// Kopien
// ============================================================================

func (d *Driver) Memcpy(dst, src unsafe.Pointer, size int) error {
	return check("cuMemcpy", C.cuMemcpy(devptr(dst), devptr(src), C.size_t(size)))
}

func (d *Driver) MemcpyHtoD(dst, src unsafe.Pointer, size int) error {
	return check("cuMemcpyHtoD", C.cuMemcpyHtoD_v2(devptr(dst), src, C.size_t(size)))
}

func (d *Driver) MemcpyDtoH(dst, src unsafe.Pointer, size int) error {
	return check("cuMemcpyDtoH", C.cuMemcpyDtoH_v2(dst, devptr(src), C.size_t(size)))
}

func (d *Driver) MemcpyDtoD(dst, src unsafe.Pointer, size int) error {
	return check("cuMemcpyDtoD", C.cuMemcpyDtoD_v2(devptr(dst), devptr(src), C.size_t(size)))
}

func (d *Driver) Memcpy3D(p *driver.Memcpy3D) error {
	// Host-Zeiger im Parameterblock muessen fuer cgo gepinnt sein
	var pinner runtime.Pinner
	defer pinner.Unpin()
	for _, host := range []unsafe.Pointer{p.SrcHost, p.DstHost} {
		if host != nil {
			pinner.Pin(host)
		}
	}

	c := C.CUDA_MEMCPY3D{
		srcMemoryType: C.CUmemorytype(p.SrcMemoryType),
		srcHost:       p.SrcHost,
		srcDevice:     devptr(p.SrcDevice),
		srcArray:      C.CUarray(unsafe.Pointer(uintptr(p.SrcArray))),
		srcPitch:      C.size_t(p.SrcPitch),
		srcHeight:     C.size_t(p.SrcHeight),

		dstMemoryType: C.CUmemorytype(p.DstMemoryType),
		dstHost:       p.DstHost,
		dstDevice:     devptr(p.DstDevice),
		dstArray:      C.CUarray(unsafe.Pointer(uintptr(p.DstArray))),
		dstPitch:      C.size_t(p.DstPitch),
		dstHeight:     C.size_t(p.DstHeight),

		WidthInBytes: C.size_t(p.WidthInBytes),
		Height:       C.size_t(p.Height),
		Depth:        C.size_t(p.Depth),
	}

	return check("cuMemcpy3D", C.cuMemcpy3D_v2(&c))
}

func (d *Driver) PointerGetAttribute(attr driver.PointerAttribute, p unsafe.Pointer) (uint64, error) {
	switch attr {
	case driver.PointerAttributeContext:
		var c C.CUcontext
		if err := check("cuPointerGetAttribute", C.cuPointerGetAttribute(unsafe.Pointer(&c), C.CUpointer_attribute(attr), devptr(p))); err != nil {
			return 0, err
		}
		return uint64(handle(c)), nil
	case driver.PointerAttributeBufferID:
		var v C.ulonglong
		if err := check("cuPointerGetAttribute", C.cuPointerGetAttribute(unsafe.Pointer(&v), C.CUpointer_attribute(attr), devptr(p))); err != nil {
			return 0, err
		}
		return uint64(v), nil
	default:
		var v C.uint
		if err := check("cuPointerGetAttribute", C.cuPointerGetAttribute(unsafe.Pointer(&v), C.CUpointer_attribute(attr), devptr(p))); err != nil {
			return 0, err
		}
		return uint64(v), nil
	}
}
