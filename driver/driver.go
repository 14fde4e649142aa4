// driver.go - Schnittstelle zum nativen Accelerator-Treiber
//
// Enthaelt:
// - Handle-Typen (Device, Context, Array)
// - Flags, Speichertypen und Pointer-Attribute
// - Array3DDescriptor und Memcpy3D Parameter
// - Driver-Interface
package driver

import (
	"unsafe"

	"github.com/google/uuid"
)

// Device is the driver's ordinal handle for a physical device.
type Device int

// Context is an opaque native context handle. The zero value is the null context.
type Context uintptr

// Array is an opaque native array handle. The zero value is the null array.
type Array uintptr

// ContextFlags controls the scheduling behavior of a new context.
type ContextFlags uint32

const (
	SchedAuto         ContextFlags = 0x00
	SchedSpin         ContextFlags = 0x01
	SchedYield        ContextFlags = 0x02
	SchedBlockingSync ContextFlags = 0x04
	MapHost           ContextFlags = 0x08
	LmemResizeToMax   ContextFlags = 0x10
)

// HostRegisterFlags controls how a host range is registered.
type HostRegisterFlags uint32

const (
	HostRegisterPortable  HostRegisterFlags = 0x01
	HostRegisterDeviceMap HostRegisterFlags = 0x02
	HostRegisterIOMemory  HostRegisterFlags = 0x04
	HostRegisterReadOnly  HostRegisterFlags = 0x08
)

// MemAttachGlobal makes managed memory accessible from any stream on any device.
const MemAttachGlobal = 0x01

// MemoryType is the location class reported for an address.
type MemoryType uint32

const (
	MemoryTypeHost    MemoryType = 0x01
	MemoryTypeDevice  MemoryType = 0x02
	MemoryTypeArray   MemoryType = 0x03
	MemoryTypeUnified MemoryType = 0x04
)

func (t MemoryType) String() string {
	switch t {
	case MemoryTypeHost:
		return "host"
	case MemoryTypeDevice:
		return "device"
	case MemoryTypeArray:
		return "array"
	case MemoryTypeUnified:
		return "unified"
	default:
		return "unknown"
	}
}

// PointerAttribute selects what PointerGetAttribute reports.
type PointerAttribute uint32

const (
	PointerAttributeContext    PointerAttribute = 1
	PointerAttributeMemoryType PointerAttribute = 2
	PointerAttributeBufferID   PointerAttribute = 7
	PointerAttributeIsManaged  PointerAttribute = 8
)

// ArrayFormat is the element format of an array.
type ArrayFormat uint32

const (
	FormatUnsignedInt8  ArrayFormat = 0x01
	FormatUnsignedInt16 ArrayFormat = 0x02
	FormatUnsignedInt32 ArrayFormat = 0x03
	FormatSignedInt8    ArrayFormat = 0x08
	FormatSignedInt16   ArrayFormat = 0x09
	FormatSignedInt32   ArrayFormat = 0x0a
	FormatHalf          ArrayFormat = 0x10
	FormatFloat         ArrayFormat = 0x20
)

// Size returns the byte size of one channel of the format, or 0 if unknown.
func (f ArrayFormat) Size() int {
	switch f {
	case FormatUnsignedInt8, FormatSignedInt8:
		return 1
	case FormatUnsignedInt16, FormatSignedInt16, FormatHalf:
		return 2
	case FormatUnsignedInt32, FormatSignedInt32, FormatFloat:
		return 4
	default:
		return 0
	}
}

// Array3D flags
const (
	ArrayLayered         = 0x01
	ArraySurfaceLDST     = 0x02
	ArrayCubemap         = 0x04
	ArrayTextureGather   = 0x08
	ArrayDepthTexture    = 0x10
	ArrayColorAttachment = 0x20
)

// Array3DDescriptor mirrors CUDA_ARRAY3D_DESCRIPTOR.
type Array3DDescriptor struct {
	Width       int
	Height      int
	Depth       int
	Format      ArrayFormat
	NumChannels uint32
	Flags       uint32
}

// Memcpy3D mirrors the subset of CUDA_MEMCPY3D used by this module. Offsets
// are always zero. A zero pitch or height on a linear side defaults to
// WidthInBytes or Height.
type Memcpy3D struct {
	SrcMemoryType MemoryType
	SrcHost       unsafe.Pointer
	SrcDevice     unsafe.Pointer
	SrcArray      Array
	SrcPitch      int
	SrcHeight     int

	DstMemoryType MemoryType
	DstHost       unsafe.Pointer
	DstDevice     unsafe.Pointer
	DstArray      Array
	DstPitch      int
	DstHeight     int

	WidthInBytes int
	Height       int
	Depth        int
}

// Driver is the narrow native boundary the device and memory packages are
// built on. Context-scoped calls act on the calling OS thread's current
// context, so callers must hold runtime.LockOSThread across related calls.
type Driver interface {
	Init() error

	DeviceCount() (int, error)
	DeviceGet(ordinal int) (Device, error)
	DeviceName(Device) (string, error)
	DeviceUUID(Device) (uuid.UUID, error)
	DeviceTotalMem(Device) (uint64, error)

	CtxCreate(ContextFlags, Device) (Context, error)
	CtxDestroy(Context) error
	CtxPushCurrent(Context) error
	CtxPopCurrent() (Context, error)
	CtxGetCurrent() (Context, error)
	CtxGetAPIVersion(Context) (uint32, error)
	CtxSynchronize() error

	// MemGetInfo reports free and total bytes of the current context's device.
	MemGetInfo() (free, total uint64, err error)

	MemAllocManaged(size int, flags uint32) (unsafe.Pointer, error)
	MemFree(unsafe.Pointer) error
	MemAllocHost(size int) (unsafe.Pointer, error)
	MemFreeHost(unsafe.Pointer) error
	MemHostRegister(p unsafe.Pointer, size int, flags HostRegisterFlags) error
	MemHostUnregister(unsafe.Pointer) error

	Array3DCreate(*Array3DDescriptor) (Array, error)
	ArrayDestroy(Array) error

	Memcpy(dst, src unsafe.Pointer, size int) error
	MemcpyHtoD(dst, src unsafe.Pointer, size int) error
	MemcpyDtoH(dst, src unsafe.Pointer, size int) error
	MemcpyDtoD(dst, src unsafe.Pointer, size int) error
	Memcpy3D(*Memcpy3D) error

	// PointerGetAttribute reports attr for the allocation containing p.
	// Addresses unknown to the driver fail with ErrorInvalidValue.
	PointerGetAttribute(attr PointerAttribute, p unsafe.Pointer) (uint64, error)
}
