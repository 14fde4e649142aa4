package sim

import (
	"errors"
	"runtime"
	"testing"
	"unsafe"

	"github.com/google/go-cmp/cmp"

	"github.com/ollama/accel/driver"
	"github.com/ollama/accel/internal/osthread"
)

func newDriver(t *testing.T, opts Options) *Driver {
	t.Helper()

	runtime.LockOSThread()
	t.Cleanup(runtime.UnlockOSThread)

	d := New(opts)
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return d
}

func withContext(t *testing.T, d *Driver) driver.Context {
	t.Helper()

	h, err := d.CtxCreate(driver.SchedAuto, 0)
	if err != nil {
		t.Fatalf("CtxCreate: %v", err)
	}
	t.Cleanup(func() {
		if err := d.CtxDestroy(h); err != nil {
			t.Errorf("CtxDestroy: %v", err)
		}
	})
	return h
}

func TestDevices(t *testing.T) {
	d := newDriver(t, Options{Devices: 2, Memory: 1 << 20})

	n, err := d.DeviceCount()
	if err != nil || n != 2 {
		t.Fatalf("erwartet 2 Geraete, bekommen %d (%v)", n, err)
	}

	a, _ := d.DeviceUUID(0)
	b, _ := d.DeviceUUID(1)
	if a == b {
		t.Errorf("erwartet unterschiedliche UUIDs, bekommen %s zweimal", a)
	}

	// UUIDs sind deterministisch
	if again := deviceUUID(0); again != a {
		t.Errorf("erwartet stabile UUID %s, bekommen %s", a, again)
	}

	if _, err := d.DeviceGet(2); !errors.Is(err, driver.ErrorInvalidDevice) {
		t.Errorf("erwartet ErrorInvalidDevice, bekommen %v", err)
	}
}

func TestNotInitialized(t *testing.T) {
	d := New(Options{})
	if _, err := d.DeviceCount(); !errors.Is(err, driver.ErrorNotInitialized) {
		t.Errorf("erwartet ErrorNotInitialized, bekommen %v", err)
	}
}

func TestInitWithoutThreadIdentity(t *testing.T) {
	threadIdentity = false
	t.Cleanup(func() { threadIdentity = osthread.Supported })

	d := New(Options{Devices: 1, Memory: 1 << 20})
	if err := d.Init(); !errors.Is(err, driver.ErrorNotSupported) {
		t.Fatalf("erwartet ErrorNotSupported, bekommen %v", err)
	}
	if _, err := d.DeviceCount(); !errors.Is(err, driver.ErrorNotInitialized) {
		t.Errorf("erwartet ErrorNotInitialized, bekommen %v", err)
	}
}

func TestContextStack(t *testing.T) {
	d := newDriver(t, Options{})

	if cur, _ := d.CtxGetCurrent(); cur != 0 {
		t.Fatalf("erwartet keinen aktuellen Kontext, bekommen %#x", cur)
	}

	a, err := d.CtxCreate(driver.SchedAuto, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.CtxCreate(driver.SchedAuto, 0)
	if err != nil {
		t.Fatal(err)
	}

	if cur, _ := d.CtxGetCurrent(); cur != b {
		t.Errorf("erwartet %#x aktuell, bekommen %#x", b, cur)
	}

	popped, err := d.CtxPopCurrent()
	if err != nil || popped != b {
		t.Fatalf("erwartet %#x, bekommen %#x (%v)", b, popped, err)
	}
	if cur, _ := d.CtxGetCurrent(); cur != a {
		t.Errorf("erwartet %#x aktuell, bekommen %#x", a, cur)
	}

	if err := d.CtxPushCurrent(b); err != nil {
		t.Fatal(err)
	}

	// Zerstoeren entfernt den Kontext aus allen Stacks
	if err := d.CtxDestroy(b); err != nil {
		t.Fatal(err)
	}
	if cur, _ := d.CtxGetCurrent(); cur != a {
		t.Errorf("erwartet %#x aktuell, bekommen %#x", a, cur)
	}
	if err := d.CtxPushCurrent(b); !errors.Is(err, driver.ErrorInvalidContext) {
		t.Errorf("erwartet ErrorInvalidContext, bekommen %v", err)
	}

	if err := d.CtxDestroy(a); err != nil {
		t.Fatal(err)
	}
	if _, err := d.CtxPopCurrent(); !errors.Is(err, driver.ErrorInvalidContext) {
		t.Errorf("erwartet ErrorInvalidContext, bekommen %v", err)
	}
}

func TestMemoryRequiresContext(t *testing.T) {
	d := newDriver(t, Options{})

	if _, err := d.MemAllocHost(64); !errors.Is(err, driver.ErrorInvalidContext) {
		t.Errorf("erwartet ErrorInvalidContext, bekommen %v", err)
	}
	if err := d.CtxSynchronize(); !errors.Is(err, driver.ErrorInvalidContext) {
		t.Errorf("erwartet ErrorInvalidContext, bekommen %v", err)
	}
}

func TestDeviceMemory(t *testing.T) {
	d := newDriver(t, Options{Memory: 4096})
	ctx := withContext(t, d)

	p, err := d.MemAllocManaged(1024, driver.MemAttachGlobal)
	if err != nil {
		t.Fatal(err)
	}

	free, total, err := d.MemGetInfo()
	if err != nil {
		t.Fatal(err)
	}
	if free != 3072 || total != 4096 {
		t.Errorf("erwartet 3072/4096, bekommen %d/%d", free, total)
	}

	if _, err := d.MemAllocManaged(4096, driver.MemAttachGlobal); !errors.Is(err, driver.ErrorOutOfMemory) {
		t.Errorf("erwartet ErrorOutOfMemory, bekommen %v", err)
	}

	inner := unsafe.Add(p, 100)
	for attr, want := range map[driver.PointerAttribute]uint64{
		driver.PointerAttributeContext:    uint64(ctx),
		driver.PointerAttributeMemoryType: uint64(driver.MemoryTypeDevice),
		driver.PointerAttributeIsManaged:  1,
	} {
		got, err := d.PointerGetAttribute(attr, inner)
		if err != nil || got != want {
			t.Errorf("Attribut %d: erwartet %d, bekommen %d (%v)", attr, want, got, err)
		}
	}

	if _, err := d.PointerGetAttribute(driver.PointerAttributeContext, unsafe.Add(p, 1024)); !errors.Is(err, driver.ErrorInvalidValue) {
		t.Errorf("erwartet ErrorInvalidValue hinter dem Ende, bekommen %v", err)
	}

	if err := d.MemFree(inner); !errors.Is(err, driver.ErrorInvalidValue) {
		t.Errorf("erwartet ErrorInvalidValue fuer inneren Zeiger, bekommen %v", err)
	}
	if err := d.MemFree(p); err != nil {
		t.Fatal(err)
	}
	if err := d.MemFree(p); !errors.Is(err, driver.ErrorInvalidValue) {
		t.Errorf("erwartet ErrorInvalidValue bei doppeltem Free, bekommen %v", err)
	}

	if free, _, _ := d.MemGetInfo(); free != 4096 {
		t.Errorf("erwartet 4096 frei, bekommen %d", free)
	}
}

func TestCopies(t *testing.T) {
	d := newDriver(t, Options{})
	withContext(t, d)

	host, err := d.MemAllocHost(16)
	if err != nil {
		t.Fatal(err)
	}
	defer d.MemFreeHost(host)

	dev, err := d.MemAllocManaged(16, driver.MemAttachGlobal)
	if err != nil {
		t.Fatal(err)
	}
	defer d.MemFree(dev)

	src := unsafe.Slice((*byte)(host), 16)
	for i := range src {
		src[i] = byte(i)
	}

	if err := d.MemcpyHtoD(dev, host, 16); err != nil {
		t.Fatal(err)
	}
	clear(src)
	if err := d.MemcpyDtoH(host, dev, 16); err != nil {
		t.Fatal(err)
	}

	want := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	if diff := cmp.Diff(want, src); diff != "" {
		t.Errorf("Rundreise (-erwartet +bekommen):\n%s", diff)
	}

	if err := d.MemcpyHtoD(dev, host, 17); !errors.Is(err, driver.ErrorInvalidValue) {
		t.Errorf("erwartet ErrorInvalidValue bei Ueberlauf, bekommen %v", err)
	}
	if err := d.MemcpyHtoD(host, dev, 16); !errors.Is(err, driver.ErrorInvalidValue) {
		t.Errorf("erwartet ErrorInvalidValue fuer Host als Ziel, bekommen %v", err)
	}
}

func TestHostRegister(t *testing.T) {
	d := newDriver(t, Options{})
	withContext(t, d)

	pinned, err := d.MemAllocHost(64)
	if err != nil {
		t.Fatal(err)
	}
	defer d.MemFreeHost(pinned)

	if err := d.MemHostRegister(unsafe.Add(pinned, 8), 8, 0); !errors.Is(err, driver.ErrorHostMemoryAlreadyRegistered) {
		t.Errorf("erwartet ErrorHostMemoryAlreadyRegistered, bekommen %v", err)
	}
	if err := d.MemHostUnregister(pinned); !errors.Is(err, driver.ErrorHostMemoryNotRegistered) {
		t.Errorf("erwartet ErrorHostMemoryNotRegistered, bekommen %v", err)
	}

	before := d.Stats()
	if before.PinnedAllocs != 1 || before.Registrations != 0 {
		t.Errorf("unerwartete Statistik: %+v", before)
	}
}

func TestArrays(t *testing.T) {
	d := newDriver(t, Options{Memory: 1 << 20})
	withContext(t, d)

	for _, tt := range []struct {
		name string
		desc driver.Array3DDescriptor
		ok   bool
	}{
		{"1d", driver.Array3DDescriptor{Width: 10, Format: driver.FormatFloat, NumChannels: 1}, true},
		{"2d", driver.Array3DDescriptor{Width: 10, Height: 12, Format: driver.FormatFloat, NumChannels: 1}, true},
		{"3d", driver.Array3DDescriptor{Width: 10, Height: 12, Depth: 8, Format: driver.FormatFloat, NumChannels: 1}, true},
		{"1d layered", driver.Array3DDescriptor{Width: 10, Depth: 12, Format: driver.FormatFloat, NumChannels: 1, Flags: driver.ArrayLayered}, true},
		{"depth without height", driver.Array3DDescriptor{Width: 10, Depth: 12, Format: driver.FormatFloat, NumChannels: 1}, false},
		{"zero width", driver.Array3DDescriptor{Format: driver.FormatFloat, NumChannels: 1}, false},
		{"three channels", driver.Array3DDescriptor{Width: 4, Format: driver.FormatFloat, NumChannels: 3}, false},
		{"unknown format", driver.Array3DDescriptor{Width: 4, Format: 0x7f, NumChannels: 1}, false},
	} {
		// kein t.Run: der Kontext ist nur auf diesem Thread aktuell
		h, err := d.Array3DCreate(&tt.desc)
		if (err == nil) != tt.ok {
			t.Errorf("%s: erwartet ok=%v, bekommen %v", tt.name, tt.ok, err)
			continue
		}
		if err == nil {
			if err := d.ArrayDestroy(h); err != nil {
				t.Errorf("%s: %v", tt.name, err)
			}
		}
	}

	if err := d.ArrayDestroy(0x1); !errors.Is(err, driver.ErrorInvalidHandle) {
		t.Errorf("erwartet ErrorInvalidHandle, bekommen %v", err)
	}
}

func TestMemcpy3D(t *testing.T) {
	d := newDriver(t, Options{})
	withContext(t, d)

	const w, h, depth = 3, 2, 2

	arr, err := d.Array3DCreate(&driver.Array3DDescriptor{Width: w, Height: h, Depth: depth, Format: driver.FormatUnsignedInt8, NumChannels: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer d.ArrayDestroy(arr)

	in, err := d.MemAllocHost(w * h * depth)
	if err != nil {
		t.Fatal(err)
	}
	defer d.MemFreeHost(in)

	out, err := d.MemAllocHost(w * h * depth)
	if err != nil {
		t.Fatal(err)
	}
	defer d.MemFreeHost(out)

	src := unsafe.Slice((*byte)(in), w*h*depth)
	for i := range src {
		src[i] = byte(i + 1)
	}

	if err := d.Memcpy3D(&driver.Memcpy3D{
		SrcMemoryType: driver.MemoryTypeHost,
		SrcHost:       in,
		DstMemoryType: driver.MemoryTypeArray,
		DstArray:      arr,
		WidthInBytes:  w,
		Height:        h,
		Depth:         depth,
	}); err != nil {
		t.Fatal(err)
	}

	if err := d.Memcpy3D(&driver.Memcpy3D{
		SrcMemoryType: driver.MemoryTypeArray,
		SrcArray:      arr,
		DstMemoryType: driver.MemoryTypeHost,
		DstHost:       out,
		WidthInBytes:  w,
		Height:        h,
		Depth:         depth,
	}); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(src, unsafe.Slice((*byte)(out), w*h*depth)); diff != "" {
		t.Errorf("3D-Rundreise (-erwartet +bekommen):\n%s", diff)
	}

	// zu breite Kopie
	err = d.Memcpy3D(&driver.Memcpy3D{
		SrcMemoryType: driver.MemoryTypeHost,
		SrcHost:       in,
		DstMemoryType: driver.MemoryTypeArray,
		DstArray:      arr,
		WidthInBytes:  w + 1,
		Height:        1,
		Depth:         1,
	})
	if !errors.Is(err, driver.ErrorInvalidValue) {
		t.Errorf("erwartet ErrorInvalidValue, bekommen %v", err)
	}
}

func TestDestroyReleasesMemory(t *testing.T) {
	d := newDriver(t, Options{Memory: 1 << 16})

	h, err := d.CtxCreate(driver.SchedAuto, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.MemAllocManaged(1024, driver.MemAttachGlobal); err != nil {
		t.Fatal(err)
	}
	if _, err := d.MemAllocHost(1024); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Array3DCreate(&driver.Array3DDescriptor{Width: 16, Format: driver.FormatFloat, NumChannels: 1}); err != nil {
		t.Fatal(err)
	}

	if err := d.CtxDestroy(h); err != nil {
		t.Fatal(err)
	}

	want := Stats{AllocCalls: 3}
	if diff := cmp.Diff(want, d.Stats()); diff != "" {
		t.Errorf("Statistik nach Destroy (-erwartet +bekommen):\n%s", diff)
	}
	if d.devices[0].used != 0 {
		t.Errorf("erwartet 0 belegte Bytes, bekommen %d", d.devices[0].used)
	}
}
