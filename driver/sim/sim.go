// sim.go - Simulierter Accelerator-Treiber
//
// Enthaelt:
// - Driver: reine Go-Implementierung von driver.Driver
// - Geraete (Name, UUID, Kapazitaet) und Kontexte
// - Kontext-Stacks pro OS-Thread
//
// Alle Operationen sind synchron. Speicher- und Kopieraufrufe verlangen
// einen aktuellen Kontext auf dem aufrufenden Thread, wie der CUDA-Treiber.
package sim

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/google/uuid"

	"github.com/ollama/accel/driver"
	"github.com/ollama/accel/envconfig"
	"github.com/ollama/accel/internal/osthread"
	"github.com/ollama/accel/logutil"
)

// APIVersion is the API version reported for every simulated context.
const APIVersion = 12020

// Options configures a simulated driver.
type Options struct {
	// Devices is the number of simulated devices
	Devices int

	// Memory is the capacity in bytes of each device. Device allocations and
	// arrays count against it.
	Memory uint64

	// StrictMlock fails page-locked allocations when mlock fails instead of
	// falling back to pageable memory.
	StrictMlock bool
}

// OptionsFromEnv reads Options from ACCEL_SIM_* variables.
func OptionsFromEnv() Options {
	return Options{
		Devices:     int(envconfig.SimDevices()),
		Memory:      envconfig.SimMemory(),
		StrictMlock: envconfig.SimMlock(),
	}
}

type device struct {
	name  string
	uuid  uuid.UUID
	total uint64
	used  uint64
}

type context struct {
	device driver.Device
	flags  driver.ContextFlags
}

// Driver is a simulated accelerator. It is safe for concurrent use.
type Driver struct {
	opts Options

	mu          sync.Mutex
	initialized bool
	devices     []*device
	contexts    map[driver.Context]*context
	stacks      map[int][]driver.Context
	allocs      *redblacktree.Tree[uintptr, *allocation]
	arrays      map[driver.Array]*array
	nextHandle  uintptr
	nextBuffer  uint64
	allocCalls  uint64
}

// New creates a simulated driver. It must be initialized with Init.
func New(opts Options) *Driver {
	if opts.Devices <= 0 {
		opts.Devices = 1
	}
	if opts.Memory == 0 {
		opts.Memory = 1 << 30
	}

	return &Driver{
		opts:       opts,
		contexts:   make(map[driver.Context]*context),
		stacks:     make(map[int][]driver.Context),
		allocs:     redblacktree.New[uintptr, *allocation](),
		arrays:     make(map[driver.Array]*array),
		nextHandle: 0x1000,
	}
}

func init() {
	driver.Register("sim", New(OptionsFromEnv()))
}

var _ driver.Driver = (*Driver)(nil)

// threadIdentity gates Init, the per-thread stacks need osthread.ID.
var threadIdentity = osthread.Supported

func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	if !threadIdentity {
		return driver.Check("cuInit", driver.ErrorNotSupported)
	}

	for i := range d.opts.Devices {
		d.devices = append(d.devices, &device{
			name:  fmt.Sprintf("Simulated Accelerator %d", i),
			uuid:  deviceUUID(i),
			total: d.opts.Memory,
		})
	}

	d.initialized = true
	slog.Debug("simulated driver initialized", "devices", d.opts.Devices, "memory", d.opts.Memory)
	return nil
}

// deviceUUID derives a stable UUID from the device ordinal.
func deviceUUID(ordinal int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "accel-sim-%d", ordinal))
}

func (d *Driver) handle() uintptr {
	d.nextHandle += 0x10
	return d.nextHandle
}

func (d *Driver) device(dev driver.Device) (*device, driver.Result) {
	if !d.initialized {
		return nil, driver.ErrorNotInitialized
	}
	if int(dev) < 0 || int(dev) >= len(d.devices) {
		return nil, driver.ErrorInvalidDevice
	}
	return d.devices[dev], driver.Success
}

func (d *Driver) DeviceCount() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return 0, driver.Check("cuDeviceGetCount", driver.ErrorNotInitialized)
	}
	return len(d.devices), nil
}

func (d *Driver) DeviceGet(ordinal int) (driver.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, r := d.device(driver.Device(ordinal)); r != driver.Success {
		return 0, driver.Check("cuDeviceGet", r)
	}
	return driver.Device(ordinal), nil
}

func (d *Driver) DeviceName(dev driver.Device) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, r := d.device(dev)
	if r != driver.Success {
		return "", driver.Check("cuDeviceGetName", r)
	}
	return info.name, nil
}

func (d *Driver) DeviceUUID(dev driver.Device) (uuid.UUID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, r := d.device(dev)
	if r != driver.Success {
		return uuid.Nil, driver.Check("cuDeviceGetUuid", r)
	}
	return info.uuid, nil
}

func (d *Driver) DeviceTotalMem(dev driver.Device) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, r := d.device(dev)
	if r != driver.Success {
		return 0, driver.Check("cuDeviceTotalMem", r)
	}
	return info.total, nil
}

// =============================================================================
// Kontext-Verwaltung
// =============================================================================

// current returns the top of the calling thread's context stack.
func (d *Driver) current() (driver.Context, *context) {
	stack := d.stacks[osthread.ID()]
	if len(stack) == 0 {
		return 0, nil
	}
	h := stack[len(stack)-1]
	return h, d.contexts[h]
}

func (d *Driver) CtxCreate(flags driver.ContextFlags, dev driver.Device) (driver.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, r := d.device(dev); r != driver.Success {
		return 0, driver.Check("cuCtxCreate", r)
	}

	h := driver.Context(d.handle())
	d.contexts[h] = &context{device: dev, flags: flags}

	tid := osthread.ID()
	d.stacks[tid] = append(d.stacks[tid], h)

	logutil.Trace("sim: context created", "context", h, "device", dev, "thread", tid)
	return h, nil
}

func (d *Driver) CtxDestroy(h driver.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.contexts[h]; !ok {
		return driver.Check("cuCtxDestroy", driver.ErrorInvalidContext)
	}

	// Speicher des Kontexts wird mit ihm freigegeben
	for _, a := range d.allocs.Values() {
		if a.ctx == h {
			d.release(a)
		}
	}
	for handle, arr := range d.arrays {
		if arr.ctx == h {
			d.releaseArray(handle, arr)
		}
	}

	for tid, stack := range d.stacks {
		kept := stack[:0]
		for _, c := range stack {
			if c != h {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			delete(d.stacks, tid)
		} else {
			d.stacks[tid] = kept
		}
	}

	delete(d.contexts, h)
	logutil.Trace("sim: context destroyed", "context", h)
	return nil
}

func (d *Driver) CtxPushCurrent(h driver.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.contexts[h]; !ok {
		return driver.Check("cuCtxPushCurrent", driver.ErrorInvalidContext)
	}

	tid := osthread.ID()
	d.stacks[tid] = append(d.stacks[tid], h)
	return nil
}

func (d *Driver) CtxPopCurrent() (driver.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tid := osthread.ID()
	stack := d.stacks[tid]
	if len(stack) == 0 {
		return 0, driver.Check("cuCtxPopCurrent", driver.ErrorInvalidContext)
	}

	h := stack[len(stack)-1]
	if len(stack) == 1 {
		delete(d.stacks, tid)
	} else {
		d.stacks[tid] = stack[:len(stack)-1]
	}
	return h, nil
}

func (d *Driver) CtxGetCurrent() (driver.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return 0, driver.Check("cuCtxGetCurrent", driver.ErrorNotInitialized)
	}

	h, _ := d.current()
	return h, nil
}

func (d *Driver) CtxGetAPIVersion(h driver.Context) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.contexts[h]; !ok {
		return 0, driver.Check("cuCtxGetApiVersion", driver.ErrorInvalidContext)
	}
	return APIVersion, nil
}

// CtxSynchronize returns immediately: simulated work completes before the
// call that issued it returns.
func (d *Driver) CtxSynchronize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if h, _ := d.current(); h == 0 {
		return driver.Check("cuCtxSynchronize", driver.ErrorInvalidContext)
	}
	return nil
}

func (d *Driver) MemGetInfo() (free, total uint64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ctx := d.current()
	if ctx == nil {
		return 0, 0, driver.Check("cuMemGetInfo", driver.ErrorInvalidContext)
	}

	dev := d.devices[ctx.device]
	return dev.total - dev.used, dev.total, nil
}

// Stats is a snapshot of the driver's live resources.
type Stats struct {
	Contexts      int
	DeviceAllocs  int
	PinnedAllocs  int
	Registrations int
	Arrays        int

	// AllocCalls counts every allocation request that reached the driver,
	// successful or not.
	AllocCalls uint64
}

// Stats returns a snapshot of the driver's live resources.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{
		Contexts:   len(d.contexts),
		Arrays:     len(d.arrays),
		AllocCalls: d.allocCalls,
	}

	for _, a := range d.allocs.Values() {
		switch a.kind {
		case allocDevice:
			s.DeviceAllocs++
		case allocPinned:
			s.PinnedAllocs++
		case allocRegistered:
			s.Registrations++
		}
	}

	return s
}
