// context.go
// Dieses Modul enthaelt den Context: Erzeugen, Push/Pop, Pruefung auf den
// aktuellen Kontext, Synchronisation und die Referenzzaehlung ueber Clone/Close.
//
// Aktivierung bindet die Goroutine an ihren OS-Thread (runtime.LockOSThread)
// bis zum passenden Pop oder Close.

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ollama/accel/driver"
	"github.com/ollama/accel/logutil"
)

// Context owns one native context handle. Clones share the handle and a
// reference count; the last Close destroys the native context. The handle may
// be used from any goroutine, activation is per OS thread.
type Context struct {
	drv    driver.Driver
	dev    *Device
	handle driver.Context

	// nil for borrowed contexts returned by Lookup
	refs   *atomic.Int64
	closed atomic.Bool
}

// live maps native handles to the context that created them.
var live sync.Map

// Create creates a context on dev and makes it the active context of the
// calling thread. The goroutine stays locked to its thread until the context
// is popped or closed.
func Create(dev *Device, flags driver.ContextFlags) (*Context, error) {
	runtime.LockOSThread()

	if _, ok := slots.get(dev.drv); ok {
		runtime.UnlockOSThread()
		return nil, ErrContextAlreadyActive
	}

	h, err := dev.drv.CtxCreate(flags, dev.handle)
	if err != nil {
		runtime.UnlockOSThread()
		return nil, &CreationError{Device: dev.ordinal, Err: err}
	}
	if h == 0 {
		panic("device: driver returned a null context")
	}

	slots.swap(h)

	c := &Context{drv: dev.drv, dev: dev, handle: h, refs: new(atomic.Int64)}
	c.refs.Store(1)
	live.Store(h, c)

	slog.Debug("context created", "context", c, "flags", flags)
	return c, nil
}

// Lookup returns the context owning the allocation that contains p. It
// returns nil without error when the driver does not manage p. The returned
// context is borrowed: Close is a no-op.
func Lookup(drv driver.Driver, p unsafe.Pointer) (*Context, error) {
	v, err := drv.PointerGetAttribute(driver.PointerAttributeContext, p)
	if errors.Is(err, driver.ErrorInvalidValue) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	h := driver.Context(v)
	if h == 0 {
		return nil, nil
	}

	if owner, ok := live.Load(h); ok {
		return &Context{drv: owner.(*Context).drv, dev: owner.(*Context).dev, handle: h}, nil
	}
	return &Context{drv: drv, handle: h}, nil
}

// Clone returns a new reference to the same native context.
func (c *Context) Clone() *Context {
	if c.refs == nil {
		return &Context{drv: c.drv, dev: c.dev, handle: c.handle}
	}

	c.refs.Add(1)
	return &Context{drv: c.drv, dev: c.dev, handle: c.handle, refs: c.refs}
}

// Close releases this reference. The last reference destroys the native
// context; if it is active on the calling thread the thread is unlocked.
// Closing twice is a no-op.
func (c *Context) Close() error {
	if c.refs == nil || c.closed.Swap(true) {
		return nil
	}
	if c.refs.Add(-1) > 0 {
		return nil
	}

	live.Delete(c.handle)

	if slots.holds(c.handle) {
		slots.swap(0)
		runtime.UnlockOSThread()
	}

	if err := c.drv.CtxDestroy(c.handle); err != nil {
		slog.Error("destroying context failed", "context", c, "error", err)
		return fmt.Errorf("device: destroy context: %w", err)
	}

	logutil.Trace("context destroyed", "context", c)
	return nil
}

// AssureCurrent returns nil iff c is the driver's current context on the
// calling thread.
func (c *Context) AssureCurrent() error {
	cur, err := c.drv.CtxGetCurrent()
	if err != nil {
		return err
	}
	if cur != c.handle {
		return ErrContextNotCurrent
	}
	return nil
}

// Push makes c the active context of the calling thread.
func (c *Context) Push() error {
	runtime.LockOSThread()

	if _, ok := slots.get(c.drv); ok {
		runtime.UnlockOSThread()
		return ErrContextAlreadyActive
	}

	if err := c.drv.CtxPushCurrent(c.handle); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("device: push context: %w", err)
	}

	slots.swap(c.handle)
	return nil
}

// Pop deactivates c on the calling thread. It panics if the thread has no
// active context or the driver pops anything but c.
func (c *Context) Pop() error {
	if _, ok := slots.get(c.drv); !ok {
		panic("device: pop without an active context on this thread")
	}

	popped, err := c.drv.CtxPopCurrent()
	if err != nil {
		return fmt.Errorf("device: pop context: %w", err)
	}
	if popped == 0 {
		panic("device: driver popped a null context")
	}
	if popped != c.handle {
		panic(fmt.Sprintf("device: popped context %#x, expected %#x", uintptr(popped), uintptr(c.handle)))
	}

	slots.swap(0)
	runtime.UnlockOSThread()
	return nil
}

// Do runs fn with c current on the calling thread. If another context is
// active, c is pushed on top of it for the duration of fn and the slot is
// restored afterwards.
func (c *Context) Do(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cur, err := c.drv.CtxGetCurrent()
	if err != nil {
		return err
	}
	if cur == c.handle {
		return fn()
	}

	if err := c.drv.CtxPushCurrent(c.handle); err != nil {
		return fmt.Errorf("device: push context: %w", err)
	}
	prev, hadPrev := slots.swap(c.handle)

	fnErr := fn()

	popped, err := c.drv.CtxPopCurrent()
	if hadPrev {
		slots.swap(prev)
	} else {
		slots.swap(0)
	}
	if err != nil {
		return errors.Join(fnErr, fmt.Errorf("device: pop context: %w", err))
	}
	if popped != c.handle {
		panic(fmt.Sprintf("device: popped context %#x, expected %#x", uintptr(popped), uintptr(c.handle)))
	}

	return fnErr
}

// Sync blocks until all work on c has completed. c must be current.
func (c *Context) Sync() error {
	if err := c.AssureCurrent(); err != nil {
		return err
	}
	return c.drv.CtxSynchronize()
}

// Version returns the API version of c.
func (c *Context) Version() (uint32, error) {
	return c.drv.CtxGetAPIVersion(c.handle)
}

// MemInfo returns the free and total memory of the device of c.
func (c *Context) MemInfo() (free, total uint64, err error) {
	err = c.Do(func() error {
		free, total, err = c.drv.MemGetInfo()
		return err
	})
	return free, total, err
}

// Equal reports whether c and o refer to the same native context.
func (c *Context) Equal(o *Context) bool {
	return c != nil && o != nil && c.handle == o.handle
}

func (c *Context) Handle() driver.Context { return c.handle }

func (c *Context) Driver() driver.Driver { return c.drv }

// Device returns the device c was created on, or nil for a context that was
// not created by this process.
func (c *Context) Device() *Device { return c.dev }

func (c *Context) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("handle", fmt.Sprintf("%#x", uintptr(c.handle)))}
	if c.dev != nil {
		attrs = append(attrs, slog.Int("device", c.dev.ordinal))
	}
	return slog.GroupValue(attrs...)
}
