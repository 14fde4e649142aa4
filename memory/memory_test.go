package memory

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/driver"
	"github.com/ollama/accel/driver/sim"
)

func simContext(t *testing.T) *device.Context {
	t.Helper()

	drv, err := driver.Get("sim")
	if err != nil {
		t.Fatal(err)
	}

	dev, err := device.Get(drv, 0)
	if err != nil {
		t.Fatal(err)
	}

	ctx, err := dev.CreateContextAuto()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ctx.Close() })
	return ctx
}

func simStats(t *testing.T, ctx *device.Context) sim.Stats {
	t.Helper()
	return ctx.Driver().(*sim.Driver).Stats()
}

type closer interface{ Close() error }

func closeLater(t *testing.T, c closer) {
	t.Helper()
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
}

// alloc allocates n elements of kind k.
func alloc[T Scalar](t *testing.T, ctx *device.Context, k Kind, n int) ContinuousMut[T] {
	t.Helper()

	switch k {
	case KindHost:
		return make(Host[T], n)
	case KindPageLocked:
		m, err := NewPageLocked[T](ctx, n)
		if err != nil {
			t.Fatal(err)
		}
		closeLater(t, m)
		return m
	case KindDevice:
		m, err := NewDevice[T](ctx, n)
		if err != nil {
			t.Fatal(err)
		}
		closeLater(t, m)
		return m
	default:
		t.Fatalf("unerwartete Art %s", k)
		return nil
	}
}

func TestZeroSizedPanics(t *testing.T) {
	ctx := simContext(t)
	before := simStats(t, ctx).AllocCalls

	const msg = "memory: zero-sized allocation is forbidden"

	require.PanicsWithValue(t, msg, func() { NewPageLocked[float32](ctx, 0) })
	require.PanicsWithValue(t, msg, func() { NewDevice[float32](ctx, 0) })
	require.PanicsWithValue(t, msg, func() { NewRegistered[float32](ctx, nil) })
	require.PanicsWithValue(t, msg, func() { NewRegistered(ctx, []float32{}) })
	require.PanicsWithValue(t, msg, func() { NewArray[float32](ctx, Ix1{}) })
	require.PanicsWithValue(t, msg, func() { NewArray[float32](ctx, Ix2{W: 10}) })
	require.PanicsWithValue(t, msg, func() { NewArray[float32](ctx, Ix1Layered{W: 10}) })

	if after := simStats(t, ctx).AllocCalls; after != before {
		t.Errorf("erwartet keinen Treiberaufruf, bekommen %d", after-before)
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := simContext(t)
	kinds := []Kind{KindHost, KindPageLocked, KindDevice}

	const v = float32(1.5)

	for _, k1 := range kinds {
		for _, k2 := range kinds {
			for _, n := range []int{1, 10, 1000} {
				t.Run(fmt.Sprintf("%s-%s-%d", k1, k2, n), func(t *testing.T) {
					src := alloc[float32](t, ctx, k1, n)
					if err := src.Set(v); err != nil {
						t.Fatal(err)
					}

					mid := alloc[float32](t, ctx, k2, n)
					if err := mid.CopyFrom(src); err != nil {
						t.Fatal(err)
					}

					back := alloc[float32](t, ctx, k1, n)
					if err := back.CopyFrom(mid); err != nil {
						t.Fatal(err)
					}

					if diff := cmp.Diff(slices.Repeat([]float32{v}, n), back.Slice()); diff != "" {
						t.Errorf("Rundreise (-erwartet +bekommen):\n%s", diff)
					}
				})
			}
		}
	}
}

func TestArrayRoundTrip(t *testing.T) {
	ctx := simContext(t)

	for _, dim := range []Dimension{
		Ix1{W: 10},
		Ix2{W: 10, H: 12},
		Ix3{W: 10, H: 12, D: 8},
		Ix1Layered{W: 10, L: 12},
		Ix2Layered{W: 10, H: 12, L: 8},
		Ix2{W: 3, H: 4, Channels: 4},
	} {
		for _, k := range []Kind{KindPageLocked, KindDevice, KindHost} {
			t.Run(fmt.Sprintf("%v-%s", dim, k), func(t *testing.T) {
				n := dim.Len()

				src := alloc[uint32](t, ctx, k, n)
				src.Set(2)

				arr, err := NewArray[uint32](ctx, dim)
				if err != nil {
					t.Fatal(err)
				}
				closeLater(t, arr)

				if err := arr.CopyFrom(src); err != nil {
					t.Fatal(err)
				}

				dst := alloc[uint32](t, ctx, k, n)
				if err := dst.CopyFrom(arr); err != nil {
					t.Fatal(err)
				}

				if diff := cmp.Diff(slices.Repeat([]uint32{2}, n), dst.Slice()); diff != "" {
					t.Errorf("Array-Rundreise (-erwartet +bekommen):\n%s", diff)
				}
			})
		}
	}
}

func TestArrayRoundTripDistinctValues(t *testing.T) {
	ctx := simContext(t)

	for _, dim := range []Dimension{
		Ix2Layered{W: 5, H: 3, L: 4, Channels: 2},
		Ix1Layered{W: 7, L: 3, Channels: 4},
		Ix3{W: 4, H: 3, D: 2, Channels: 2},
		Ix2{W: 6, H: 5, Channels: 4},
	} {
		for _, k := range []Kind{KindPageLocked, KindDevice, KindHost} {
			t.Run(fmt.Sprintf("%v-%s", dim, k), func(t *testing.T) {
				n := dim.Len()

				want := make([]uint32, n)
				for i := range want {
					want[i] = uint32(i)
				}

				src := alloc[uint32](t, ctx, k, n)
				copy(src.MutSlice(), want)

				arr, err := NewArray[uint32](ctx, dim)
				if err != nil {
					t.Fatal(err)
				}
				closeLater(t, arr)

				if err := arr.CopyFrom(src); err != nil {
					t.Fatal(err)
				}

				dst := alloc[uint32](t, ctx, k, n)
				if err := dst.CopyFrom(arr); err != nil {
					t.Fatal(err)
				}

				if diff := cmp.Diff(want, dst.Slice()); diff != "" {
					t.Errorf("Array-Rundreise (-erwartet +bekommen):\n%s", diff)
				}
			})
		}
	}
}

func TestFromElem(t *testing.T) {
	ctx := simContext(t)

	pl, err := NewPageLockedFromElem(ctx, 16, uint8(3))
	if err != nil {
		t.Fatal(err)
	}
	closeLater(t, pl)

	d, err := NewDeviceFromElem(ctx, 16, uint8(3))
	if err != nil {
		t.Fatal(err)
	}
	closeLater(t, d)

	want := slices.Repeat([]uint8{3}, 16)
	if diff := cmp.Diff(want, pl.Slice()); diff != "" {
		t.Errorf("PageLocked (-erwartet +bekommen):\n%s", diff)
	}
	if diff := cmp.Diff(want, d.Slice()); diff != "" {
		t.Errorf("Device (-erwartet +bekommen):\n%s", diff)
	}

	_, total, err := ctx.MemInfo()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewDeviceFromElem(ctx, int(total)+1, uint8(3)); !errors.Is(err, driver.ErrorOutOfMemory) {
		t.Errorf("erwartet ErrorOutOfMemory, bekommen %v", err)
	}
}

func TestCopySizeMismatchPanics(t *testing.T) {
	ctx := simContext(t)

	dev := alloc[int32](t, ctx, KindDevice, 11)
	host := make(Host[int32], 10)
	arr, err := NewArray[int32](ctx, Ix2{W: 3, H: 3})
	if err != nil {
		t.Fatal(err)
	}
	closeLater(t, arr)

	require.PanicsWithValue(t, "memory: copy size mismatch: dst 40 bytes, src 44 bytes", func() { host.CopyFrom(dev) })
	require.Panics(t, func() { dev.CopyFrom(host) })
	require.Panics(t, func() { host.CopyFrom(make(Host[int32], 9)) })
	require.Panics(t, func() { arr.CopyFrom(host) })
}

func TestCopyAliasPanics(t *testing.T) {
	ctx := simContext(t)

	host := make(Host[float32], 8)
	require.Panics(t, func() { Copy[float32](host, host) })

	pl := alloc[float32](t, ctx, KindPageLocked, 8)
	require.Panics(t, func() { Host[float32](pl.Slice()).CopyFrom(pl) })

	dev := alloc[float32](t, ctx, KindDevice, 8)
	require.Panics(t, func() { dev.CopyFrom(dev) })
}

func TestHostDiscovery(t *testing.T) {
	ctx := simContext(t)

	host := make(Host[float64], 4)
	if host.Kind() != KindHost || host.Context() != nil {
		t.Errorf("erwartet unverwalteten Host-Speicher, bekommen %s", host.Kind())
	}

	pl := alloc[float64](t, ctx, KindPageLocked, 4)
	view := Host[float64](pl.Slice()[1:])
	if view.Kind() != KindPageLocked {
		t.Errorf("erwartet %s, bekommen %s", KindPageLocked, view.Kind())
	}
	if !view.Context().Equal(ctx) {
		t.Errorf("erwartet Kontext %v, bekommen %v", ctx.LogValue(), view.Context())
	}

	dev := alloc[float64](t, ctx, KindDevice, 4)
	if k := Host[float64](dev.Slice()).Kind(); k != KindDevice {
		t.Errorf("erwartet %s, bekommen %s", KindDevice, k)
	}
}

func TestArrayToArrayUnsupported(t *testing.T) {
	ctx := simContext(t)

	a, err := NewArray[float32](ctx, Ix2{W: 4, H: 4})
	if err != nil {
		t.Fatal(err)
	}
	closeLater(t, a)

	b, err := NewArray[float32](ctx, Ix1{W: 16})
	if err != nil {
		t.Fatal(err)
	}
	closeLater(t, b)

	err = a.CopyFrom(b)
	if !errors.Is(err, ErrUnsupportedCopy) {
		t.Fatalf("erwartet ErrUnsupportedCopy, bekommen %v", err)
	}

	var uce *UnsupportedCopyError
	if !errors.As(err, &uce) || uce.Dst != KindArray || uce.Src != KindArray {
		t.Errorf("unerwarteter Fehler: %v", err)
	}

	if _, err := a.TrySlice(); !errors.Is(err, ErrNotContinuous) {
		t.Errorf("erwartet ErrNotContinuous, bekommen %v", err)
	}
}

func TestArraySet(t *testing.T) {
	ctx := simContext(t)

	dim := Ix3{W: 4, H: 3, D: 2}
	arr, err := NewArray[int16](ctx, dim)
	if err != nil {
		t.Fatal(err)
	}
	closeLater(t, arr)

	before := simStats(t, ctx).PinnedAllocs
	if err := arr.Set(7); err != nil {
		t.Fatal(err)
	}
	if after := simStats(t, ctx).PinnedAllocs; after != before {
		t.Errorf("Zwischenpuffer nicht freigegeben: %d statt %d", after, before)
	}

	dst := alloc[int16](t, ctx, KindHost, dim.Len())
	if err := dst.CopyFrom(arr); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(slices.Repeat([]int16{7}, dim.Len()), dst.Slice()); diff != "" {
		t.Errorf("Set (-erwartet +bekommen):\n%s", diff)
	}
}

func TestRegistered(t *testing.T) {
	ctx := simContext(t)

	buf := make([]int32, 100)
	reg, err := NewRegistered(ctx, buf)
	if err != nil {
		t.Fatal(err)
	}

	if reg.Kind() != KindRegistered || reg.Len() != 100 || reg.ByteSize() != 400 {
		t.Errorf("unerwartete Eigenschaften: %v", reg.LogValue())
	}
	if id, err := reg.BufferID(); err != nil || id == 0 {
		t.Errorf("erwartet Buffer-ID, bekommen %d (%v)", id, err)
	}

	// doppelte Registrierung
	if _, err := NewRegistered(ctx, buf[10:20]); !errors.Is(err, driver.ErrorHostMemoryAlreadyRegistered) {
		t.Errorf("erwartet ErrorHostMemoryAlreadyRegistered, bekommen %v", err)
	}

	if err := reg.Set(5); err != nil {
		t.Fatal(err)
	}

	dev := alloc[int32](t, ctx, KindDevice, 100)
	if err := dev.CopyFrom(reg); err != nil {
		t.Fatal(err)
	}

	clear(buf)
	if err := reg.CopyFrom(dev); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(slices.Repeat([]int32{5}, 100), buf); diff != "" {
		t.Errorf("registrierte Rundreise (-erwartet +bekommen):\n%s", diff)
	}

	if err := reg.Close(); err != nil {
		t.Fatal(err)
	}
	if n := simStats(t, ctx).Registrations; n != 0 {
		t.Errorf("erwartet keine Registrierung nach Close, bekommen %d", n)
	}
}

func TestCloseOnce(t *testing.T) {
	ctx := simContext(t)
	before := simStats(t, ctx)

	pl, err := NewPageLockedFromElem(ctx, 16, uint8(3))
	if err != nil {
		t.Fatal(err)
	}
	dev, err := NewDeviceFromElem(ctx, 16, uint8(3))
	if err != nil {
		t.Fatal(err)
	}

	for _, c := range []closer{pl, pl, dev, dev} {
		if err := c.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}

	after := simStats(t, ctx)
	if after.PinnedAllocs != before.PinnedAllocs || after.DeviceAllocs != before.DeviceAllocs {
		t.Errorf("erwartet %+v, bekommen %+v", before, after)
	}

	// der Kontext lebt weiter
	if err := ctx.AssureCurrent(); err != nil {
		t.Error(err)
	}
}

func TestAllocationError(t *testing.T) {
	ctx := simContext(t)

	_, total, err := ctx.MemInfo()
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewDevice[byte](ctx, int(total)+1)
	if !errors.Is(err, driver.ErrorOutOfMemory) {
		t.Fatalf("erwartet ErrorOutOfMemory, bekommen %v", err)
	}

	var ae *AllocationError
	if !errors.As(err, &ae) || ae.Kind != KindDevice || ae.Bytes != int(total)+1 {
		t.Errorf("unerwarteter Fehler: %v", err)
	}
}

func TestContextMismatchPanics(t *testing.T) {
	a := simContext(t)

	var b *device.Context
	var g errgroup.Group
	g.Go(func() error {
		var err error
		if b, err = a.Device().CreateContextAuto(); err != nil {
			return err
		}
		return b.Pop()
	})
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { b.Close() })

	da := alloc[float32](t, a, KindDevice, 4)
	db := alloc[float32](t, b, KindDevice, 4)

	require.Panics(t, func() { da.CopyFrom(db) })

	// Arrays pruefen den Kontext fuer jede lineare Art
	arr, err := NewArray[float32](a, Ix1{W: 4})
	if err != nil {
		t.Fatal(err)
	}
	closeLater(t, arr)

	pb := alloc[float32](t, b, KindPageLocked, 4)
	require.Panics(t, func() { arr.CopyFrom(pb) })
	require.Panics(t, func() { pb.CopyFrom(arr) })

	// Host-Speicher passt zu jedem Kontext
	if err := da.CopyFrom(make(Host[float32], 4)); err != nil {
		t.Error(err)
	}
}

func TestBufferID(t *testing.T) {
	ctx := simContext(t)

	a := alloc[float32](t, ctx, KindPageLocked, 4).(Managed[float32])
	b := alloc[float32](t, ctx, KindDevice, 4).(Managed[float32])

	ida, err := a.BufferID()
	if err != nil {
		t.Fatal(err)
	}
	idb, err := b.BufferID()
	if err != nil {
		t.Fatal(err)
	}
	if ida == idb {
		t.Errorf("erwartet unterschiedliche Buffer-IDs, bekommen %d zweimal", ida)
	}
}
