// device.go
// Dieses Modul enthaelt den Device-Handle: Auswahl ueber den Treiber,
// Abfragen (Name, UUID, Speicher) und das Erzeugen von Kontexten.

package device

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ollama/accel/driver"
	"github.com/ollama/accel/envconfig"
	"github.com/ollama/accel/format"
)

// Device is one physical device of a driver.
type Device struct {
	drv     driver.Driver
	ordinal int
	handle  driver.Device
}

// Get returns device i of drv.
func Get(drv driver.Driver, i int) (*Device, error) {
	h, err := drv.DeviceGet(i)
	if err != nil {
		return nil, fmt.Errorf("device %d: %w", i, err)
	}
	return &Device{drv: drv, ordinal: i, handle: h}, nil
}

// Count returns the number of devices of the default driver.
func Count() (int, error) {
	drv, err := driver.Default()
	if err != nil {
		return 0, err
	}
	return drv.DeviceCount()
}

// Nth returns device i of the default driver.
func Nth(i int) (*Device, error) {
	drv, err := driver.Default()
	if err != nil {
		return nil, err
	}
	return Get(drv, i)
}

// Default returns the device selected by ACCEL_DEVICE.
func Default() (*Device, error) {
	return Nth(envconfig.Device())
}

func (d *Device) Driver() driver.Driver { return d.drv }

func (d *Device) Ordinal() int { return d.ordinal }

func (d *Device) Name() (string, error) {
	return d.drv.DeviceName(d.handle)
}

func (d *Device) UUID() (uuid.UUID, error) {
	return d.drv.DeviceUUID(d.handle)
}

// TotalMemory returns the device memory in bytes.
func (d *Device) TotalMemory() (uint64, error) {
	return d.drv.DeviceTotalMem(d.handle)
}

// CreateContext creates a context on d and makes it active on the calling thread.
func (d *Device) CreateContext(flags driver.ContextFlags) (*Context, error) {
	return Create(d, flags)
}

// CreateContextAuto is CreateContext with driver.SchedAuto.
func (d *Device) CreateContextAuto() (*Context, error) {
	return Create(d, driver.SchedAuto)
}

func (d *Device) LogValue() slog.Value {
	attrs := []slog.Attr{slog.Int("id", d.ordinal)}
	if name, err := d.Name(); err == nil {
		attrs = append(attrs, slog.String("name", name))
	}
	if total, err := d.TotalMemory(); err == nil {
		attrs = append(attrs, slog.String("total", format.HumanBytes2(total)))
	}
	return slog.GroupValue(attrs...)
}
