// registry.go - Registrierung und Auswahl von Treibern
//
// Enthaelt:
// - Register/Get: Treiber-Registry (befuellt aus init() der Treiber-Pakete)
// - Default: waehlt ACCEL_DRIVER, sonst cuda, sonst sim
package driver

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ollama/accel/envconfig"
)

// ErrNoDriver is returned when no registered driver matches the request.
var ErrNoDriver = errors.New("driver: no driver available")

// Prioritaet fuer die automatische Auswahl
var priority = []string{"cuda", "sim"}

var (
	mu      sync.RWMutex
	drivers = make(map[string]Driver)
	inits   = make(map[string]func() error)
)

// Register makes a driver available under name. It panics on duplicates,
// like ml.RegisterBackend.
func Register(name string, d Driver) {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := drivers[name]; ok {
		panic("driver: driver already registered: " + name)
	}

	drivers[name] = d
	inits[name] = sync.OnceValue(d.Init)
}

// Names returns the registered driver names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Get returns the initialized driver registered as name.
func Get(name string) (Driver, error) {
	mu.RLock()
	d, ok := drivers[name]
	initFn := inits[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDriver, name)
	}

	if err := initFn(); err != nil {
		return nil, fmt.Errorf("driver %s: init: %w", name, err)
	}

	return d, nil
}

var defaultDriver = sync.OnceValues(func() (Driver, error) {
	if name := envconfig.Driver(); name != "" {
		return Get(name)
	}

	var errs []error
	for _, name := range priority {
		d, err := Get(name)
		if err == nil {
			slog.Debug("selected driver", "name", name)
			return d, nil
		}
		if !errors.Is(err, ErrNoDriver) {
			slog.Debug("driver unavailable", "name", name, "error", err)
		}
		errs = append(errs, err)
	}

	return nil, errors.Join(append([]error{ErrNoDriver}, errs...)...)
})

// Default returns the process-wide driver. The choice is made once.
func Default() (Driver, error) {
	return defaultDriver()
}
