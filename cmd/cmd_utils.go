// cmd_utils.go - Gemeinsame Hilfsfunktionen der Commands
// Hauptfunktionen: newTable, openContext, parseKinds, allocate, checkLeaks
package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/driver/sim"
	"github.com/ollama/accel/memory"
)

// newTable - Tabelle im Stil von "ollama list"
func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

// selectDevice - Liest --device, negativ bedeutet ACCEL_DEVICE
func selectDevice(cmd *cobra.Command) (*device.Device, error) {
	i, err := cmd.Flags().GetInt("device")
	if err != nil {
		return nil, err
	}

	if i < 0 {
		return device.Default()
	}
	return device.Nth(i)
}

// openContext - Erstellt einen Kontext auf dem gewaehlten Geraet.
// Der Aufrufer muss ihn auf derselben Goroutine schliessen.
func openContext(cmd *cobra.Command) (*device.Context, error) {
	dev, err := selectDevice(cmd)
	if err != nil {
		return nil, err
	}

	ctx, err := dev.CreateContextAuto()
	if err != nil {
		return nil, err
	}

	slog.Debug("context created", "device", dev, "context", ctx)
	return ctx, nil
}

// parseKinds - Wandelt --kinds in lineare Speicherarten um
func parseKinds(names []string) ([]memory.Kind, error) {
	kinds := make([]memory.Kind, 0, len(names))
	for _, name := range names {
		k, err := memory.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if k == memory.KindArray {
			return nil, errors.New("array memory has its own command")
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// buffers - Sammelt Allokationen und gibt sie gemeinsam frei
type buffers []func() error

func (b *buffers) Close() error {
	var errs []error
	for i := len(*b) - 1; i >= 0; i-- {
		errs = append(errs, (*b)[i]())
	}
	*b = nil
	return errors.Join(errs...)
}

// allocate - Legt n Elemente der Art k an
func allocate[T memory.Scalar](ctx *device.Context, b *buffers, k memory.Kind, n int) (memory.ContinuousMut[T], error) {
	switch k {
	case memory.KindHost:
		return make(memory.Host[T], n), nil
	case memory.KindRegistered:
		m, err := memory.NewRegistered(ctx, make([]T, n))
		if err != nil {
			return nil, err
		}
		*b = append(*b, m.Close)
		return m, nil
	case memory.KindPageLocked:
		m, err := memory.NewPageLocked[T](ctx, n)
		if err != nil {
			return nil, err
		}
		*b = append(*b, m.Close)
		return m, nil
	case memory.KindDevice:
		m, err := memory.NewDevice[T](ctx, n)
		if err != nil {
			return nil, err
		}
		*b = append(*b, m.Close)
		return m, nil
	default:
		return nil, fmt.Errorf("cannot allocate %s memory of %d elements", k, n)
	}
}

// checkLeaks - Prueft beim simulierten Treiber, dass nichts mehr lebt
func checkLeaks(ctx *device.Context) error {
	sd, ok := ctx.Driver().(*sim.Driver)
	if !ok {
		return nil
	}

	s := sd.Stats()
	slog.Debug("simulated driver", "stats", s)
	if s.DeviceAllocs+s.PinnedAllocs+s.Registrations+s.Arrays > 0 {
		return fmt.Errorf("leaked allocations: %+v", s)
	}
	return nil
}
