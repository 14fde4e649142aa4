// cmd_devices.go - Devices Command
// Hauptfunktionen: DevicesHandler
package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/format"
)

// deviceRow - Liest die Tabellenzeile eines Geraets.
// Erzeugt dafuer kurz einen eigenen Kontext.
func deviceRow(dev *device.Device) (_ []string, err error) {
	name, err := dev.Name()
	if err != nil {
		return nil, err
	}

	id, err := dev.UUID()
	if err != nil {
		return nil, err
	}

	total, err := dev.TotalMemory()
	if err != nil {
		return nil, err
	}

	ctx, err := dev.CreateContextAuto()
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, ctx.Close()) }()

	version, err := ctx.Version()
	if err != nil {
		return nil, err
	}

	free, _, err := ctx.MemInfo()
	if err != nil {
		return nil, err
	}

	return []string{
		strconv.Itoa(dev.Ordinal()),
		name,
		id.String(),
		format.HumanBytes(int64(total)),
		format.HumanBytes(int64(free)),
		formatAPIVersion(version),
	}, nil
}

// formatAPIVersion - 12020 -> "12.2"
func formatAPIVersion(v uint32) string {
	return fmt.Sprintf("%d.%d", v/1000, v%1000/10)
}

// DevicesHandler - Listet alle Geraete des Treibers auf
func DevicesHandler(cmd *cobra.Command, _ []string) error {
	n, err := device.Count()
	if err != nil {
		return err
	}

	var data [][]string
	for i := range n {
		dev, err := device.Nth(i)
		if err != nil {
			return err
		}

		row, err := deviceRow(dev)
		if err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}
		data = append(data, row)
	}

	table := newTable(cmd.OutOrStdout(), []string{"INDEX", "NAME", "UUID", "MEMORY", "FREE", "API"})
	table.AppendBulk(data)
	table.Render()

	return nil
}

// newDevicesCmd - Erstellt den devices Command
func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "devices",
		Aliases: []string{"ls"},
		Short:   "List devices",
		Args:    cobra.NoArgs,
		RunE:    DevicesHandler,
	}
}
