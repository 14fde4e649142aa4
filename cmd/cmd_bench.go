// cmd_bench.go - Bench Command
// Hauptfunktionen: BenchHandler, benchDevice, benchPair
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/format"
	"github.com/ollama/accel/memory"
)

type benchOptions struct {
	kinds      []memory.Kind
	bytes      int
	iterations int
}

// benchResult - Durchsatz einer Kopie in Bytes pro Sekunde
type benchResult struct {
	device   int
	src, dst memory.Kind
	mean     float64
	stddev   float64
}

func (r benchResult) row(bytes int) []string {
	return []string{
		strconv.Itoa(r.device),
		r.src.String(),
		r.dst.String(),
		format.HumanBytes(int64(bytes)),
		format.HumanBytes(int64(r.mean)) + "/s",
		format.HumanBytes(int64(r.stddev)) + "/s",
	}
}

// benchPair - Misst opts.iterations Kopien src -> dst
func benchPair(ctx *device.Context, opts benchOptions, src, dst memory.Kind) (_ benchResult, err error) {
	var b buffers
	defer func() { err = errors.Join(err, b.Close()) }()

	n := opts.bytes / 4
	s, err := allocate[float32](ctx, &b, src, n)
	if err != nil {
		return benchResult{}, err
	}
	if err := s.Set(1); err != nil {
		return benchResult{}, err
	}

	d, err := allocate[float32](ctx, &b, dst, n)
	if err != nil {
		return benchResult{}, err
	}

	// Aufwaermen
	if err := d.CopyFrom(s); err != nil {
		return benchResult{}, err
	}

	samples := make([]float64, 0, opts.iterations)
	for range opts.iterations {
		start := time.Now()
		if err := d.CopyFrom(s); err != nil {
			return benchResult{}, err
		}
		if err := ctx.Do(ctx.Sync); err != nil {
			return benchResult{}, err
		}
		samples = append(samples, float64(n*4)/time.Since(start).Seconds())
	}

	mean, stddev := stat.MeanStdDev(samples, nil)
	return benchResult{device: ctx.Device().Ordinal(), src: src, dst: dst, mean: mean, stddev: stddev}, nil
}

// benchDevice - Alle Paare auf einem Geraet mit eigenem Kontext.
// Muss auf der Goroutine laufen, die den Kontext auch schliesst.
func benchDevice(c context.Context, dev *device.Device, opts benchOptions) (results []benchResult, err error) {
	ctx, err := dev.CreateContextAuto()
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, ctx.Close()) }()

	for _, src := range opts.kinds {
		for _, dst := range opts.kinds {
			if err := c.Err(); err != nil {
				return nil, err
			}

			r, err := benchPair(ctx, opts, src, dst)
			if err != nil {
				return nil, fmt.Errorf("device %d: %s to %s: %w", dev.Ordinal(), src, dst, err)
			}

			slog.Debug("bench", "device", dev.Ordinal(), "src", src, "dst", dst, "mean", r.mean, "stddev", r.stddev)
			results = append(results, r)
		}
	}
	return results, nil
}

// BenchHandler - Misst den Kopierdurchsatz zwischen Speicherarten
func BenchHandler(cmd *cobra.Command, _ []string) error {
	var opts benchOptions

	flags := cmd.Flags()
	names, err := flags.GetStringSlice("kinds")
	if err != nil {
		return err
	}
	if opts.kinds, err = parseKinds(names); err != nil {
		return err
	}

	if opts.bytes, err = flags.GetInt("bytes"); err != nil {
		return err
	}
	if opts.bytes < 4 {
		return fmt.Errorf("invalid --bytes %d", opts.bytes)
	}
	opts.bytes -= opts.bytes % 4

	if opts.iterations, err = flags.GetInt("iterations"); err != nil {
		return err
	}
	if opts.iterations < 2 {
		return fmt.Errorf("--iterations must be at least 2, got %d", opts.iterations)
	}

	all, _ := flags.GetBool("all-devices")

	var devices []*device.Device
	if all {
		n, err := device.Count()
		if err != nil {
			return err
		}
		for i := range n {
			dev, err := device.Nth(i)
			if err != nil {
				return err
			}
			devices = append(devices, dev)
		}
	} else {
		dev, err := selectDevice(cmd)
		if err != nil {
			return err
		}
		devices = append(devices, dev)
	}

	results := make([][]benchResult, len(devices))
	g, c := errgroup.WithContext(cmd.Context())
	for i, dev := range devices {
		g.Go(func() error {
			r, err := benchDevice(c, dev, opts)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var rows [][]string
	for _, r := range slices.Concat(results...) {
		rows = append(rows, r.row(opts.bytes))
	}

	table := newTable(cmd.OutOrStdout(), []string{"DEVICE", "FROM", "TO", "SIZE", "MEAN", "STDDEV"})
	table.AppendBulk(rows)
	table.Render()

	return nil
}

// newBenchCmd - Erstellt den bench Command
func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure copy throughput between memory kinds",
		Args:  cobra.NoArgs,
		RunE:  BenchHandler,
	}

	cmd.Flags().StringSlice("kinds", []string{"host", "page-locked", "device"}, "Memory kinds (host, registered, page-locked, device)")
	cmd.Flags().Int("bytes", 16<<20, "Bytes per copy")
	cmd.Flags().Int("iterations", 10, "Timed copies per pair")
	cmd.Flags().Bool("all-devices", false, "Benchmark every device concurrently, one context each")
	cmd.Flags().Int("device", -1, "Device ordinal (default: ACCEL_DEVICE)")

	return cmd
}
