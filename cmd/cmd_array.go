// cmd_array.go - Array Command
// Hauptfunktionen: ArrayHandler, arrayRoundTrip
package cmd

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"unsafe"

	"github.com/spf13/cobra"
	"github.com/x448/float16"

	"github.com/ollama/accel/device"
	"github.com/ollama/accel/format"
	"github.com/ollama/accel/memory"
)

type arrayOptions struct {
	width, height, depth, layers, channels int

	sources []memory.Kind
	value   float64
	dtype   string
}

// shapes - Die fuenf Array-Formen aus den Flags
func (o arrayOptions) shapes() []memory.Dimension {
	return []memory.Dimension{
		memory.Ix1{W: o.width, Channels: o.channels},
		memory.Ix2{W: o.width, H: o.height, Channels: o.channels},
		memory.Ix3{W: o.width, H: o.height, D: o.depth, Channels: o.channels},
		memory.Ix1Layered{W: o.width, L: o.layers, Channels: o.channels},
		memory.Ix2Layered{W: o.width, H: o.height, L: o.layers, Channels: o.channels},
	}
}

// arrayRoundTrip - Linear (k) -> Array -> Linear (k) mit Vergleich.
// useSet fuellt das Array direkt ueber Array.Set.
func arrayRoundTrip[T memory.Scalar](ctx *device.Context, dim memory.Dimension, k memory.Kind, v T, useSet bool) (err error) {
	var b buffers
	defer func() { err = errors.Join(err, b.Close()) }()

	arr, err := memory.NewArray[T](ctx, dim)
	if err != nil {
		return err
	}
	b = append(b, arr.Close)

	if useSet {
		if err := arr.Set(v); err != nil {
			return err
		}
	} else {
		src, err := allocate[T](ctx, &b, k, dim.Len())
		if err != nil {
			return err
		}
		if err := src.Set(v); err != nil {
			return err
		}
		if err := arr.CopyFrom(src); err != nil {
			return err
		}
	}

	dst, err := allocate[T](ctx, &b, k, dim.Len())
	if err != nil {
		return err
	}
	if err := dst.CopyFrom(arr); err != nil {
		return err
	}

	got := dst.Slice()
	if i := slices.IndexFunc(got, func(e T) bool { return e != v }); i >= 0 {
		return fmt.Errorf("element %d: expected %s, got %s", i, displayValue(v), displayValue(got[i]))
	}
	return nil
}

func arrayRoundTrips[T memory.Scalar](ctx *device.Context, opts arrayOptions, v T) (rows [][]string, failed int) {
	for _, dim := range opts.shapes() {
		for _, k := range opts.sources {
			for _, useSet := range []bool{false, true} {
				source := k.String()
				if useSet {
					source = "set"
				}

				result := "ok"
				if err := arrayRoundTrip(ctx, dim, k, v, useSet); err != nil {
					result = err.Error()
					failed++
				}

				var zero T
				rows = append(rows, []string{
					fmt.Sprint(dim),
					source,
					k.String(),
					strconv.Itoa(dim.Len()),
					format.HumanBytes(int64(dim.Len()) * int64(unsafe.Sizeof(zero))),
					result,
				})
			}
		}
	}
	return rows, failed
}

func runArrayRoundTrips(ctx *device.Context, opts arrayOptions) ([][]string, int, error) {
	var (
		rows   [][]string
		failed int
	)

	switch opts.dtype {
	case dtypeF32:
		rows, failed = arrayRoundTrips(ctx, opts, float32(opts.value))
	case dtypeF16:
		rows, failed = arrayRoundTrips(ctx, opts, float16.Fromfloat32(float32(opts.value)))
	case dtypeBF16:
		// bf16 hat kein natives Array-Format
		_, err := memory.ArrayFormat[bf16]()
		return nil, 0, err
	case dtypeU32:
		rows, failed = arrayRoundTrips(ctx, opts, uint32(opts.value))
	case dtypeI32:
		rows, failed = arrayRoundTrips(ctx, opts, int32(opts.value))
	default:
		return nil, 0, fmt.Errorf("unknown dtype %q", opts.dtype)
	}

	return rows, failed, nil
}

// ArrayHandler - Prueft Kopien in und aus Arrays fuer alle Formen
func ArrayHandler(cmd *cobra.Command, _ []string) (err error) {
	var opts arrayOptions

	flags := cmd.Flags()
	for name, p := range map[string]*int{
		"width":    &opts.width,
		"height":   &opts.height,
		"depth":    &opts.depth,
		"layers":   &opts.layers,
		"channels": &opts.channels,
	} {
		if *p, err = flags.GetInt(name); err != nil {
			return err
		}
		if *p <= 0 {
			return fmt.Errorf("invalid --%s %d", name, *p)
		}
	}

	names, err := flags.GetStringSlice("sources")
	if err != nil {
		return err
	}
	if opts.sources, err = parseKinds(names); err != nil {
		return err
	}

	if opts.value, err = flags.GetFloat64("value"); err != nil {
		return err
	}

	dtype, _ := flags.GetString("dtype")
	if opts.dtype, err = parseDType(dtype); err != nil {
		return err
	}

	ctx, err := openContext(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, ctx.Close()) }()

	rows, failed, err := runArrayRoundTrips(ctx, opts)
	if err != nil {
		return err
	}

	table := newTable(cmd.OutOrStdout(), []string{"SHAPE", "SOURCE", "DESTINATION", "ELEMENTS", "SIZE", "RESULT"})
	table.AppendBulk(rows)
	table.Render()

	if failed > 0 {
		return fmt.Errorf("%d of %d array round trips failed", failed, len(rows))
	}
	return checkLeaks(ctx)
}

// newArrayCmd - Erstellt den array Command
func newArrayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "array",
		Short: "Copy values into arrays of every shape and back",
		Args:  cobra.NoArgs,
		RunE:  ArrayHandler,
	}

	cmd.Flags().Int("width", 10, "Array width")
	cmd.Flags().Int("height", 12, "Array height")
	cmd.Flags().Int("depth", 8, "Array depth")
	cmd.Flags().Int("layers", 12, "Layer count of layered arrays")
	cmd.Flags().Int("channels", 1, "Channels per element (1, 2, 4)")
	cmd.Flags().StringSlice("sources", []string{"page-locked", "device"}, "Linear memory kinds copied from and to")
	cmd.Flags().Float64("value", 2, "Fill value")
	cmd.Flags().String("dtype", dtypeU32, "Element type (f32, f16, u32, i32)")
	cmd.Flags().Int("device", -1, "Device ordinal (default: ACCEL_DEVICE)")

	return cmd
}
