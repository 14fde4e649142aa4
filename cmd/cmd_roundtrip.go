// cmd_roundtrip.go - Roundtrip Command
// Hauptfunktionen: RoundTripHandler, roundTrip
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

type roundTripOptions struct {
	kinds []memory.Kind
	sizes []int
	value float64
	dtype string
}

// roundTrip - Fuellt src mit v und kopiert k1 -> k2 -> k1
func roundTrip[T memory.Scalar](ctx *device.Context, k1, k2 memory.Kind, n int, v T) (err error) {
	var b buffers
	defer func() { err = errors.Join(err, b.Close()) }()

	src, err := allocate[T](ctx, &b, k1, n)
	if err != nil {
		return err
	}
	if err := src.Set(v); err != nil {
		return err
	}

	mid, err := allocate[T](ctx, &b, k2, n)
	if err != nil {
		return err
	}
	if err := mid.CopyFrom(src); err != nil {
		return fmt.Errorf("%s to %s: %w", k1, k2, err)
	}

	back, err := allocate[T](ctx, &b, k1, n)
	if err != nil {
		return err
	}
	if err := back.CopyFrom(mid); err != nil {
		return fmt.Errorf("%s to %s: %w", k2, k1, err)
	}

	got := back.Slice()
	if i := slices.IndexFunc(got, func(e T) bool { return e != v }); i >= 0 {
		return fmt.Errorf("element %d: expected %s, got %s", i, displayValue(v), displayValue(got[i]))
	}
	return nil
}

// roundTrips - Alle geordneten Paare aus opts.kinds fuer alle Groessen
func roundTrips[T memory.Scalar](ctx *device.Context, opts roundTripOptions, v T) (rows [][]string, failed int) {
	for _, k1 := range opts.kinds {
		for _, k2 := range opts.kinds {
			for _, n := range opts.sizes {
				result := "ok"
				if err := roundTrip(ctx, k1, k2, n, v); err != nil {
					result = err.Error()
					failed++
				}

				var zero T
				rows = append(rows, []string{
					k1.String(),
					k2.String(),
					strconv.Itoa(n),
					format.HumanBytes(int64(n) * int64(unsafe.Sizeof(zero))),
					displayValue(v),
					result,
				})
			}
		}
	}
	return rows, failed
}

func runRoundTrips(ctx *device.Context, opts roundTripOptions) ([][]string, int, error) {
	var (
		rows   [][]string
		failed int
	)

	switch opts.dtype {
	case dtypeF32:
		rows, failed = roundTrips(ctx, opts, float32(opts.value))
	case dtypeF16:
		rows, failed = roundTrips(ctx, opts, float16.Fromfloat32(float32(opts.value)))
	case dtypeBF16:
		rows, failed = roundTrips(ctx, opts, toBF16(float32(opts.value)))
	case dtypeU32:
		rows, failed = roundTrips(ctx, opts, uint32(opts.value))
	case dtypeI32:
		rows, failed = roundTrips(ctx, opts, int32(opts.value))
	default:
		return nil, 0, fmt.Errorf("unknown dtype %q", opts.dtype)
	}

	return rows, failed, nil
}

// RoundTripHandler - Prueft Kopien zwischen allen Paaren von Speicherarten
func RoundTripHandler(cmd *cobra.Command, _ []string) (err error) {
	var opts roundTripOptions

	names, err := cmd.Flags().GetStringSlice("kinds")
	if err != nil {
		return err
	}
	if opts.kinds, err = parseKinds(names); err != nil {
		return err
	}

	if opts.sizes, err = cmd.Flags().GetIntSlice("sizes"); err != nil {
		return err
	}
	for _, n := range opts.sizes {
		if n <= 0 {
			return fmt.Errorf("invalid size %d", n)
		}
	}

	if opts.value, err = cmd.Flags().GetFloat64("value"); err != nil {
		return err
	}

	dtype, _ := cmd.Flags().GetString("dtype")
	if opts.dtype, err = parseDType(dtype); err != nil {
		return err
	}

	ctx, err := openContext(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, ctx.Close()) }()

	rows, failed, err := runRoundTrips(ctx, opts)
	if err != nil {
		return err
	}

	table := newTable(cmd.OutOrStdout(), []string{"FROM", "VIA", "ELEMENTS", "SIZE", "VALUE", "RESULT"})
	table.AppendBulk(rows)
	table.Render()

	if failed > 0 {
		return fmt.Errorf("%d of %d round trips failed", failed, len(rows))
	}
	return checkLeaks(ctx)
}

// newRoundTripCmd - Erstellt den roundtrip Command
func newRoundTripCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roundtrip",
		Short: "Copy values between memory kinds and verify them",
		Args:  cobra.NoArgs,
		RunE:  RoundTripHandler,
	}

	cmd.Flags().StringSlice("kinds", []string{"host", "page-locked", "device"}, "Memory kinds (host, registered, page-locked, device)")
	cmd.Flags().IntSlice("sizes", []int{1, 10, 1000}, "Element counts")
	cmd.Flags().Float64("value", 1.5, "Fill value")
	cmd.Flags().String("dtype", dtypeF32, "Element type (f32, f16, bf16, u32, i32)")
	cmd.Flags().Int("device", -1, "Device ordinal (default: ACCEL_DEVICE)")

	return cmd
}
