// dtype.go - Elementtypen der Commands
// Hauptfunktionen: bf16, parseDType, displayValue
package cmd

import (
	"encoding/binary"
	"fmt"
	"strconv"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

const (
	dtypeF32  = "f32"
	dtypeF16  = "f16"
	dtypeBF16 = "bf16"
	dtypeU32  = "u32"
	dtypeI32  = "i32"
)

var dtypes = []string{dtypeF32, dtypeF16, dtypeBF16, dtypeU32, dtypeI32}

// bf16 sind die Bits eines bfloat16. Arrays haben kein passendes Format.
type bf16 uint16

func toBF16(f float32) bf16 {
	return bf16(binary.LittleEndian.Uint16(bfloat16.EncodeFloat32([]float32{f})))
}

func (b bf16) Float32() float32 {
	return bfloat16.DecodeFloat32(binary.LittleEndian.AppendUint16(nil, uint16(b)))[0]
}

func (b bf16) String() string {
	return strconv.FormatFloat(float64(b.Float32()), 'g', -1, 32)
}

func parseDType(s string) (string, error) {
	for _, d := range dtypes {
		if d == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown dtype %q, expected one of %v", s, dtypes)
}

// displayValue - Gibt den tatsaechlich gespeicherten Wert aus
func displayValue(v any) string {
	switch v := v.(type) {
	case float16.Float16:
		return strconv.FormatFloat(float64(v.Float32()), 'g', -1, 32)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}
