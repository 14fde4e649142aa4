// scalar.go - Elementtypen
package memory

import (
	"fmt"
	"unsafe"

	"github.com/x448/float16"

	"github.com/ollama/accel/driver"
)

// Scalar is an element type memory can hold. float16.Float16 satisfies it
// through its uint16 underlying type.
type Scalar interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

func sizeOf[T Scalar]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// ArrayFormat returns the native array format of T.
func ArrayFormat[T Scalar]() (driver.ArrayFormat, error) {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return driver.FormatUnsignedInt8, nil
	case uint16:
		return driver.FormatUnsignedInt16, nil
	case uint32:
		return driver.FormatUnsignedInt32, nil
	case int8:
		return driver.FormatSignedInt8, nil
	case int16:
		return driver.FormatSignedInt16, nil
	case int32:
		return driver.FormatSignedInt32, nil
	case float16.Float16:
		return driver.FormatHalf, nil
	case float32:
		return driver.FormatFloat, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnsupportedFormat, zero)
	}
}
