// kind.go - Speicherarten
package memory

import "fmt"

// Kind tags the physical kind of a memory object. Copy dispatches on the
// pair of kinds.
type Kind int

const (
	// KindHost is ordinary pageable host memory unknown to the driver
	KindHost Kind = iota
	// KindRegistered is host memory registered with the driver
	KindRegistered
	// KindPageLocked is host memory allocated pinned by the driver
	KindPageLocked
	// KindDevice is linear memory on the device
	KindDevice
	// KindArray is opaque device memory described by a Dimension
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindRegistered:
		return "registered"
	case KindPageLocked:
		return "page-locked"
	case KindDevice:
		return "device"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}

// hostSide reports whether memory of kind k can be copied with a plain
// slice copy.
func (k Kind) hostSide() bool {
	return k == KindHost || k == KindRegistered || k == KindPageLocked
}

// ParseKind returns the Kind whose String is s.
func ParseKind(s string) (Kind, error) {
	for k := KindHost; k <= KindArray; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("memory: unknown kind %q", s)
}
