// dim.go - Formen von Arrays
//
// Enthaelt:
// - Dimension: gemeinsame Schnittstelle der fuenf Formen
// - Ix1, Ix2, Ix3, Ix1Layered, Ix2Layered
// - Abbildung auf driver.Array3DDescriptor
package memory

import (
	"fmt"

	"github.com/ollama/accel/driver"
)

// Dimension is the shape of an Array. Width, Height and Depth are copy
// extents: axes the shape does not have report 1, layered shapes report the
// layer count as Depth.
type Dimension interface {
	Width() int
	Height() int
	Depth() int
	Layers() int
	NumChannels() int

	// Len is the number of elements of an Array of this shape.
	Len() int

	// axes returns the raw descriptor axes and flags. Missing axes are 0.
	axes() (width, height, depth int, flags uint32)
}

// Descriptor maps dim to the native array descriptor for element type T.
func Descriptor[T Scalar](dim Dimension) (driver.Array3DDescriptor, error) {
	f, err := ArrayFormat[T]()
	if err != nil {
		return driver.Array3DDescriptor{}, err
	}

	w, h, d, flags := dim.axes()
	return driver.Array3DDescriptor{
		Width:       w,
		Height:      h,
		Depth:       d,
		Format:      f,
		NumChannels: uint32(dim.NumChannels()),
		Flags:       flags,
	}, nil
}

func channels(c int) int {
	if c == 0 {
		return 1
	}
	return c
}

// Ix1 is a 1D shape.
type Ix1 struct {
	W        int
	Channels int
}

func (d Ix1) Width() int       { return d.W }
func (d Ix1) Height() int      { return 1 }
func (d Ix1) Depth() int       { return 1 }
func (d Ix1) Layers() int      { return 0 }
func (d Ix1) NumChannels() int { return channels(d.Channels) }
func (d Ix1) Len() int         { return d.W * d.NumChannels() }
func (d Ix1) String() string   { return fmt.Sprintf("Ix1(%d)", d.W) }

func (d Ix1) axes() (int, int, int, uint32) { return d.W, 0, 0, 0 }

// Ix2 is a 2D shape.
type Ix2 struct {
	W, H     int
	Channels int
}

func (d Ix2) Width() int       { return d.W }
func (d Ix2) Height() int      { return d.H }
func (d Ix2) Depth() int       { return 1 }
func (d Ix2) Layers() int      { return 0 }
func (d Ix2) NumChannels() int { return channels(d.Channels) }
func (d Ix2) Len() int         { return d.W * d.H * d.NumChannels() }
func (d Ix2) String() string   { return fmt.Sprintf("Ix2(%dx%d)", d.W, d.H) }

func (d Ix2) axes() (int, int, int, uint32) { return d.W, d.H, 0, 0 }

// Ix3 is a 3D shape.
type Ix3 struct {
	W, H, D  int
	Channels int
}

func (d Ix3) Width() int       { return d.W }
func (d Ix3) Height() int      { return d.H }
func (d Ix3) Depth() int       { return d.D }
func (d Ix3) Layers() int      { return 0 }
func (d Ix3) NumChannels() int { return channels(d.Channels) }
func (d Ix3) Len() int         { return d.W * d.H * d.D * d.NumChannels() }
func (d Ix3) String() string   { return fmt.Sprintf("Ix3(%dx%dx%d)", d.W, d.H, d.D) }

func (d Ix3) axes() (int, int, int, uint32) { return d.W, d.H, d.D, 0 }

// Ix1Layered is a stack of 1D layers.
type Ix1Layered struct {
	W        int
	L        int
	Channels int
}

func (d Ix1Layered) Width() int       { return d.W }
func (d Ix1Layered) Height() int      { return 1 }
func (d Ix1Layered) Depth() int       { return d.L }
func (d Ix1Layered) Layers() int      { return d.L }
func (d Ix1Layered) NumChannels() int { return channels(d.Channels) }
func (d Ix1Layered) Len() int         { return d.W * d.L * d.NumChannels() }
func (d Ix1Layered) String() string   { return fmt.Sprintf("Ix1Layered(%d, layers=%d)", d.W, d.L) }

func (d Ix1Layered) axes() (int, int, int, uint32) { return d.W, 0, d.L, driver.ArrayLayered }

// Ix2Layered is a stack of 2D layers.
type Ix2Layered struct {
	W, H     int
	L        int
	Channels int
}

func (d Ix2Layered) Width() int       { return d.W }
func (d Ix2Layered) Height() int      { return d.H }
func (d Ix2Layered) Depth() int       { return d.L }
func (d Ix2Layered) Layers() int      { return d.L }
func (d Ix2Layered) NumChannels() int { return channels(d.Channels) }
func (d Ix2Layered) Len() int         { return d.W * d.H * d.L * d.NumChannels() }
func (d Ix2Layered) String() string   { return fmt.Sprintf("Ix2Layered(%dx%d, layers=%d)", d.W, d.H, d.L) }

func (d Ix2Layered) axes() (int, int, int, uint32) { return d.W, d.H, d.L, driver.ArrayLayered }
