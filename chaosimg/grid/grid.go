// Package grid holds the pixel grid shared by every stage.
//
// A grid is a row-major byte buffer with channels innermost. Its Shape is
// either 2-D (Height×Width, Channels == 0, one implicit channel) or 3-D
// (Height×Width×Channels, Channels >= 1). The distinction is kept through
// the pipeline so a decrypted grid has the same dimensionality as its
// input. Element counts are bounded by MaxElements.
package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxElements bounds Height×Width×Channels of any grid.
const MaxElements = 1 << 28

var (
	ErrShape = errors.New("grid: invalid shape")
	ErrUnpad = errors.New("grid: unpad offset out of bounds")
)

// Shape describes a pixel grid. Channels == 0 denotes a 2-D single-channel
// grid without a channel axis; Channels >= 1 denotes a 3-D grid.
type Shape struct {
	Height   int
	Width    int
	Channels int
}

// ShapeOf builds a Shape from a dimension list of length 2 or 3.
func ShapeOf(dims []int) (Shape, error) {
	var s Shape
	switch len(dims) {
	case 2:
		s = Shape{Height: dims[0], Width: dims[1]}
	case 3:
		s = Shape{Height: dims[0], Width: dims[1], Channels: dims[2]}
	default:
		return Shape{}, fmt.Errorf("%w: %d dimensions, want 2 or 3", ErrShape, len(dims))
	}
	if err := s.Validate(); err != nil {
		return Shape{}, err
	}
	return s, nil
}

// Validate reports whether s can back a grid: positive dimensions and at
// most MaxElements elements.
func (s Shape) Validate() error {
	if s.Height <= 0 || s.Width <= 0 || s.Channels < 0 {
		return fmt.Errorf("%w: %s", ErrShape, s)
	}
	const limit = int64(MaxElements)
	h, w, c := int64(s.Height), int64(s.Width), int64(s.ChannelCount())
	if h > limit || w > limit || c > limit || h*w > limit/c {
		return fmt.Errorf("%w: %s exceeds %d elements", ErrShape, s, MaxElements)
	}
	return nil
}

// Ndim returns 2 for single-channel grids without a channel axis, else 3.
func (s Shape) Ndim() int {
	if s.Channels == 0 {
		return 2
	}
	return 3
}

// ChannelCount returns the number of bytes per pixel.
func (s Shape) ChannelCount() int {
	if s.Channels == 0 {
		return 1
	}
	return s.Channels
}

// Elements returns the total scalar element count (rows × cols × channels).
// It is only meaningful for shapes that pass Validate.
func (s Shape) Elements() int { return s.Height * s.Width * s.ChannelCount() }

func (s Shape) Square() bool { return s.Height == s.Width }

func (s Shape) IsZero() bool { return s == Shape{} }

// Dims returns the dimension list, numpy style.
func (s Shape) Dims() []int {
	if s.Channels == 0 {
		return []int{s.Height, s.Width}
	}
	return []int{s.Height, s.Width, s.Channels}
}

func (s Shape) String() string {
	dims := s.Dims()
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// MarshalJSON encodes the shape as a dimension list, e.g. [100,60,3].
func (s Shape) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Dims())
}

func (s *Shape) UnmarshalJSON(b []byte) error {
	var dims []int
	if err := json.Unmarshal(b, &dims); err != nil {
		return err
	}
	parsed, err := ShapeOf(dims)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Grid is a pixel grid stored row-major with channels innermost.
// The shape never changes after construction.
type Grid struct {
	shape Shape
	Pix   []byte
}

// New allocates a zeroed grid.
func New(s Shape) (*Grid, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Grid{shape: s, Pix: make([]byte, s.Elements())}, nil
}

// FromBytes wraps pix without copying. len(pix) must equal s.Elements().
func FromBytes(s Shape, pix []byte) (*Grid, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if len(pix) != s.Elements() {
		return nil, fmt.Errorf("%w: %d bytes for shape %s (want %d)", ErrShape, len(pix), s, s.Elements())
	}
	return &Grid{shape: s, Pix: pix}, nil
}

// FromValues coerces integer samples into a byte grid. Values outside 0-255
// keep only their low 8 bits; the number of such values is returned so the
// caller can surface a warning.
func FromValues(s Shape, values []int) (*Grid, int, error) {
	if err := s.Validate(); err != nil {
		return nil, 0, err
	}
	if len(values) != s.Elements() {
		return nil, 0, fmt.Errorf("%w: %d values for shape %s (want %d)", ErrShape, len(values), s, s.Elements())
	}
	pix := make([]byte, len(values))
	truncated := 0
	for i, v := range values {
		if v < 0 || v > 0xFF {
			truncated++
		}
		pix[i] = byte(v)
	}
	return &Grid{shape: s, Pix: pix}, truncated, nil
}

func (g *Grid) Shape() Shape { return g.shape }

// Len returns the scalar element count.
func (g *Grid) Len() int { return len(g.Pix) }

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	pix := make([]byte, len(g.Pix))
	copy(pix, g.Pix)
	return &Grid{shape: g.shape, Pix: pix}
}

// Like returns a zeroed grid with the same shape.
func (g *Grid) Like() *Grid {
	return &Grid{shape: g.shape, Pix: make([]byte, len(g.Pix))}
}

// Offset returns the index of the first channel of pixel (row, col).
func (g *Grid) Offset(row, col int) int {
	return (row*g.shape.Width + col) * g.shape.ChannelCount()
}

// At returns the channels of pixel (row, col). The slice aliases Pix.
func (g *Grid) At(row, col int) []byte {
	off := g.Offset(row, col)
	return g.Pix[off : off+g.shape.ChannelCount()]
}

// Equal reports whether both grids have the same shape and contents.
func (g *Grid) Equal(o *Grid) bool {
	if g == nil || o == nil {
		return g == o
	}
	if g.shape != o.shape || len(g.Pix) != len(o.Pix) {
		return false
	}
	for i := range g.Pix {
		if g.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}
