package grid

import "fmt"

// PadSquare zero-pads g to a square of side max(H, W). The image is centered:
// the top/left pad is (side - H) / 2 and the remainder goes bottom/right.
// The second return value reports whether padding was applied; if not, g is
// returned as is.
func PadSquare(g *Grid) (*Grid, bool) {
	s := g.Shape()
	if s.Square() {
		return g, false
	}
	side := max(s.Height, s.Width)
	padded := Shape{Height: side, Width: side, Channels: s.Channels}
	out := &Grid{shape: padded, Pix: make([]byte, padded.Elements())}

	top := (side - s.Height) / 2
	left := (side - s.Width) / 2
	rowBytes := s.Width * s.ChannelCount()
	for row := 0; row < s.Height; row++ {
		src := g.Offset(row, 0)
		dst := out.Offset(row+top, left)
		copy(out.Pix[dst:dst+rowBytes], g.Pix[src:src+rowBytes])
	}
	return out, true
}

// Unpad reverses PadSquare by cropping g around the same center offset back
// to original's height and width. It is a no-op when original is zero or has
// the same height and width as g. Channels are taken from g.
func Unpad(g *Grid, original Shape) (*Grid, error) {
	s := g.Shape()
	if original.IsZero() || (original.Height == s.Height && original.Width == s.Width) {
		return g, nil
	}
	if original.Height <= 0 || original.Width <= 0 || original.Height > s.Height || original.Width > s.Width {
		return nil, fmt.Errorf("%w: original %dx%d, current %dx%d",
			ErrUnpad, original.Height, original.Width, s.Height, s.Width)
	}
	top := (s.Height - original.Height) / 2
	left := (s.Width - original.Width) / 2
	return Crop(g, top, left, original.Height, original.Width)
}

// Crop copies the height×width window whose top-left pixel is (top, left).
func Crop(g *Grid, top, left, height, width int) (*Grid, error) {
	s := g.Shape()
	if top < 0 || left < 0 || height <= 0 || width <= 0 || top+height > s.Height || left+width > s.Width {
		return nil, fmt.Errorf("%w: crop %dx%d at (%d, %d) from %dx%d",
			ErrUnpad, height, width, top, left, s.Height, s.Width)
	}
	cropped := Shape{Height: height, Width: width, Channels: s.Channels}
	out := &Grid{shape: cropped, Pix: make([]byte, cropped.Elements())}
	rowBytes := width * s.ChannelCount()
	for row := 0; row < height; row++ {
		src := g.Offset(top+row, left)
		dst := out.Offset(row, 0)
		copy(out.Pix[dst:dst+rowBytes], g.Pix[src:src+rowBytes])
	}
	return out, nil
}
