// Package imageio converts between image files and pixel grids.
//
// Decoding accepts PNG, JPEG, GIF and BMP. Color images become H×W×3 grids;
// transparent pixels are blended onto white. Grayscale decoding yields a
// 2-D H×W grid using ITU-R 601 luma. 16-bit images keep only the low byte
// of each sample; Info reports how many samples that changed.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/TheusHen/chaosimg/chaosimg/grid"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

var (
	ErrFormat   = errors.New("imageio: unsupported output format")
	ErrChannels = errors.New("imageio: unsupported channel count")
)

type Format string

const (
	PNG Format = "png"
	BMP Format = "bmp"
)

// FormatFor picks the output format from a file extension, defaulting to
// PNG.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".bmp") {
		return BMP
	}
	return PNG
}

// Info describes a decoded image.
type Info struct {
	Format string
	// Truncated counts samples above 255 that were cut to their low byte.
	Truncated int
}

// Decode reads an image in any registered format.
func Decode(r io.Reader, grayscale bool) (*grid.Grid, Info, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, Info{}, fmt.Errorf("imageio: decode: %w", err)
	}
	info := Info{Format: format}
	var g *grid.Grid
	if deep(img) {
		g, info.Truncated, err = fromDeep(img, grayscale)
	} else {
		g, err = FromImage(img, grayscale)
	}
	if err != nil {
		return nil, Info{}, err
	}
	return g, info, nil
}

// Load decodes the image file at path.
func Load(path string, grayscale bool) (*grid.Grid, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, err
	}
	defer f.Close()
	return Decode(f, grayscale)
}

func deep(img image.Image) bool {
	switch img.ColorModel() {
	case color.Gray16Model, color.RGBA64Model, color.NRGBA64Model:
		return true
	}
	return false
}

// fromDeep reads 16-bit samples and coerces them with grid.FromValues.
func fromDeep(img image.Image, grayscale bool) (*grid.Grid, int, error) {
	b := img.Bounds()
	s := grid.Shape{Height: b.Dy(), Width: b.Dx(), Channels: 3}
	if grayscale {
		s.Channels = 0
	}
	if err := s.Validate(); err != nil {
		return nil, 0, err
	}
	values := make([]int, 0, s.Elements())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, gr, bl := onWhite16(color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64))
			if grayscale {
				values = append(values, int((r*299+gr*587+bl*114+500)/1000))
				continue
			}
			values = append(values, int(r), int(gr), int(bl))
		}
	}
	return grid.FromValues(s, values)
}

func onWhite16(c color.NRGBA64) (r, g, b uint32) {
	a := uint32(c.A)
	blend := func(v uint16) uint32 {
		return (uint32(v)*a + 0xFFFF*(0xFFFF-a) + 0x7FFF) / 0xFFFF
	}
	return blend(c.R), blend(c.G), blend(c.B)
}

// FromImage copies img into a grid.
func FromImage(img image.Image, grayscale bool) (*grid.Grid, error) {
	b := img.Bounds()
	s := grid.Shape{Height: b.Dy(), Width: b.Dx(), Channels: 3}
	if grayscale {
		s.Channels = 0
	}
	g, err := grid.New(s)
	if err != nil {
		return nil, err
	}
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, gr, bl := onWhite(color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA))
			if grayscale {
				g.Pix[i] = luma(r, gr, bl)
				i++
				continue
			}
			g.Pix[i], g.Pix[i+1], g.Pix[i+2] = r, gr, bl
			i += 3
		}
	}
	return g, nil
}

// onWhite composites c over an opaque white background.
func onWhite(c color.NRGBA) (r, g, b uint8) {
	if c.A == 0xFF {
		return c.R, c.G, c.B
	}
	blend := func(v uint8) uint8 {
		a := uint32(c.A)
		return uint8((uint32(v)*a + 0xFF*(0xFF-a) + 127) / 0xFF)
	}
	return blend(c.R), blend(c.G), blend(c.B)
}

func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*299 + uint32(g)*587 + uint32(b)*114 + 500) / 1000)
}

// ToImage wraps g as an image. Grids with 0 or 1 channels become Gray, 3
// channels RGBA with opaque alpha, 4 channels NRGBA.
func ToImage(g *grid.Grid) (image.Image, error) {
	s := g.Shape()
	rect := image.Rect(0, 0, s.Width, s.Height)
	switch s.ChannelCount() {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, g.Pix)
		return img, nil
	case 3:
		img := image.NewRGBA(rect)
		for i, j := 0, 0; i < len(g.Pix); i, j = i+3, j+4 {
			img.Pix[j], img.Pix[j+1], img.Pix[j+2], img.Pix[j+3] = g.Pix[i], g.Pix[i+1], g.Pix[i+2], 0xFF
		}
		return img, nil
	case 4:
		img := image.NewNRGBA(rect)
		copy(img.Pix, g.Pix)
		return img, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrChannels, s.ChannelCount())
	}
}

// Encode writes g in the given format.
func Encode(w io.Writer, g *grid.Grid, f Format) error {
	img, err := ToImage(g)
	if err != nil {
		return err
	}
	switch f {
	case PNG:
		return png.Encode(w, img)
	case BMP:
		return bmp.Encode(w, img)
	default:
		return fmt.Errorf("%w: %q", ErrFormat, f)
	}
}

// Save writes g to path, choosing the format from the extension.
func Save(path string, g *grid.Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, g, FormatFor(path)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Resize scales g to width×height with Catmull-Rom resampling.
func Resize(g *grid.Grid, width, height int) (*grid.Grid, error) {
	s := g.Shape()
	if width == s.Width && height == s.Height {
		return g, nil
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: resize to %dx%d", grid.ErrShape, width, height)
	}
	src, err := ToImage(g)
	if err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, width, height)
	var dst draw.Image
	if s.ChannelCount() == 1 {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewNRGBA(rect)
	}
	draw.CatmullRom.Scale(dst, rect, src, src.Bounds(), draw.Src, nil)

	out, err := grid.New(grid.Shape{Height: height, Width: width, Channels: s.Channels})
	if err != nil {
		return nil, err
	}
	switch d := dst.(type) {
	case *image.Gray:
		copy(out.Pix, d.Pix)
	case *image.NRGBA:
		ch := s.ChannelCount()
		for i, j := 0, 0; i < len(out.Pix); i, j = i+ch, j+4 {
			copy(out.Pix[i:i+ch], d.Pix[j:j+ch])
		}
	}
	return out, nil
}

// Fallback returns the 256×256×3 procedural test image: red and green ramp
// from 0 to 255 across the columns, blue is zero.
func Fallback() *grid.Grid {
	const side = 256
	g, _ := grid.New(grid.Shape{Height: side, Width: side, Channels: 3})
	for row := 0; row < side; row++ {
		for col := 0; col < side; col++ {
			px := g.At(row, col)
			px[0], px[1] = byte(col), byte(col)
		}
	}
	return g
}
