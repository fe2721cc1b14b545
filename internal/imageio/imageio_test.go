package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/TheusHen/chaosimg/chaosimg/grid"
)

func sample(t *testing.T, s grid.Shape) *grid.Grid {
	t.Helper()
	g, err := grid.New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := range g.Pix {
		g.Pix[i] = byte(i*13 + i/5)
	}
	return g
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		format    Format
		shape     grid.Shape
		grayscale bool
	}{
		{PNG, grid.Shape{Height: 9, Width: 14, Channels: 3}, false},
		{BMP, grid.Shape{Height: 9, Width: 14, Channels: 3}, false},
		{PNG, grid.Shape{Height: 5, Width: 7}, true},
		{BMP, grid.Shape{Height: 5, Width: 7}, true},
	} {
		g := sample(t, tc.shape)
		var buf bytes.Buffer
		if err := Encode(&buf, g, tc.format); err != nil {
			t.Fatalf("Encode(%s): %v", tc.format, err)
		}
		back, info, err := Decode(&buf, tc.grayscale)
		if err != nil {
			t.Fatalf("Decode(%s): %v", tc.format, err)
		}
		if info.Format != string(tc.format) || info.Truncated != 0 {
			t.Fatalf("info = %+v, want format %q", info, tc.format)
		}
		if !back.Equal(g) {
			t.Fatalf("%s %s: round trip changed the pixels", tc.format, tc.shape)
		}
	}
}

func TestTransparencyBlendsOntoWhite(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 0})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 0, B: 0, A: 128})
	img.SetNRGBA(2, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	g, err := FromImage(img, false)
	if err != nil {
		t.Fatalf("FromImage: %v", err)
	}
	want := []byte{255, 255, 255, 127, 127, 127, 200, 100, 50}
	if !bytes.Equal(g.Pix, want) {
		t.Fatalf("Pix = %v, want %v", g.Pix, want)
	}
}

func TestGrayscaleLuma(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	g, err := FromImage(img, true)
	if err != nil {
		t.Fatalf("FromImage: %v", err)
	}
	if g.Shape().Ndim() != 2 {
		t.Fatalf("grayscale grid should be 2-D, got %s", g.Shape())
	}
	if g.Pix[0] != 76 || g.Pix[1] != 255 {
		t.Fatalf("luma = %v", g.Pix)
	}
}

func TestDecodeSixteenBitKeepsLowByte(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 3, 1))
	img.SetGray16(0, 0, color.Gray16{Y: 0x0100})
	img.SetGray16(1, 0, color.Gray16{Y: 0x00FF})
	img.SetGray16(2, 0, color.Gray16{Y: 0x1234})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	raw := buf.Bytes()

	g, info, err := Decode(bytes.NewReader(raw), true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Truncated != 2 {
		t.Fatalf("Truncated = %d, want 2", info.Truncated)
	}
	if want := []byte{0x00, 0xFF, 0x34}; !bytes.Equal(g.Pix, want) {
		t.Fatalf("Pix = %v, want %v", g.Pix, want)
	}

	g, info, err = Decode(bytes.NewReader(raw), false)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if info.Truncated != 6 || g.Shape().ChannelCount() != 3 {
		t.Fatalf("color decode: %+v %s", info, g.Shape())
	}
	if want := []byte{0, 0, 0, 0xFF, 0xFF, 0xFF, 0x34, 0x34, 0x34}; !bytes.Equal(g.Pix, want) {
		t.Fatalf("Pix = %v, want %v", g.Pix, want)
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	g := sample(t, grid.Shape{Height: 6, Width: 6, Channels: 3})
	for _, name := range []string{"out.png", "out.bmp"} {
		path := filepath.Join(dir, name)
		if err := Save(path, g); err != nil {
			t.Fatalf("Save: %v", err)
		}
		back, _, err := Load(path, false)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !back.Equal(g) {
			t.Fatalf("%s: round trip changed the pixels", name)
		}
	}
	if FormatFor("x.BMP") != BMP || FormatFor("x.jpg") != PNG {
		t.Fatalf("unexpected FormatFor result")
	}
}

func TestToImageChannels(t *testing.T) {
	g := sample(t, grid.Shape{Height: 2, Width: 2, Channels: 2})
	if _, err := ToImage(g); !errors.Is(err, ErrChannels) {
		t.Fatalf("expected ErrChannels, got %v", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, sample(t, grid.Shape{Height: 2, Width: 2}), Format("tiff")); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
	rgba, err := ToImage(sample(t, grid.Shape{Height: 2, Width: 2, Channels: 4}))
	if err != nil {
		t.Fatalf("ToImage: %v", err)
	}
	if _, ok := rgba.(*image.NRGBA); !ok {
		t.Fatalf("expected NRGBA for four channels, got %T", rgba)
	}
}

func TestResize(t *testing.T) {
	g := sample(t, grid.Shape{Height: 20, Width: 30, Channels: 3})
	out, err := Resize(g, 15, 10)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if s := out.Shape(); s != (grid.Shape{Height: 10, Width: 15, Channels: 3}) {
		t.Fatalf("unexpected shape %s", s)
	}
	same, _ := Resize(g, 30, 20)
	if same != g {
		t.Fatalf("resizing to the same size should be a no-op")
	}
	gray, err := Resize(sample(t, grid.Shape{Height: 8, Width: 8}), 4, 4)
	if err != nil || gray.Shape() != (grid.Shape{Height: 4, Width: 4}) {
		t.Fatalf("grayscale resize: %v %v", gray, err)
	}
	if _, err := Resize(g, 0, 4); !errors.Is(err, grid.ErrShape) {
		t.Fatalf("expected ErrShape, got %v", err)
	}
}

func TestFallback(t *testing.T) {
	g := Fallback()
	if g.Shape() != (grid.Shape{Height: 256, Width: 256, Channels: 3}) {
		t.Fatalf("unexpected shape %s", g.Shape())
	}
	px := g.At(17, 200)
	if px[0] != 200 || px[1] != 200 || px[2] != 0 {
		t.Fatalf("pixel (17, 200) = %v", px)
	}
}
