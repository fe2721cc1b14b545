// Package analysis computes the image quality and cipher statistics used
// in reports: MSE, PSNR, SSIM, Shannon entropy, NPCR and UACI.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/TheusHen/chaosimg/chaosimg/grid"
)

const (
	// DataRange is the dynamic range of 8-bit samples.
	DataRange = 255.0

	// SSIMWindow is the side of the square SSIM window.
	SSIMWindow = 7

	ssimK1 = 0.01
	ssimK2 = 0.03
)

var (
	ErrShapeMismatch = errors.New("analysis: grids have different shapes")
	ErrTooSmall      = errors.New("analysis: grid smaller than the SSIM window")
)

func sameShape(a, b *grid.Grid) error {
	if a.Shape() != b.Shape() {
		return fmt.Errorf("%w: %s vs %s", ErrShapeMismatch, a.Shape(), b.Shape())
	}
	return nil
}

// MSE returns the mean squared error over all elements.
func MSE(a, b *grid.Grid) (float64, error) {
	if err := sameShape(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a.Pix {
		d := float64(a.Pix[i]) - float64(b.Pix[i])
		sum += d * d
	}
	return sum / float64(len(a.Pix)), nil
}

// PSNR returns the peak signal-to-noise ratio in dB, +Inf for identical
// grids.
func PSNR(a, b *grid.Grid) (float64, error) {
	mse, err := MSE(a, b)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 10 * math.Log10(DataRange*DataRange/mse), nil
}

// SSIM returns the mean structural similarity over every full 7×7 window,
// averaged over channels. Local statistics use uniform weights and the
// sample covariance.
func SSIM(a, b *grid.Grid) (float64, error) {
	if err := sameShape(a, b); err != nil {
		return 0, err
	}
	s := a.Shape()
	if s.Height < SSIMWindow || s.Width < SSIMWindow {
		return 0, fmt.Errorf("%w: %s", ErrTooSmall, s)
	}
	channels := s.ChannelCount()
	var total float64
	for c := 0; c < channels; c++ {
		total += channelSSIM(a, b, c)
	}
	return total / float64(channels), nil
}

// integral holds summed-area tables for x, y, x², y² and xy of one channel.
type integral struct {
	w                int
	x, y, xx, yy, xy []float64
}

func newIntegral(a, b *grid.Grid, c int) *integral {
	s := a.Shape()
	w := s.Width + 1
	n := (s.Height + 1) * w
	in := &integral{
		w: w,
		x: make([]float64, n), y: make([]float64, n),
		xx: make([]float64, n), yy: make([]float64, n), xy: make([]float64, n),
	}
	ch := s.ChannelCount()
	for row := 0; row < s.Height; row++ {
		for col := 0; col < s.Width; col++ {
			off := (row*s.Width+col)*ch + c
			vx, vy := float64(a.Pix[off]), float64(b.Pix[off])
			i := (row+1)*w + col + 1
			up, left, diag := i-w, i-1, i-w-1
			in.x[i] = vx + in.x[up] + in.x[left] - in.x[diag]
			in.y[i] = vy + in.y[up] + in.y[left] - in.y[diag]
			in.xx[i] = vx*vx + in.xx[up] + in.xx[left] - in.xx[diag]
			in.yy[i] = vy*vy + in.yy[up] + in.yy[left] - in.yy[diag]
			in.xy[i] = vx*vy + in.xy[up] + in.xy[left] - in.xy[diag]
		}
	}
	return in
}

// box sums t over rows [r0, r0+k) and cols [c0, c0+k).
func (in *integral) box(t []float64, r0, c0, k int) float64 {
	r1, c1 := r0+k, c0+k
	return t[r1*in.w+c1] - t[r0*in.w+c1] - t[r1*in.w+c0] + t[r0*in.w+c0]
}

func channelSSIM(a, b *grid.Grid, c int) float64 {
	s := a.Shape()
	in := newIntegral(a, b, c)
	const k = SSIMWindow
	np := float64(k * k)
	covNorm := np / (np - 1)
	c1 := (ssimK1 * DataRange) * (ssimK1 * DataRange)
	c2 := (ssimK2 * DataRange) * (ssimK2 * DataRange)

	var sum float64
	count := 0
	for r := 0; r+k <= s.Height; r++ {
		for col := 0; col+k <= s.Width; col++ {
			ux := in.box(in.x, r, col, k) / np
			uy := in.box(in.y, r, col, k) / np
			vx := covNorm * (in.box(in.xx, r, col, k)/np - ux*ux)
			vy := covNorm * (in.box(in.yy, r, col, k)/np - uy*uy)
			vxy := covNorm * (in.box(in.xy, r, col, k)/np - ux*uy)
			num := (2*ux*uy + c1) * (2*vxy + c2)
			den := (ux*ux + uy*uy + c1) * (vx + vy + c2)
			sum += num / den
			count++
		}
	}
	return sum / float64(count)
}

// Entropy returns the Shannon entropy of the element histogram in bits,
// between 0 and 8.
func Entropy(g *grid.Grid) float64 {
	if g.Len() == 0 {
		return 0
	}
	var hist [256]int
	for _, v := range g.Pix {
		hist[v]++
	}
	n := float64(g.Len())
	entropy := 0.0
	for _, count := range hist {
		if count == 0 {
			continue
		}
		p := float64(count) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// NPCR returns the percentage of elements that differ between a and b.
func NPCR(a, b *grid.Grid) (float64, error) {
	if err := sameShape(a, b); err != nil {
		return 0, err
	}
	diff := 0
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			diff++
		}
	}
	return 100 * float64(diff) / float64(len(a.Pix)), nil
}

// UACI returns the unified average changing intensity in percent.
func UACI(a, b *grid.Grid) (float64, error) {
	if err := sameShape(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a.Pix {
		sum += math.Abs(float64(a.Pix[i]) - float64(b.Pix[i]))
	}
	return 100 * sum / (DataRange * float64(len(a.Pix))), nil
}

// Report bundles the similarity metrics of a processed grid against its
// reference.
type Report struct {
	MSE  float64
	PSNR float64
	// SSIM is NaN when the grid is smaller than the SSIM window.
	SSIM float64
}

// Compare computes a Report.
func Compare(reference, processed *grid.Grid) (Report, error) {
	mse, err := MSE(reference, processed)
	if err != nil {
		return Report{}, err
	}
	r := Report{MSE: mse, PSNR: math.Inf(1), SSIM: math.NaN()}
	if mse > 0 {
		r.PSNR = 10 * math.Log10(DataRange*DataRange/mse)
	}
	if ssim, err := SSIM(reference, processed); err == nil {
		r.SSIM = ssim
	}
	return r, nil
}
