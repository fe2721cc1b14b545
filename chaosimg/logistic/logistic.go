// Package logistic implements a keystream cipher driven by the logistic map
// x ← r·x·(1−x). The keystream is XORed into the grid, so applying the
// cipher twice with the same parameters restores the input.
package logistic

import (
	"errors"
	"fmt"
	"math"

	"github.com/TheusHen/chaosimg/chaosimg/grid"
)

const (
	// WarmUp is the number of discarded iterations before capture starts.
	WarmUp = 100

	// Scale maps an iterate in [0, 1) onto a byte.
	Scale = 255.999999

	// MinChaoticR and MaxChaoticR bound the usual chaotic regime of r.
	MinChaoticR = 3.57
	MaxChaoticR = 4.0

	clampLow  = 1e-6
	clampHigh = 1.0 - 1e-6

	// iterates beyond this magnitude cannot be converted to a byte
	maxMagnitude = 1 << 62
)

var (
	ErrSizeMismatch   = errors.New("logistic: keystream and grid sizes differ")
	ErrWeakParameters = errors.New("logistic: parameters outside the chaotic regime")
	ErrUnstable       = errors.New("logistic: map diverged")
)

// Keystream is a sequence of mask bytes, one per grid element.
type Keystream []byte

// CheckParameters reports whether x0 and r are in the range where the map
// behaves chaotically. A non-nil result is advisory: Apply still runs.
func CheckParameters(x0, r float64) error {
	var errs []error
	if !(r >= MinChaoticR && r <= MaxChaoticR) {
		errs = append(errs, fmt.Errorf("%w: r=%v not in [%v, %v]", ErrWeakParameters, r, MinChaoticR, MaxChaoticR))
	}
	if !(x0 > 0 && x0 < 1) {
		errs = append(errs, fmt.Errorf("%w: x0=%v not in (0, 1), clamped to %v", ErrWeakParameters, x0, Clamp(x0)))
	}
	return errors.Join(errs...)
}

// Clamp returns x0 unchanged when it lies in (0, 1) and otherwise clips it
// to [1e-6, 1-1e-6].
func Clamp(x0 float64) float64 {
	if x0 > 0 && x0 < 1 {
		return x0
	}
	if math.IsNaN(x0) || x0 <= 0 {
		return clampLow
	}
	return clampHigh
}

// Generate runs WarmUp iterations from x0 and then captures length more.
// Each captured iterate x becomes the byte trunc(x·Scale) mod 256.
func Generate(x0, r float64, length int) (Keystream, error) {
	if length < 0 {
		return nil, fmt.Errorf("logistic: negative keystream length %d", length)
	}
	x := x0
	for i := 0; i < WarmUp; i++ {
		x = r * x * (1.0 - x)
	}
	ks := make(Keystream, length)
	for i := range ks {
		x = r * x * (1.0 - x)
		v := x * Scale
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= maxMagnitude {
			return nil, fmt.Errorf("%w: r=%v x0=%v at step %d", ErrUnstable, r, x0, WarmUp+i+1)
		}
		ks[i] = byte(int64(v))
	}
	return ks, nil
}

// XOR returns g with ks XORed into its elements in flattened order.
func XOR(g *grid.Grid, ks Keystream) (*grid.Grid, error) {
	if len(ks) != g.Len() {
		return nil, fmt.Errorf("%w: grid has %d elements, keystream %d", ErrSizeMismatch, g.Len(), len(ks))
	}
	out := g.Like()
	for i, v := range g.Pix {
		out.Pix[i] = v ^ ks[i]
	}
	return out, nil
}

// Apply masks g with the keystream for (Clamp(x0), r). It is its own
// inverse. Out-of-range parameters are not rejected; see CheckParameters.
func Apply(g *grid.Grid, x0, r float64) (*grid.Grid, error) {
	ks, err := Generate(Clamp(x0), r, g.Len())
	if err != nil {
		return nil, err
	}
	return XOR(g, ks)
}
