// Package acm implements the Arnold Cat Map, a reversible spatial
// permutation of a square pixel grid.
//
// Each round maps coordinate (x, y), x being the row and y the column, to
//
//	x' = (x + b·y) mod N
//	y' = (a·x + (ab+1)·y) mod N
//
// The matrix [[1, b], [a, ab+1]] has determinant 1, so the map is a bijection
// over the N×N lattice for every integer a and b. No parameter quality check
// is made: b = 0 and other short-period choices are accepted.
package acm

import (
	"fmt"

	"github.com/TheusHen/chaosimg/chaosimg/grid"
)

// matrix holds the coefficients of one round, reduced modulo n.
type matrix struct {
	c00, c01, c10, c11 int64
}

func mod(v, n int64) int64 {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

func forwardMatrix(a, b, n int64) matrix {
	a, b = mod(a, n), mod(b, n)
	return matrix{c00: 1, c01: b, c10: a, c11: mod(a*b+1, n)}
}

// inverseMatrix is {ab+1, -b, -a, 1}.
func inverseMatrix(a, b, n int64) matrix {
	a, b = mod(a, n), mod(b, n)
	return matrix{c00: mod(a*b+1, n), c01: mod(-b, n), c10: mod(-a, n), c11: 1}
}

// destinations returns, for every source pixel index row*n+col, the pixel
// index it lands on after iterations rounds of m.
func destinations(n int, m matrix, iterations int) []int {
	size := n * n
	xs := make([]int64, size)
	ys := make([]int64, size)
	for i := 0; i < size; i++ {
		xs[i] = int64(i / n)
		ys[i] = int64(i % n)
	}
	nn := int64(n)
	if n > 1 {
		for it := 0; it < iterations; it++ {
			for i := 0; i < size; i++ {
				x, y := xs[i], ys[i]
				xs[i] = (m.c00*x + m.c01*y) % nn
				ys[i] = (m.c10*x + m.c11*y) % nn
			}
		}
	}
	dst := make([]int, size)
	for i := 0; i < size; i++ {
		dst[i] = int(xs[i])*n + int(ys[i])
	}
	return dst
}

func checkSquare(g *grid.Grid) error {
	s := g.Shape()
	if s.Ndim() != 2 && s.Ndim() != 3 {
		return fmt.Errorf("%w: %d dimensions", grid.ErrShape, s.Ndim())
	}
	if !s.Square() {
		return fmt.Errorf("%w: cat map needs a square grid, got %dx%d", grid.ErrShape, s.Height, s.Width)
	}
	return nil
}

// scatter writes every pixel of g to its destination index.
func scatter(g *grid.Grid, dst []int) *grid.Grid {
	out := g.Like()
	ch := g.Shape().ChannelCount()
	for src, d := range dst {
		copy(out.Pix[d*ch:(d+1)*ch], g.Pix[src*ch:(src+1)*ch])
	}
	return out
}

// Forward permutes g with iterations rounds of the cat map. Channels move
// together. g is not modified.
func Forward(g *grid.Grid, iterations int, a, b int64) (*grid.Grid, error) {
	if err := checkSquare(g); err != nil {
		return nil, err
	}
	if iterations < 0 {
		return nil, fmt.Errorf("acm: negative iteration count %d", iterations)
	}
	n := g.Shape().Height
	return scatter(g, destinations(n, forwardMatrix(a, b, int64(n)), iterations)), nil
}

// Inverse undoes Forward with the same parameters.
func Inverse(g *grid.Grid, iterations int, a, b int64) (*grid.Grid, error) {
	if err := checkSquare(g); err != nil {
		return nil, err
	}
	if iterations < 0 {
		return nil, fmt.Errorf("acm: negative iteration count %d", iterations)
	}
	n := g.Shape().Height
	return scatter(g, destinations(n, inverseMatrix(a, b, int64(n)), iterations)), nil
}

// Period returns the smallest k > 0 such that k rounds of the map with
// parameters (a, b) are the identity on an n×n lattice.
func Period(n int, a, b int64) int {
	if n <= 1 {
		return 1
	}
	nn := int64(n)
	m := forwardMatrix(a, b, nn)
	p := m
	for k := 1; ; k++ {
		if p.c00 == 1%nn && p.c01 == 0 && p.c10 == 0 && p.c11 == 1%nn {
			return k
		}
		p = matrix{
			c00: (p.c00*m.c00 + p.c01*m.c10) % nn,
			c01: (p.c00*m.c01 + p.c01*m.c11) % nn,
			c10: (p.c10*m.c00 + p.c11*m.c10) % nn,
			c11: (p.c10*m.c01 + p.c11*m.c11) % nn,
		}
	}
}
