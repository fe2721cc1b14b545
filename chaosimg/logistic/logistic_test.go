package logistic

import (
	"bytes"
	"errors"
	"testing"

	"github.com/TheusHen/chaosimg/chaosimg/grid"
	"pgregory.net/rapid"
)

const (
	testX0 = 0.3141592653589793
	testR  = 3.9999999
)

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(testX0, testR, 1024)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate(testX0, testR, 1024)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(a) != 1024 || !bytes.Equal(a, b) {
		t.Fatalf("keystream is not deterministic")
	}

	prefix, _ := Generate(testX0, testR, 16)
	if !bytes.Equal(prefix, a[:16]) {
		t.Fatalf("shorter keystream should be a prefix of the longer one")
	}
}

func TestGenerateEmpty(t *testing.T) {
	ks, err := Generate(testX0, testR, 0)
	if err != nil || len(ks) != 0 {
		t.Fatalf("Generate(0) = %v, %v", ks, err)
	}
	if _, err := Generate(testX0, testR, -1); err == nil {
		t.Fatalf("expected error for negative length")
	}
}

func TestKeySensitivity(t *testing.T) {
	const n = 4096
	a, _ := Generate(testX0, testR, n)
	b, err := Generate(testX0+1e-9, testR, n)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	diff := 0
	for i := range a {
		if a[i] != b[i] {
			diff++
		}
	}
	if float64(diff)/n < 0.9 {
		t.Fatalf("only %d of %d bytes differ after a 1e-9 change in x0", diff, n)
	}
}

func TestFixedPointKeystream(t *testing.T) {
	// r=4, x0=0.5 reaches 1 and then sticks at 0
	ks, err := Generate(0.5, 4.0, 64)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i, v := range ks {
		if v != 0 {
			t.Fatalf("ks[%d] = %d, want 0", i, v)
		}
	}
}

func TestDivergenceIsUnstable(t *testing.T) {
	if _, err := Generate(0.5, 5.0, 16); !errors.Is(err, ErrUnstable) {
		t.Fatalf("expected ErrUnstable, got %v", err)
	}
	g, _ := grid.New(grid.Shape{Height: 4, Width: 4})
	if _, err := Apply(g, 0.5, 5.0); !errors.Is(err, ErrUnstable) {
		t.Fatalf("Apply: expected ErrUnstable, got %v", err)
	}
}

func TestXORSizeMismatch(t *testing.T) {
	g, _ := grid.New(grid.Shape{Height: 3, Width: 3, Channels: 3})
	if _, err := XOR(g, make(Keystream, 26)); !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
}

func TestCheckParameters(t *testing.T) {
	if err := CheckParameters(testX0, testR); err != nil {
		t.Fatalf("CheckParameters: %v", err)
	}
	cases := []struct{ x0, r float64 }{
		{testX0, 3.0},
		{testX0, 4.2},
		{0, testR},
		{1, testR},
		{1.5, 2.0},
	}
	for _, c := range cases {
		if err := CheckParameters(c.x0, c.r); !errors.Is(err, ErrWeakParameters) {
			t.Fatalf("CheckParameters(%v, %v): expected ErrWeakParameters, got %v", c.x0, c.r, err)
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp(testX0) != testX0 {
		t.Fatalf("in-range x0 should be unchanged")
	}
	if Clamp(-3) != 1e-6 || Clamp(0) != 1e-6 {
		t.Fatalf("low values should clamp to 1e-6")
	}
	if Clamp(1) != 1.0-1e-6 || Clamp(42) != 1.0-1e-6 {
		t.Fatalf("high values should clamp to 1-1e-6")
	}
}

func TestApplyClampsOutOfRangeX0(t *testing.T) {
	g, _ := grid.New(grid.Shape{Height: 8, Width: 8, Channels: 3})
	a, err := Apply(g, 7, testR)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	b, err := Apply(g, 1.0-1e-6, testR)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !a.Equal(b) {
		t.Fatalf("x0=7 should behave like the clamped value")
	}
}

func TestApplySelfInverse(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := rapid.IntRange(1, 24).Draw(t, "h")
		w := rapid.IntRange(1, 24).Draw(t, "w")
		c := rapid.IntRange(0, 4).Draw(t, "c")
		x0 := rapid.Float64Range(0.01, 0.99).Draw(t, "x0")
		r := rapid.Float64Range(MinChaoticR, MaxChaoticR).Draw(t, "r")

		s := grid.Shape{Height: h, Width: w, Channels: c}
		pix := rapid.SliceOfN(rapid.Byte(), s.Elements(), s.Elements()).Draw(t, "pix")
		g, err := grid.FromBytes(s, pix)
		if err != nil {
			t.Fatalf("FromBytes: %v", err)
		}
		masked, err := Apply(g, x0, r)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		restored, err := Apply(masked, x0, r)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if !restored.Equal(g) {
			t.Fatalf("Apply is not self-inverse for x0=%v r=%v", x0, r)
		}
	})
}

func BenchmarkGenerate(b *testing.B) {
	const n = 256 * 256 * 3
	b.SetBytes(n)
	for i := 0; i < b.N; i++ {
		_, _ = Generate(testX0, testR, n)
	}
}
