package dsp

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

func TestBiquadMatchesTransposedSection(t *testing.T) {
	c := design.LowShelf(200, 9, 0.707, 48000)
	df1 := NewBiquad(c)
	want := biquad.NewSection(c).ImpulseResponse(512)

	for i, w := range want {
		x := 0.0
		if i == 0 {
			x = 1
		}
		if got := df1.Process(x); math.Abs(got-w) > 1e-12 {
			t.Fatalf("sample %d: got %g want %g", i, got, w)
		}
	}
}

func TestBiquadStateOrdering(t *testing.T) {
	b := NewBiquad(biquad.Coefficients{B0: 1, B1: 2, B2: 3, A1: 0.5, A2: 0.25})
	// y0 = 1
	// y1 = 1*0 + 2*1 - 0.5*1 = 1.5
	// y2 = 3*1 - 0.5*1.5 - 0.25*1 = 2
	want := []float64{1, 1.5, 2}
	for i, w := range want {
		x := 0.0
		if i == 0 {
			x = 1
		}
		if got := b.Process(x); got != w {
			t.Fatalf("sample %d: got %g want %g", i, got, w)
		}
	}
}

func TestBiquadResetClearsState(t *testing.T) {
	b := NewHighShelf(2000, -6, 0.707, 48000)
	for i := 0; i < 64; i++ {
		b.Process(math.Sin(float64(i)))
	}
	b.Reset()
	if y := b.Process(0); y != 0 {
		t.Fatalf("expected silence after reset, got %g", y)
	}
}

func TestSetCoefficientsKeepsState(t *testing.T) {
	b := NewBiquad(biquad.Coefficients{B0: 1})
	b.Process(1)
	b.SetCoefficients(biquad.Coefficients{B0: 0, B1: 1})
	if y := b.Process(0); y != 1 {
		t.Fatalf("state lost across SetCoefficients: got %g", y)
	}
	c := b.Coefficients()
	if c.B1 != 1 || c.B0 != 0 {
		t.Fatalf("coefficients round trip mismatch: %+v", c)
	}
}

func TestDelayLineRead(t *testing.T) {
	d := NewDelayLine(4)
	for i := 1; i <= 6; i++ {
		d.Write(float64(i))
	}
	// Buffer holds 3,4,5,6 with 6 newest.
	for delay, want := range map[int]float64{1: 6, 2: 5, 3: 4, 4: 3} {
		if got := d.Read(delay); got != want {
			t.Fatalf("Read(%d) = %g, want %g", delay, got, want)
		}
	}
}

func TestDelayLineDotMatchesRead(t *testing.T) {
	const size = 37
	d := NewDelayLine(size)
	taps := make([]float64, size)
	for k := range taps {
		taps[k] = math.Cos(0.3 * float64(k))
	}
	for n := 0; n < 3*size+5; n++ {
		d.Write(math.Sin(0.17*float64(n)) + 0.01*float64(n))
		var want float64
		for k := range taps {
			want += d.Read(k+1) * taps[k]
		}
		if got := d.Dot(taps); math.Abs(got-want) > 1e-12 {
			t.Fatalf("n=%d: Dot = %g, want %g", n, got, want)
		}
	}
}

func TestDelayLineDotShortTaps(t *testing.T) {
	d := NewDelayLine(8)
	for i := 1; i <= 10; i++ {
		d.Write(float64(i))
	}
	if got := d.Dot([]float64{1, 10}); got != 10+90 {
		t.Fatalf("Dot = %g, want 100", got)
	}
}
