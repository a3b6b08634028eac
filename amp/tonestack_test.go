package amp

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-dsp/dsp/conv"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

func TestTonestackFlatAtCenter(t *testing.T) {
	ts := NewTonestack(testSampleRate, NewDefaultParams())
	for _, f := range []float64{50, 200, 1000, 2000, 10000} {
		if db := ts.MagnitudeDB(f); math.Abs(db) > 1e-9 {
			t.Fatalf("%g Hz: %g dB, want flat", f, db)
		}
	}
	for i, x := range impulse(16) {
		if y := ts.ProcessSample(x); math.Abs(y-x) > 1e-12 {
			t.Fatalf("sample %d: got %g want %g", i, y, x)
		}
	}
}

func TestTonestackShelfExtremes(t *testing.T) {
	ts := NewTonestack(testSampleRate, NewDefaultParams())
	ts.SetBass(1)
	ts.SetTreble(0)
	if db := ts.MagnitudeDB(20); math.Abs(db-12) > 0.5 {
		t.Fatalf("bass boost at 20 Hz = %g dB, want about +12", db)
	}
	if db := ts.MagnitudeDB(20000); math.Abs(db+12) > 1 {
		t.Fatalf("treble cut at 20 kHz = %g dB, want about -12", db)
	}
	if db := ts.MagnitudeDB(632); math.Abs(db) > 3 {
		t.Fatalf("between shelves = %g dB, want near 0", db)
	}
}

func TestTonestackImpulseMatchesCascade(t *testing.T) {
	p := NewDefaultParams()
	ts := NewTonestack(testSampleRate, p)
	ts.SetBass(0.8)
	ts.SetTreble(0.3)

	low := biquad.NewSection(design.LowShelf(p.BassHz, (2*0.8-1)*p.ShelfRangeDB, p.ShelfQ, testSampleRate))
	high := biquad.NewSection(design.HighShelf(p.TrebleHz, (2*0.3-1)*p.ShelfRangeDB, p.ShelfQ, testSampleRate))
	want, err := conv.Direct(low.ImpulseResponse(256), high.ImpulseResponse(256))
	if err != nil {
		t.Fatalf("conv.Direct: %v", err)
	}
	// Truncating both responses at 256 taps does not affect the first 200 outputs.
	for i, x := range impulse(200) {
		if got := ts.ProcessSample(x); math.Abs(got-want[i]) > 1e-9 {
			t.Fatalf("sample %d: got %g want %g", i, got, want[i])
		}
	}
}

func TestTonestackSettersClamp(t *testing.T) {
	ts := NewTonestack(testSampleRate, NewDefaultParams())
	ts.SetBass(-3)
	ts.SetTreble(7)
	if ts.Bass() != 0 || ts.Treble() != 1 {
		t.Fatalf("clamp failed: bass=%g treble=%g", ts.Bass(), ts.Treble())
	}
	ts.SetBass(math.NaN())
	if ts.Bass() != 0 {
		t.Fatalf("NaN bass stored as %g", ts.Bass())
	}
}
