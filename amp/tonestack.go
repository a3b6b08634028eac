package amp

import (
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/cwbudde/algo-tubeamp/dsp"
)

// Tonestack is a bass low-shelf followed by a treble high-shelf.
// Coefficients are recomputed only when a control changes.
type Tonestack struct {
	sampleRate float64
	bassHz     float64
	trebleHz   float64
	q          float64
	rangeDB    float64

	bass, treble   float64
	bassF, trebleF *dsp.Biquad
}

// NewTonestack creates a tonestack with both controls at 0.5 (flat).
func NewTonestack(sampleRate int, p *Params) *Tonestack {
	t := &Tonestack{
		sampleRate: float64(sampleRate),
		bassHz:     p.BassHz,
		trebleHz:   p.TrebleHz,
		q:          p.ShelfQ,
		rangeDB:    p.ShelfRangeDB,
		bassF:      dsp.NewBiquad(biquad.Coefficients{B0: 1}),
		trebleF:    dsp.NewBiquad(biquad.Coefficients{B0: 1}),
	}
	t.SetBass(0.5)
	t.SetTreble(0.5)
	return t
}

// shelfGainDB maps a control in [0,1] linearly to -range..+range dB.
func (t *Tonestack) shelfGainDB(v float64) float64 {
	return (2.0*v - 1.0) * t.rangeDB
}

// SetBass clamps v to [0,1] and redesigns the low shelf.
func (t *Tonestack) SetBass(v float64) {
	t.bass = clamp01(v)
	t.bassF.SetCoefficients(design.LowShelf(t.bassHz, t.shelfGainDB(t.bass), t.q, t.sampleRate))
}

// SetTreble clamps v to [0,1] and redesigns the high shelf.
func (t *Tonestack) SetTreble(v float64) {
	t.treble = clamp01(v)
	t.trebleF.SetCoefficients(design.HighShelf(t.trebleHz, t.shelfGainDB(t.treble), t.q, t.sampleRate))
}

// Bass returns the clamped bass control.
func (t *Tonestack) Bass() float64 { return t.bass }

// Treble returns the clamped treble control.
func (t *Tonestack) Treble() float64 { return t.treble }

// MagnitudeDB returns the combined response of both shelves at freq.
func (t *Tonestack) MagnitudeDB(freq float64) float64 {
	b := t.bassF.Coefficients()
	tr := t.trebleF.Coefficients()
	return b.MagnitudeDB(freq, t.sampleRate) + tr.MagnitudeDB(freq, t.sampleRate)
}

// ProcessSample runs x through the bass shelf, then the treble shelf.
func (t *Tonestack) ProcessSample(x float64) float64 {
	return t.trebleF.Process(t.bassF.Process(x))
}

// Reset clears both filter states. Coefficients are kept.
func (t *Tonestack) Reset() {
	t.bassF.Reset()
	t.trebleF.Reset()
}
