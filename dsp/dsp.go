package dsp

import (
	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// Biquad implements a second-order IIR filter in direct form I (no heap
// allocations in Process).
type Biquad struct {
	// Coefficients, a0 normalized to 1
	b0, b1, b2 float64
	a1, a2     float64

	// State (previous samples)
	x1, x2 float64 // input history
	y1, y2 float64 // output history
}

// NewBiquad creates a biquad filter with the given coefficients.
func NewBiquad(c biquad.Coefficients) *Biquad {
	b := &Biquad{}
	b.SetCoefficients(c)
	return b
}

// SetCoefficients replaces the coefficients and keeps the state.
func (b *Biquad) SetCoefficients(c biquad.Coefficients) {
	b.b0, b.b1, b.b2 = c.B0, c.B1, c.B2
	b.a1, b.a2 = c.A1, c.A2
}

// Coefficients returns the current coefficients.
func (b *Biquad) Coefficients() biquad.Coefficients {
	return biquad.Coefficients{B0: b.b0, B1: b.b1, B2: b.b2, A1: b.a1, A2: b.a2}
}

// Process processes one sample through the biquad filter.
func (b *Biquad) Process(input float64) float64 {
	output := b.b0*input + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2

	b.x2 = b.x1
	b.x1 = input
	b.y2 = b.y1
	b.y1 = dspcore.FlushDenormals(output)

	return output
}

// Reset clears the filter state.
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}

// NewLowShelf creates an RBJ low-shelf filter.
func NewLowShelf(freq, gainDB, q, sampleRate float64) *Biquad {
	return NewBiquad(design.LowShelf(freq, gainDB, q, sampleRate))
}

// NewHighShelf creates an RBJ high-shelf filter.
func NewHighShelf(freq, gainDB, q, sampleRate float64) *Biquad {
	return NewBiquad(design.HighShelf(freq, gainDB, q, sampleRate))
}

// DelayLine implements a circular buffer of the most recent samples.
type DelayLine struct {
	buffer   []float64
	writePos int
	size     int
}

// NewDelayLine creates a new delay line with the given size.
func NewDelayLine(size int) *DelayLine {
	return &DelayLine{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Size returns the buffer length.
func (d *DelayLine) Size() int { return d.size }

// Write writes a sample to the delay line.
func (d *DelayLine) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos++
	if d.writePos == d.size {
		d.writePos = 0
	}
}

// Read reads a sample from the delay line at the given delay (in samples).
// Delay 1 is the most recently written sample.
func (d *DelayLine) Read(delay int) float64 {
	readPos := (d.writePos - delay) % d.size
	if readPos < 0 {
		readPos += d.size
	}
	return d.buffer[readPos]
}

// Dot returns sum_k Read(k+1)*taps[k] over min(len(taps), Size()) taps,
// newest sample first.
func (d *DelayLine) Dot(taps []float64) float64 {
	n := len(taps)
	if n > d.size {
		n = d.size
	}
	newest := d.writePos - 1
	if newest < 0 {
		newest = d.size - 1
	}

	// Walk backwards from the newest sample to the start of the buffer,
	// then continue from the end.
	head := newest + 1
	if head > n {
		head = n
	}
	var acc float64
	for k := 0; k < head; k++ {
		acc += d.buffer[newest-k] * taps[k]
	}
	wrap := newest + d.size
	for k := head; k < n; k++ {
		acc += d.buffer[wrap-k] * taps[k]
	}
	return acc
}

// Reset clears the delay line.
func (d *DelayLine) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
}
