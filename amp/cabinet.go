package amp

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-tubeamp/cabsynth"
	"github.com/cwbudde/algo-tubeamp/dsp"
	"github.com/cwbudde/algo-tubeamp/internal/audioio"
)

var (
	ErrEmptyIR     = errors.New("amp: cabinet impulse response is empty")
	ErrNonFiniteIR = errors.New("amp: cabinet impulse response has non-finite taps")
)

// Cabinet convolves its input with an impulse response of fixed length
// using a direct-form FIR over the input history.
type Cabinet struct {
	sampleRate int
	ir         []float64
	history    *dsp.DelayLine
}

// NewCabinet allocates a cabinet of length taps. If ir is empty a response
// is synthesized from synth.
func NewCabinet(sampleRate int, length int, ir []float64, synth cabsynth.Config) (*Cabinet, error) {
	if length < 1 {
		return nil, fmt.Errorf("amp: cabinet length must be >= 1, got %d", length)
	}
	c := &Cabinet{
		sampleRate: sampleRate,
		ir:         make([]float64, length),
		history:    dsp.NewDelayLine(length),
	}
	if len(ir) == 0 {
		synth.SampleRate = sampleRate
		synth.Length = length
		gen, err := cabsynth.Generate(synth)
		if err != nil {
			return nil, fmt.Errorf("amp: synthesize cabinet: %w", err)
		}
		ir = gen
	}
	if err := c.LoadIR(ir); err != nil {
		return nil, err
	}
	return c, nil
}

// Len returns the fixed IR length.
func (c *Cabinet) Len() int { return len(c.ir) }

// IR returns a copy of the active normalized response.
func (c *Cabinet) IR() []float64 {
	out := make([]float64, len(c.ir))
	copy(out, c.ir)
	return out
}

// LoadIR replaces the response. taps are truncated or zero-padded to Len()
// and scaled so that their absolute values sum to 1. The input history is
// kept. Not safe to call concurrently with ProcessSample.
func (c *Cabinet) LoadIR(taps []float64) error {
	if len(taps) == 0 {
		return ErrEmptyIR
	}
	next := make([]float64, len(c.ir))
	copy(next, taps)
	for _, v := range next {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFiniteIR
		}
	}
	if err := cabsynth.NormalizeL1(next); err != nil {
		return err
	}
	copy(c.ir, next)
	return nil
}

// LoadIRFromWAV reads a WAV response, resamples it to the cabinet rate and
// loads it.
func (c *Cabinet) LoadIRFromWAV(path string) error {
	taps, err := audioio.ReadMonoAt(path, c.sampleRate)
	if err != nil {
		return fmt.Errorf("amp: load cabinet IR %s: %w", path, err)
	}
	return c.LoadIR(taps)
}

// ProcessSample pushes x into the history and returns the FIR output.
func (c *Cabinet) ProcessSample(x float64) float64 {
	c.history.Write(x)
	return c.history.Dot(c.ir)
}

// Reset clears the input history.
func (c *Cabinet) Reset() {
	c.history.Reset()
}
