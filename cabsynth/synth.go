package cabsynth

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	pdefd "github.com/cwbudde/algo-pde/fd"
	pdepoisson "github.com/cwbudde/algo-pde/poisson"
)

// ErrSilent is returned when a response has no energy to normalize.
var ErrSilent = errors.New("cabsynth: impulse response is silent")

// Config controls synthetic guitar-cabinet IR generation.
type Config struct {
	SampleRate int
	Length     int // taps
	Seed       int64

	DirectLevel float64

	// Speaker cone fundamental resonance.
	ConeHz     float64
	ConeDecayS float64
	ConeLevel  float64

	// Closed-box axial modes.
	BoxWidthM    float64
	BoxHeightM   float64
	BoxDepthM    float64
	BoxModes     int // modes per axis
	BoxDecayS    float64
	BoxLevel     float64
	SpeedOfSound float64

	// Cone breakup resonances, log-spaced between the two corners.
	Breakups      int
	BreakupLowHz  float64
	BreakupHighHz float64
	BreakupDecayS float64
	BreakupLevel  float64

	EarlyCount     int
	EarlyMaxDelayS float64
	EarlyLevel     float64

	Brightness float64
	FadeOutS   float64 // Cosine fade-out at the end; 0 = no fade
}

// DefaultConfig returns a 2048-tap closed-back 1x12 style cabinet at 48 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate:     48000,
		Length:         2048,
		Seed:           1,
		DirectLevel:    0.35,
		ConeHz:         95.0,
		ConeDecayS:     0.012,
		ConeLevel:      0.9,
		BoxWidthM:      0.50,
		BoxHeightM:     0.45,
		BoxDepthM:      0.28,
		BoxModes:       6,
		BoxDecayS:      0.008,
		BoxLevel:       0.25,
		SpeedOfSound:   343.0,
		Breakups:       10,
		BreakupLowHz:   1200.0,
		BreakupHighHz:  5200.0,
		BreakupDecayS:  0.0025,
		BreakupLevel:   0.35,
		EarlyCount:     6,
		EarlyMaxDelayS: 0.004,
		EarlyLevel:     0.3,
		Brightness:     0.6,
		FadeOutS:       0.003,
	}
}

func (c *Config) Validate() error {
	if c.SampleRate < 8000 {
		return fmt.Errorf("sample rate too low: %d", c.SampleRate)
	}
	if c.Length < 1 {
		return fmt.Errorf("length must be >= 1")
	}
	if c.DirectLevel < 0 || c.ConeLevel < 0 || c.BoxLevel < 0 || c.BreakupLevel < 0 || c.EarlyLevel < 0 {
		return fmt.Errorf("levels must be >= 0")
	}
	if c.ConeHz <= 0 {
		return fmt.Errorf("cone frequency must be > 0")
	}
	if c.BoxWidthM <= 0 || c.BoxHeightM <= 0 || c.BoxDepthM <= 0 {
		return fmt.Errorf("box dimensions must be > 0")
	}
	if c.BoxModes < 0 {
		return fmt.Errorf("box modes must be >= 0")
	}
	if c.SpeedOfSound <= 0 {
		return fmt.Errorf("speed of sound must be > 0")
	}
	if c.Breakups < 0 {
		return fmt.Errorf("breakups must be >= 0")
	}
	if c.Breakups > 0 && (c.BreakupLowHz <= 0 || c.BreakupHighHz < c.BreakupLowHz) {
		return fmt.Errorf("breakup range must satisfy 0 < low <= high")
	}
	if c.ConeDecayS <= 0 || c.BoxDecayS <= 0 || c.BreakupDecayS <= 0 {
		return fmt.Errorf("decay seconds must be > 0")
	}
	if c.EarlyCount < 0 {
		return fmt.Errorf("early count must be >= 0")
	}
	if c.EarlyCount > 0 && c.EarlyMaxDelayS <= 0 {
		return fmt.Errorf("early max delay must be > 0")
	}
	if c.Brightness <= 0 {
		return fmt.Errorf("brightness must be > 0")
	}
	if c.FadeOutS < 0 {
		return fmt.Errorf("fade out must be >= 0")
	}
	return nil
}

// Generate synthesizes a mono cabinet IR of cfg.Length taps whose absolute
// values sum to 1.
func Generate(cfg Config) ([]float64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := cfg.Length
	buf := make([]float64, n)
	rng := rand.New(rand.NewSource(cfg.Seed))
	maxF := 0.45 * float64(cfg.SampleRate)

	buf[0] += cfg.DirectLevel

	brightnessExp := 0.5 + 1.5/cfg.Brightness
	rolloff := func(f float64) float64 {
		return 1.0 / math.Pow(1.0+f/4000.0, brightnessExp)
	}

	if cfg.ConeHz < maxF {
		addModeRec(buf, cfg.ConeLevel, cfg.ConeHz, -0.5*math.Pi, decayFor(cfg.ConeDecayS, cfg.SampleRate), cfg.SampleRate)
	}

	for _, f := range BoxModeFrequencies(cfg) {
		if f >= maxF {
			continue
		}
		amp := cfg.BoxLevel * rolloff(f) * (0.7 + 0.6*rng.Float64())
		phi := rng.Float64() * 2.0 * math.Pi
		addModeRec(buf, amp, f, phi, decayFor(cfg.BoxDecayS, cfg.SampleRate), cfg.SampleRate)
	}

	for m := 0; m < cfg.Breakups; m++ {
		pos := (float64(m) + 0.5) / float64(cfg.Breakups)
		f := cfg.BreakupLowHz * math.Pow(cfg.BreakupHighHz/cfg.BreakupLowHz, pos)
		f *= 1.0 + 0.04*(rng.Float64()*2.0-1.0)
		if f >= maxF {
			continue
		}
		amp := cfg.BreakupLevel * rolloff(f) * (0.6 + 0.8*rng.Float64())
		tau := cfg.BreakupDecayS * (0.7 + 0.6*rng.Float64())
		phi := rng.Float64() * 2.0 * math.Pi
		addModeRec(buf, amp, f, phi, decayFor(tau, cfg.SampleRate), cfg.SampleRate)
	}

	// Reflections off the back panel and the mic stand; sign alternates with
	// the reflecting surface.
	for i := 0; i < cfg.EarlyCount; i++ {
		t := 0.0003 + cfg.EarlyMaxDelayS*rng.Float64()
		idx := int(t * float64(cfg.SampleRate))
		if idx <= 0 || idx >= n {
			continue
		}
		amp := cfg.EarlyLevel * (0.25 + 0.75*rng.Float64()) * math.Exp(-t*400.0)
		if rng.Intn(2) == 1 {
			amp = -amp
		}
		buf[idx] += amp
	}

	highpassDC(buf, 0.995)
	applyFadeOut(buf, cfg.FadeOutS, cfg.SampleRate)

	if err := NormalizeL1(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// BoxModeFrequencies returns the axial mode frequencies of the cabinet box in
// ascending order. Each axis is treated as a rigid-walled 1-D cavity whose
// spectrum is taken from the discrete Dirichlet Laplacian on cfg.BoxModes
// interior points.
func BoxModeFrequencies(cfg Config) []float64 {
	if cfg.BoxModes < 1 {
		return nil
	}
	dims := []float64{cfg.BoxWidthM, cfg.BoxHeightM, cfg.BoxDepthM}
	freqs := make([]float64, 0, len(dims)*cfg.BoxModes)
	for _, l := range dims {
		if l <= 0 {
			continue
		}
		h := l / float64(cfg.BoxModes+1)
		for _, lambda := range pdefd.Eigenvalues(cfg.BoxModes, h, pdepoisson.Dirichlet) {
			if lambda <= 0 {
				continue
			}
			freqs = append(freqs, cfg.SpeedOfSound*math.Sqrt(lambda)/(2.0*math.Pi))
		}
	}
	sort.Float64s(freqs)
	return freqs
}

// NormalizeL1 scales x in place so that sum |x| = 1.
func NormalizeL1(x []float64) error {
	var sum float64
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("cabsynth: non-finite tap %g", v)
		}
		sum += math.Abs(v)
	}
	if sum < 1e-12 {
		return ErrSilent
	}
	s := 1.0 / sum
	for i := range x {
		x[i] *= s
	}
	return nil
}

func decayFor(tau float64, sampleRate int) float64 {
	return math.Exp(-1.0 / (tau * float64(sampleRate)))
}

func addModeRec(out []float64, amp float64, freq float64, phase float64, decay float64, sampleRate int) {
	if len(out) == 0 {
		return
	}
	w := 2.0 * math.Pi * freq / float64(sampleRate)
	cw := math.Cos(w)
	x0 := math.Cos(phase)
	x1 := math.Cos(phase + w)
	env := 1.0

	out[0] += amp * env * x0
	env *= decay
	if len(out) == 1 {
		return
	}
	out[1] += amp * env * x1
	env *= decay
	for i := 2; i < len(out); i++ {
		x2 := 2.0*cw*x1 - x0
		x0 = x1
		x1 = x2
		out[i] += amp * env * x2
		env *= decay
	}
}

func highpassDC(x []float64, r float64) {
	prevIn := 0.0
	prevOut := 0.0
	for i := range x {
		y := x[i] - prevIn + r*prevOut
		prevIn = x[i]
		prevOut = y
		x[i] = y
	}
}

// applyFadeOut applies a cosine fade-out to the last fadeS seconds of buf.
func applyFadeOut(buf []float64, fadeS float64, sampleRate int) {
	if fadeS <= 0 || len(buf) == 0 {
		return
	}
	fadeSamples := int(math.Round(fadeS * float64(sampleRate)))
	if fadeSamples > len(buf) {
		fadeSamples = len(buf)
	}
	start := len(buf) - fadeSamples
	for i := 0; i < fadeSamples; i++ {
		t := float64(i) / float64(fadeSamples)
		buf[start+i] *= 0.5 * (1.0 + math.Cos(t*math.Pi))
	}
}
