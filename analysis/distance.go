package analysis

import (
	"math"

	algofft "github.com/cwbudde/algo-fft"
)

// Metrics contains distance and similarity measurements between two amp
// renderings of the same input.
type Metrics struct {
	SampleRate int `json:"sample_rate"`

	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	LagSamples      int `json:"lag_samples"`

	LevelDiffDB    float64 `json:"level_diff_db"`
	TimeRMSE       float64 `json:"time_rmse"`
	EnvelopeRMSEDB float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB float64 `json:"spectral_rmse_db"`
	RefCrestDB     float64 `json:"ref_crest_db"`
	CandCrestDB    float64 `json:"cand_crest_db"`
	CrestDiffDB    float64 `json:"crest_diff_db"`

	// Sub-metrics normalized to [0,1] before weighting.
	LevelNorm    float64 `json:"level_norm"`
	TimeNorm     float64 `json:"time_norm"`
	EnvelopeNorm float64 `json:"envelope_norm"`
	SpectralNorm float64 `json:"spectral_norm"`
	CrestNorm    float64 `json:"crest_norm"`
	// Dominant names the component with the largest weighted contribution.
	Dominant string `json:"dominant"`

	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// Score weights. They sum to 1.
const (
	WeightLevel    = 0.10
	WeightTime     = 0.20
	WeightEnvelope = 0.20
	WeightSpectral = 0.35
	WeightCrest    = 0.15
)

const (
	spectrumFFTSize = 4096
	spectrumHop     = 2048
	spectrumLoHz    = 20.0
	spectrumHiHz    = 20000.0
)

// Compare returns objective distance metrics and a combined score in [0,1].
func Compare(reference []float64, candidate []float64, sampleRate int) Metrics {
	m := Metrics{
		SampleRate:      sampleRate,
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
	}
	if sampleRate <= 0 || len(reference) == 0 || len(candidate) == 0 {
		m.Score = 1.0
		m.Similarity = 0.0
		return m
	}

	ref := trimLeadingSilence(reference, 1e-6)
	cand := trimLeadingSilence(candidate, 1e-6)
	if len(ref) == 0 || len(cand) == 0 {
		m.Score = 1.0
		m.Similarity = 0.0
		return m
	}

	m.LevelDiffDB = math.Abs(linToDB(rms1(ref)) - linToDB(rms1(cand)))

	ref = normalizeRMS(ref, 0.1)
	cand = normalizeRMS(cand, 0.1)

	maxLag := sampleRate / 2
	if maxLag > len(ref)-1 {
		maxLag = len(ref) - 1
	}
	if maxLag > len(cand)-1 {
		maxLag = len(cand) - 1
	}
	if maxLag < 1 {
		maxLag = 1
	}
	lag := estimateLag(ref, cand, maxLag)
	m.LagSamples = lag

	refA, candA := alignByLag(ref, cand, lag)
	n := len(refA)
	if len(candA) < n {
		n = len(candA)
	}
	if n < 256 {
		m.Score = 1.0
		m.Similarity = 0.0
		return m
	}
	maxFrames := sampleRate * 12
	if n > maxFrames {
		n = maxFrames
	}
	refA = refA[:n]
	candA = candA[:n]
	m.AlignedFrames = n

	m.TimeRMSE = rmse(refA, candA)

	refEnv := rmsEnvelope(refA, 256, 128)
	candEnv := rmsEnvelope(candA, 256, 128)
	envN := len(refEnv)
	if len(candEnv) < envN {
		envN = len(candEnv)
	}
	if envN > 0 {
		envDiff := make([]float64, envN)
		for i := 0; i < envN; i++ {
			envDiff[i] = linToDB(refEnv[i]) - linToDB(candEnv[i])
		}
		m.EnvelopeRMSEDB = rms1(envDiff)
	}

	m.SpectralRMSEDB = spectralRMSEDB(refA, candA, sampleRate)

	m.RefCrestDB = crestDB(refA)
	m.CandCrestDB = crestDB(candA)
	m.CrestDiffDB = math.Abs(m.RefCrestDB - m.CandCrestDB)

	m.LevelNorm = clamp01(m.LevelDiffDB / 20.0)
	m.TimeNorm = clamp01(m.TimeRMSE / 0.25)
	m.EnvelopeNorm = clamp01(m.EnvelopeRMSEDB / 30.0)
	m.SpectralNorm = clamp01(m.SpectralRMSEDB / 30.0)
	m.CrestNorm = clamp01(m.CrestDiffDB / 12.0)

	contribs := [...]struct {
		name string
		v    float64
	}{
		{"level", WeightLevel * m.LevelNorm},
		{"time", WeightTime * m.TimeNorm},
		{"envelope", WeightEnvelope * m.EnvelopeNorm},
		{"spectral", WeightSpectral * m.SpectralNorm},
		{"crest", WeightCrest * m.CrestNorm},
	}
	var score, top float64
	for _, c := range contribs {
		score += c.v
		if c.v > top {
			top = c.v
			m.Dominant = c.name
		}
	}
	m.Score = clamp01(score)
	m.Similarity = clamp01(math.Exp(-4.0 * m.Score))

	return m
}

func trimLeadingSilence(x []float64, threshold float64) []float64 {
	for i := 0; i < len(x); i++ {
		if math.Abs(x[i]) > threshold {
			return x[i:]
		}
	}
	return nil
}

func normalizeRMS(x []float64, target float64) []float64 {
	if len(x) == 0 {
		return x
	}
	r := rms1(x)
	if r <= 1e-12 {
		return append([]float64(nil), x...)
	}
	g := target / r
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] * g
	}
	return out
}

// estimateLag returns the lag in [-maxLag, maxLag] maximizing
// sum_i ref[i+lag]*cand[i]. The full cross-correlation is computed as a
// convolution with the reversed candidate.
func estimateLag(ref []float64, cand []float64, maxLag int) int {
	if len(ref) == 0 || len(cand) == 0 {
		return 0
	}
	a := make([]float32, len(ref))
	for i, v := range ref {
		a[i] = float32(v)
	}
	b := make([]float32, len(cand))
	for i, v := range cand {
		b[len(cand)-1-i] = float32(v)
	}
	xc := make([]float32, len(a)+len(b)-1)
	if err := algofft.ConvolveReal(xc, a, b); err != nil {
		return estimateLagDirect(ref, cand, maxLag, 2)
	}

	bestLag := 0
	best := math.Inf(-1)
	m := len(cand)
	for lag := -maxLag; lag <= maxLag; lag++ {
		k := lag + m - 1
		if k < 0 || k >= len(xc) {
			continue
		}
		if s := float64(xc[k]); s > best {
			best = s
			bestLag = lag
		}
	}
	return bestLag
}

func estimateLagDirect(ref []float64, cand []float64, maxLag int, step int) int {
	bestLag := 0
	best := math.Inf(-1)
	for lag := -maxLag; lag <= maxLag; lag++ {
		s := dotAtLag(ref, cand, lag, step)
		if s > best {
			best = s
			bestLag = lag
		}
	}
	return bestLag
}

func dotAtLag(a []float64, b []float64, lag int, step int) float64 {
	var ai, bi int
	if lag >= 0 {
		ai = lag
	} else {
		bi = -lag
	}
	n := len(a) - ai
	if len(b)-bi < n {
		n = len(b) - bi
	}
	if n <= 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i += step {
		sum += a[ai+i] * b[bi+i]
	}
	return sum
}

func alignByLag(ref []float64, cand []float64, lag int) ([]float64, []float64) {
	if lag >= 0 {
		if lag >= len(ref) {
			return nil, nil
		}
		return ref[lag:], cand
	}
	o := -lag
	if o >= len(cand) {
		return nil, nil
	}
	return ref, cand[o:]
}

func rmse(a []float64, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

func rms1(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func rmsEnvelope(x []float64, frame int, hop int) []float64 {
	if frame <= 0 || hop <= 0 || len(x) < frame {
		return nil
	}
	n := 1 + (len(x)-frame)/hop
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i * hop
		out[i] = rms1(x[start : start+frame])
	}
	return out
}

// crestDB is the peak-to-RMS ratio; clipping lowers it.
func crestDB(x []float64) float64 {
	r := rms1(x)
	if r <= 1e-12 {
		return 0
	}
	peak := 0.0
	for _, v := range x {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return linToDB(peak / r)
}

// Spectrum returns the Welch-averaged power spectrum of x in dB, one value
// per bin of a 4096-point Hann-windowed FFT. It returns nil when x is
// shorter than one frame.
func Spectrum(x []float64) []float64 {
	n := spectrumFFTSize
	if len(x) < n {
		return nil
	}
	plan, err := algofft.NewPlanReal64(n)
	if err != nil {
		return nil
	}
	hann := make([]float64, n)
	for i := range hann {
		hann[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	buf := make([]float64, n)
	spec := make([]complex128, n/2+1)
	power := make([]float64, n/2+1)
	frames := 0
	for start := 0; start+n <= len(x); start += spectrumHop {
		for i := 0; i < n; i++ {
			buf[i] = x[start+i] * hann[i]
		}
		plan.Forward(spec, buf)
		for k, c := range spec {
			re, im := real(c), imag(c)
			power[k] += re*re + im*im
		}
		frames++
	}
	out := make([]float64, len(power))
	for k, p := range power {
		out[k] = 10.0 * math.Log10(math.Max(p/float64(frames), 1e-24))
	}
	return out
}

func spectralRMSEDB(a []float64, b []float64, sampleRate int) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sa := Spectrum(a[:n])
	sb := Spectrum(b[:n])
	if sa == nil || sb == nil {
		return 0
	}
	binHz := float64(sampleRate) / float64(spectrumFFTSize)
	lo := int(math.Ceil(spectrumLoHz / binHz))
	if lo < 1 {
		lo = 1
	}
	hi := int(spectrumHiHz / binHz)
	if hi > len(sa)-1 {
		hi = len(sa) - 1
	}
	if hi < lo {
		return 0
	}
	// Floor both spectra at -120 dB.
	const floorDB = -120.0
	var sum float64
	count := 0
	for k := lo; k <= hi; k++ {
		da := math.Max(sa[k], floorDB)
		db := math.Max(sb[k], floorDB)
		d := da - db
		sum += d * d
		count++
	}
	return math.Sqrt(sum / float64(count))
}

func linToDB(x float64) float64 {
	if x < 1e-12 {
		x = 1e-12
	}
	return 20.0 * math.Log10(x)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
