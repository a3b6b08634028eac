// Package amp assembles the tube preamp, tonestack and cabinet into a
// mono per-sample amplifier.
package amp

// Amplifier is the full chain: Preamp -> Tonestack -> Cabinet -> master.
//
// An Amplifier is not safe for concurrent use. Hosts that change controls
// from another goroutine should go through Controls.
type Amplifier struct {
	sampleRate int
	driveRange float64

	preamp    *Preamp
	tonestack *Tonestack
	cabinet   *Cabinet

	gain   float64
	master float64
}

// NewAmplifier allocates the chain for sampleRate. Construction either
// succeeds completely or returns an error. p may be nil for defaults.
func NewAmplifier(sampleRate int, p *Params) (*Amplifier, error) {
	if p == nil {
		p = NewDefaultParams()
	}
	pre, err := NewPreamp(sampleRate, p)
	if err != nil {
		return nil, err
	}
	cab, err := NewCabinet(sampleRate, p.CabinetLength, p.CabinetIR, p.Cabinet)
	if err != nil {
		return nil, err
	}
	if len(p.CabinetIR) == 0 && p.CabinetIRPath != "" {
		if err := cab.LoadIRFromWAV(p.CabinetIRPath); err != nil {
			return nil, err
		}
	}
	a := &Amplifier{
		sampleRate: sampleRate,
		driveRange: p.DriveRangeDB,
		preamp:     pre,
		tonestack:  NewTonestack(sampleRate, p),
		cabinet:    cab,
	}
	a.SetGain(p.Gain)
	a.SetBass(p.Bass)
	a.SetTreble(p.Treble)
	a.SetMaster(p.Master)
	return a, nil
}

// SampleRate returns the rate the chain was built for.
func (a *Amplifier) SampleRate() int { return a.sampleRate }

// ProcessSample returns one output sample. It never allocates and always
// returns a finite value.
func (a *Amplifier) ProcessSample(x float64) float64 {
	y := a.preamp.ProcessSample(x)
	y = a.tonestack.ProcessSample(y)
	y = a.cabinet.ProcessSample(y)
	return y * a.master
}

// ProcessBlock processes src into dst. dst and src may alias; only
// min(len(dst), len(src)) samples are processed.
func (a *Amplifier) ProcessBlock(dst, src []float64) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = a.ProcessSample(src[i])
	}
}

// Process renders src into a newly allocated slice.
func (a *Amplifier) Process(src []float64) []float64 {
	out := make([]float64, len(src))
	a.ProcessBlock(out, src)
	return out
}

// SetGain clamps v to [0,1] and maps it to a preamp drive of
// -DriveRangeDB..+DriveRangeDB.
func (a *Amplifier) SetGain(v float64) {
	a.gain = clamp01(v)
	a.preamp.SetDrive(dbToGain((2.0*a.gain - 1.0) * a.driveRange))
}

// SetBass clamps v to [0,1] and sets the low-shelf gain.
func (a *Amplifier) SetBass(v float64) { a.tonestack.SetBass(v) }

// SetTreble clamps v to [0,1] and sets the high-shelf gain.
func (a *Amplifier) SetTreble(v float64) { a.tonestack.SetTreble(v) }

// SetMaster clamps v to [0,1] and uses it as a linear output gain.
func (a *Amplifier) SetMaster(v float64) { a.master = clamp01(v) }

// Gain returns the clamped gain control.
func (a *Amplifier) Gain() float64 { return a.gain }

// Bass returns the clamped bass control.
func (a *Amplifier) Bass() float64 { return a.tonestack.Bass() }

// Treble returns the clamped treble control.
func (a *Amplifier) Treble() float64 { return a.tonestack.Treble() }

// Master returns the clamped master control.
func (a *Amplifier) Master() float64 { return a.master }

// Preamp returns the triode stage.
func (a *Amplifier) Preamp() *Preamp { return a.preamp }

// Tonestack returns the shelving equalizer.
func (a *Amplifier) Tonestack() *Tonestack { return a.tonestack }

// Cabinet returns the cabinet convolver.
func (a *Amplifier) Cabinet() *Cabinet { return a.cabinet }

// LoadCabinetIR replaces the cabinet response; see Cabinet.LoadIR.
func (a *Amplifier) LoadCabinetIR(taps []float64) error {
	return a.cabinet.LoadIR(taps)
}

// LoadCabinetIRFromWAV replaces the cabinet response from a WAV file.
func (a *Amplifier) LoadCabinetIRFromWAV(path string) error {
	return a.cabinet.LoadIRFromWAV(path)
}

// Reset clears all filter, delay and circuit state. Control values are
// kept.
func (a *Amplifier) Reset() {
	a.preamp.Reset()
	a.tonestack.Reset()
	a.cabinet.Reset()
}
