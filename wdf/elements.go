package wdf

import "math"

// Resistor is a matched one-port: it absorbs the incident wave completely.
type Resistor struct {
	port
}

// NewResistor creates a resistor of r ohms.
func NewResistor(r float64) (*Resistor, error) {
	p, err := newPort(r)
	if err != nil {
		return nil, err
	}
	return &Resistor{port: p}, nil
}

// ComputeReflection stores a and reflects 0.
func (r *Resistor) ComputeReflection(a float64) float64 {
	r.incident = a
	r.reflected = 0
	return 0
}

func (r *Resistor) pendingReflection() float64 { return 0 }

// Reset clears the wave registers.
func (r *Resistor) Reset() { r.clearWaves() }

// Capacitor is a bilinear-transform capacitor: a one-sample wave delay with
// port resistance 1/(2*C*fs).
type Capacitor struct {
	port
	capacitance float64
	state       float64
}

// NewCapacitor creates a capacitor of c farads at the given sample rate.
func NewCapacitor(c float64, sampleRate float64) (*Capacitor, error) {
	if !(sampleRate > 0) || !isFinite(sampleRate) {
		return nil, ErrInvalidSampleRate
	}
	if !(c > 0) || !isFinite(c) {
		return nil, ErrNonPositiveCapacitance
	}
	p, err := newPort(1.0 / (2.0 * c * sampleRate))
	if err != nil {
		return nil, err
	}
	return &Capacitor{port: p, capacitance: c}, nil
}

// Capacitance returns the capacitance in farads.
func (c *Capacitor) Capacitance() float64 { return c.capacitance }

// ComputeReflection reflects the previous incident wave and stores a.
func (c *Capacitor) ComputeReflection(a float64) float64 {
	c.incident = a
	c.reflected = c.state
	c.state = a
	return c.reflected
}

func (c *Capacitor) pendingReflection() float64 { return c.state }

// Reset discharges the capacitor.
func (c *Capacitor) Reset() {
	c.clearWaves()
	c.state = 0
}

// VoltageSource is a resistive voltage source. Its port voltage is forced to
// the source voltage regardless of the incident wave.
type VoltageSource struct {
	port
	voltage float64
}

// NewVoltageSource creates a source with internal resistance r ohms.
func NewVoltageSource(r float64) (*VoltageSource, error) {
	p, err := newPort(r)
	if err != nil {
		return nil, err
	}
	return &VoltageSource{port: p}, nil
}

// SetVoltage sets the source voltage used from the next ComputeReflection on.
func (v *VoltageSource) SetVoltage(volts float64) { v.voltage = volts }

// SourceVoltage returns the configured source voltage.
func (v *VoltageSource) SourceVoltage() float64 { return v.voltage }

// ComputeReflection returns 2*Vs - a.
func (v *VoltageSource) ComputeReflection(a float64) float64 {
	v.incident = a
	v.reflected = 2.0*v.voltage - a
	return v.reflected
}

// The incident wave of the coming sample is not known yet, so the previous
// one stands in.
func (v *VoltageSource) pendingReflection() float64 {
	return 2.0*v.voltage - v.incident
}

// Reset clears the wave registers and the source voltage.
func (v *VoltageSource) Reset() {
	v.clearWaves()
	v.voltage = 0
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
