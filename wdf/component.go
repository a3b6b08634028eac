// Package wdf implements wave digital filter elements for circuit modeling.
//
// Every element speaks the same one-port wave protocol: an incident wave a
// arrives at the port, the element reflects a wave b, and the port voltage and
// current follow from v = (a+b)/2 and i = (a-b)/(2R). Adaptors join two
// elements into a single port so a circuit becomes a binary tree.
package wdf

import "errors"

var (
	ErrNonPositiveResistance  = errors.New("wdf: port resistance must be > 0")
	ErrNonPositiveCapacitance = errors.New("wdf: capacitance must be > 0")
	ErrNilComponent           = errors.New("wdf: nil component")
	ErrSameComponent          = errors.New("wdf: adaptor children must be distinct")
	ErrAlreadyOwned           = errors.New("wdf: component already owned by an adaptor")
	ErrInvalidSampleRate      = errors.New("wdf: sample rate must be > 0")
)

// Component is a one-port wave element. The set of implementations is closed:
// Resistor, Capacitor, VoltageSource, Series, Parallel and Triode.
type Component interface {
	// ComputeReflection stores the incident wave and returns the new reflected wave.
	ComputeReflection(incident float64) float64
	SetIncidentWave(a float64)
	IncidentWave() float64
	ReflectedWave() float64
	PortResistance() float64
	Reset()

	base() *port
	// pendingReflection is the wave the element will reflect on its next
	// ComputeReflection call, derived from state before that call.
	pendingReflection() float64
}

type port struct {
	resistance float64
	incident   float64
	reflected  float64
	owned      bool
}

func newPort(resistance float64) (port, error) {
	if !(resistance > 0) || !isFinite(resistance) {
		return port{}, ErrNonPositiveResistance
	}
	return port{resistance: resistance}, nil
}

func (p *port) base() *port { return p }

// SetIncidentWave sets the incident wave without triggering scattering.
func (p *port) SetIncidentWave(a float64) { p.incident = a }

// IncidentWave returns the last incident wave.
func (p *port) IncidentWave() float64 { return p.incident }

// ReflectedWave returns the last reflected wave.
func (p *port) ReflectedWave() float64 { return p.reflected }

// PortResistance returns the port resistance in ohms.
func (p *port) PortResistance() float64 { return p.resistance }

func (p *port) clearWaves() {
	p.incident = 0
	p.reflected = 0
}

// Voltage returns the port voltage (a+b)/2.
func Voltage(c Component) float64 {
	return 0.5 * (c.IncidentWave() + c.ReflectedWave())
}

// Current returns the port current (a-b)/(2R), positive into the element.
func Current(c Component) float64 {
	return (c.IncidentWave() - c.ReflectedWave()) / (2.0 * c.PortResistance())
}

func claimPair(left, right Component) error {
	if isNil(left) || isNil(right) {
		return ErrNilComponent
	}
	if left == right {
		return ErrSameComponent
	}
	lp, rp := left.base(), right.base()
	if lp.owned || rp.owned {
		return ErrAlreadyOwned
	}
	lp.owned = true
	rp.owned = true
	return nil
}

func isNil(c Component) bool {
	if c == nil {
		return true
	}
	switch v := c.(type) {
	case *Resistor:
		return v == nil
	case *Capacitor:
		return v == nil
	case *VoltageSource:
		return v == nil
	case *Series:
		return v == nil
	case *Parallel:
		return v == nil
	case *Triode:
		return v == nil
	}
	return false
}
