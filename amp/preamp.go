package amp

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-tubeamp/wdf"
)

// Preamp is a single common-cathode triode stage: input source, coupling
// capacitor and grid network feeding a triode loaded by a plate resistor.
// Its output is the soft-clipped plate voltage deviation from the quiescent
// point.
type Preamp struct {
	topology Topology

	source   *wdf.VoltageSource
	coupling *wdf.Capacitor
	grid     *wdf.Resistor
	gridTree wdf.Component // adapted topology only
	triode   *wdf.Triode
	plate    *wdf.Resistor

	supply      float64
	bias        float64
	gridClamp   float64
	outputScale float64
	drive       float64
	quiescent   float64
}

// NewPreamp builds the stage from p at sampleRate. The triode lookup table
// is allocated here.
func NewPreamp(sampleRate int, p *Params) (*Preamp, error) {
	if err := p.Validate(sampleRate); err != nil {
		return nil, err
	}
	fs := float64(sampleRate)

	table, err := wdf.NewTriodeTable(p.Tube, p.TableSize)
	if err != nil {
		return nil, fmt.Errorf("amp: triode table: %w", err)
	}
	triode, err := wdf.NewTriode(table, p.PlateResistance)
	if err != nil {
		return nil, err
	}
	if err := triode.SetSolver(p.Solver, p.FixedPointIterations); err != nil {
		return nil, err
	}
	plate, err := wdf.NewResistor(p.PlateResistance)
	if err != nil {
		return nil, err
	}
	source, err := wdf.NewVoltageSource(1.0)
	if err != nil {
		return nil, err
	}
	coupling, err := wdf.NewCapacitor(p.CouplingCapacitance, fs)
	if err != nil {
		return nil, err
	}
	grid, err := wdf.NewResistor(p.GridResistance)
	if err != nil {
		return nil, err
	}

	pre := &Preamp{
		topology:    p.Topology,
		source:      source,
		coupling:    coupling,
		grid:        grid,
		triode:      triode,
		plate:       plate,
		supply:      p.SupplyVoltage,
		bias:        p.Bias,
		gridClamp:   p.GridClamp,
		outputScale: p.OutputScale,
		drive:       1.0,
	}

	if p.Topology == TopologyAdapted {
		tree, err := buildGridTree(coupling, grid, p, fs)
		if err != nil {
			return nil, err
		}
		pre.gridTree = tree
	}

	bias := math.Min(p.Bias, p.GridClamp)
	triode.SetRestPoint(bias, triode.SolveRestPoint(p.SupplyVoltage, bias))
	pre.calibrate()
	return pre, nil
}

func buildGridTree(coupling *wdf.Capacitor, grid *wdf.Resistor, p *Params, fs float64) (wdf.Component, error) {
	stopper, err := wdf.NewResistor(p.GridStopper)
	if err != nil {
		return nil, err
	}
	miller, err := wdf.NewCapacitor(p.MillerCapacitance, fs)
	if err != nil {
		return nil, err
	}
	shunt, err := wdf.NewParallel(grid, miller)
	if err != nil {
		return nil, err
	}
	inner, err := wdf.NewSeries(coupling, shunt)
	if err != nil {
		return nil, err
	}
	return wdf.NewSeries(stopper, inner)
}

// calibrate records the plate voltage produced by one silent sample from
// the rest state, so that silence maps to exactly zero output.
func (p *Preamp) calibrate() {
	p.quiescent = 0
	p.resetCircuit()
	p.gridVoltage(0)
	p.quiescent = p.plateVoltage()
	p.resetCircuit()
}

// SetDrive sets the linear input gain applied before the grid network.
func (p *Preamp) SetDrive(drive float64) { p.drive = drive }

// Drive returns the linear input gain.
func (p *Preamp) Drive() float64 { return p.drive }

// Quiescent returns the plate voltage output for silence.
func (p *Preamp) Quiescent() float64 { return p.quiescent }

// Triode exposes the stage's triode for inspection.
func (p *Preamp) Triode() *wdf.Triode { return p.triode }

// ProcessSample runs one sample through the stage and returns a value in
// (-1, 1). Non-finite input is treated as silence.
func (p *Preamp) ProcessSample(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		x = 0
	}
	p.gridVoltage(p.drive * x)
	return math.Tanh((p.plateVoltage() - p.quiescent) / p.outputScale)
}

// gridVoltage drives the grid network with v and hands the resulting
// grid-cathode voltage to the triode.
func (p *Preamp) gridVoltage(v float64) {
	p.source.SetVoltage(v)
	var vg float64
	if p.topology == TopologyAdapted {
		wdf.Drive(p.source, p.gridTree)
		vg = wdf.Voltage(p.grid)
	} else {
		w := p.source.ComputeReflection(0)
		w = p.coupling.ComputeReflection(w)
		p.grid.ComputeReflection(w)
		vg = wdf.Voltage(p.grid)
	}
	p.triode.SetGridVoltage(math.Min(p.bias+vg, p.gridClamp))
}

func (p *Preamp) plateVoltage() float64 {
	b := p.triode.ComputeReflection(p.supply)
	p.plate.ComputeReflection(b)
	return wdf.Voltage(p.plate)
}

func (p *Preamp) resetCircuit() {
	p.source.Reset()
	if p.gridTree != nil {
		p.gridTree.Reset()
	} else {
		p.coupling.Reset()
		p.grid.Reset()
	}
	p.triode.Reset()
	p.plate.Reset()
}

// Reset returns every element to its rest state.
func (p *Preamp) Reset() {
	p.resetCircuit()
}
