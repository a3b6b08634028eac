package wdf

import (
	"fmt"
	"math"
)

// TriodeSolver selects how the triode resolves its implicit plate equation.
type TriodeSolver int

const (
	// SolverLagged looks up the plate current at the previous sample's
	// operating point. One table lookup per sample.
	SolverLagged TriodeSolver = iota
	// SolverFixedPoint iterates the plate equation on the current sample,
	// bounded by a fixed iteration cap.
	SolverFixedPoint
)

// DefaultFixedPointIterations is the iteration cap used by SolverFixedPoint.
const DefaultFixedPointIterations = 8

const (
	fixedPointRelax     = 0.5
	fixedPointTolerance = 1e-9
	restBisectSteps     = 64
)

// String returns the solver name used in presets and flags.
func (s TriodeSolver) String() string {
	switch s {
	case SolverLagged:
		return "lagged"
	case SolverFixedPoint:
		return "fixed-point"
	default:
		return fmt.Sprintf("TriodeSolver(%d)", int(s))
	}
}

// ParseTriodeSolver parses a solver name.
func ParseTriodeSolver(name string) (TriodeSolver, error) {
	switch name {
	case "lagged", "":
		return SolverLagged, nil
	case "fixed-point", "fixedpoint":
		return SolverFixedPoint, nil
	}
	return SolverLagged, fmt.Errorf("wdf: unknown triode solver %q", name)
}

// Triode is the plate port of a triode. The grid is driven separately through
// SetGridVoltage; the cathode is the reference node.
//
// In lagged mode the plate current is taken from the previous sample's
// operating point, so the nonlinearity acts with one sample of delay. This
// keeps the cost at one table lookup per sample; the error grows with gain
// and frequency.
type Triode struct {
	port
	table   *TriodeTable
	solver  TriodeSolver
	maxIter int

	gridVoltage  float64
	lastVgk      float64
	lastVpk      float64
	plateCurrent float64

	restVgk float64
	restVpk float64
}

// NewTriode creates a triode plate port with resistance r ohms.
func NewTriode(table *TriodeTable, r float64) (*Triode, error) {
	if table == nil {
		return nil, fmt.Errorf("wdf: nil triode table")
	}
	p, err := newPort(r)
	if err != nil {
		return nil, err
	}
	return &Triode{
		port:    p,
		table:   table,
		solver:  SolverLagged,
		maxIter: DefaultFixedPointIterations,
	}, nil
}

// SetSolver selects the solver. maxIterations is used by SolverFixedPoint
// and must be in 1..64.
func (t *Triode) SetSolver(s TriodeSolver, maxIterations int) error {
	switch s {
	case SolverLagged, SolverFixedPoint:
	default:
		return fmt.Errorf("wdf: unknown triode solver %d", int(s))
	}
	if maxIterations < 1 || maxIterations > 64 {
		return fmt.Errorf("wdf: fixed-point iterations must be in 1..64, got %d", maxIterations)
	}
	t.solver = s
	t.maxIter = maxIterations
	return nil
}

// Solver returns the active solver.
func (t *Triode) Solver() TriodeSolver { return t.solver }

// Table returns the plate-current table.
func (t *Triode) Table() *TriodeTable { return t.table }

// SetGridVoltage sets the grid-cathode voltage seen by the next sample.
func (t *Triode) SetGridVoltage(vgk float64) { t.gridVoltage = vgk }

// OperatingPoint returns the last (Vgk, Vpk) estimate.
func (t *Triode) OperatingPoint() (vgk, vpk float64) { return t.lastVgk, t.lastVpk }

// PlateCurrent returns the plate current used by the last reflection.
func (t *Triode) PlateCurrent() float64 { return t.plateCurrent }

// ComputeReflection returns a - 2*R*Ip and updates the operating point.
func (t *Triode) ComputeReflection(a float64) float64 {
	t.incident = a
	var ip float64
	if t.solver == SolverFixedPoint {
		ip = t.solveFixedPoint(a)
	} else {
		ip = t.table.Lookup(t.lastVgk, t.lastVpk)
		t.lastVgk = t.gridVoltage
	}
	t.plateCurrent = ip
	t.reflected = a - 2.0*t.resistance*ip
	t.lastVpk = 0.5 * (a + t.reflected)
	return t.reflected
}

func (t *Triode) solveFixedPoint(a float64) float64 {
	vgk := t.gridVoltage
	v := t.lastVpk
	for i := 0; i < t.maxIter; i++ {
		next := a - t.resistance*t.table.Lookup(vgk, v)
		d := next - v
		v += fixedPointRelax * d
		if math.Abs(d) < fixedPointTolerance {
			break
		}
	}
	t.lastVgk = vgk
	return t.table.Lookup(vgk, v)
}

func (t *Triode) pendingReflection() float64 {
	vgk := t.lastVgk
	if t.solver == SolverFixedPoint {
		vgk = t.gridVoltage
	}
	return t.incident - 2.0*t.resistance*t.table.Lookup(vgk, t.lastVpk)
}

// SolveRestPoint returns the plate voltage where the load line from a supply
// wave a meets the plate curve at grid voltage vgk: Vpk = a - R*Ip(vgk, Vpk).
func (t *Triode) SolveRestPoint(a, vgk float64) float64 {
	lo := TableVpkMin
	hi := math.Min(a, TableVpkMax)
	if hi <= lo {
		return lo
	}
	f := func(v float64) float64 {
		return v - a + t.resistance*t.table.Lookup(vgk, v)
	}
	if f(lo) >= 0 {
		return lo
	}
	for i := 0; i < restBisectSteps; i++ {
		mid := 0.5 * (lo + hi)
		if f(mid) < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return 0.5 * (lo + hi)
}

// SetRestPoint sets the operating point Reset returns to and moves the
// triode there.
func (t *Triode) SetRestPoint(vgk, vpk float64) {
	t.restVgk = vgk
	t.restVpk = vpk
	t.Reset()
}

// RestPoint returns the configured rest point.
func (t *Triode) RestPoint() (vgk, vpk float64) { return t.restVgk, t.restVpk }

// Reset clears the wave registers and returns the operating point to the
// rest point.
func (t *Triode) Reset() {
	t.clearWaves()
	t.gridVoltage = t.restVgk
	t.lastVgk = t.restVgk
	t.lastVpk = t.restVpk
	t.plateCurrent = t.table.Lookup(t.restVgk, t.restVpk)
}
