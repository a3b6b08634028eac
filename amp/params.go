package amp

import (
	"fmt"
	"strings"

	"github.com/cwbudde/algo-tubeamp/cabsynth"
	"github.com/cwbudde/algo-tubeamp/wdf"
)

// Topology selects how the grid network in front of the triode is evaluated.
type Topology int

const (
	// TopologyDirect calls the grid-side leaves one after another in signal
	// order without adaptors.
	TopologyDirect Topology = iota
	// TopologyAdapted evaluates the grid network as a full adaptor tree:
	// Series(stopper, Series(coupling, Parallel(grid, miller))).
	TopologyAdapted
)

func (t Topology) String() string {
	switch t {
	case TopologyDirect:
		return "direct"
	case TopologyAdapted:
		return "adapted"
	default:
		return fmt.Sprintf("Topology(%d)", int(t))
	}
}

// ParseTopology maps "direct" or "adapted" to a Topology.
func ParseTopology(name string) (Topology, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "direct":
		return TopologyDirect, nil
	case "adapted":
		return TopologyAdapted, nil
	default:
		return 0, fmt.Errorf("amp: unknown topology %q (use direct or adapted)", name)
	}
}

// Params holds the construction-time configuration of an Amplifier.
type Params struct {
	// Controls, each in [0,1].
	Gain   float64
	Bass   float64
	Treble float64
	Master float64

	// Preamp circuit.
	SupplyVoltage       float64 // B+ in volts
	PlateResistance     float64 // ohms
	Bias                float64 // grid bias in volts
	CouplingCapacitance float64 // farads
	GridResistance      float64 // ohms
	GridStopper         float64 // ohms, adapted topology only
	MillerCapacitance   float64 // farads, adapted topology only
	GridClamp           float64 // max grid-cathode voltage
	OutputScale         float64 // volts of plate swing mapped to tanh(1)
	DriveRangeDB        float64 // gain 0..1 spans -DriveRangeDB..+DriveRangeDB

	Topology             Topology
	Solver               wdf.TriodeSolver
	FixedPointIterations int
	Tube                 wdf.TriodeModel
	TableSize            int

	// Tonestack.
	BassHz       float64
	TrebleHz     float64
	ShelfQ       float64
	ShelfRangeDB float64

	// Cabinet. CabinetIR, then CabinetIRPath, override the synthesized
	// response.
	CabinetLength int
	CabinetIR     []float64
	CabinetIRPath string
	Cabinet       cabsynth.Config
}

// NewDefaultParams returns a 12AX7 stage with neutral tone controls.
func NewDefaultParams() *Params {
	return &Params{
		Gain:   0.5,
		Bass:   0.5,
		Treble: 0.5,
		Master: 0.8,

		SupplyVoltage:       250.0,
		PlateResistance:     22e3,
		Bias:                -1.5,
		CouplingCapacitance: 22e-9,
		GridResistance:      1e6,
		GridStopper:         68e3,
		MillerCapacitance:   170e-12,
		GridClamp:           0.5,
		OutputScale:         25.0,
		DriveRangeDB:        20.0,

		Topology:             TopologyDirect,
		Solver:               wdf.SolverLagged,
		FixedPointIterations: wdf.DefaultFixedPointIterations,
		Tube:                 wdf.Dempwolf12AX7(),
		TableSize:            wdf.DefaultTableSize,

		BassHz:       200.0,
		TrebleHz:     2000.0,
		ShelfQ:       0.707,
		ShelfRangeDB: 12.0,

		CabinetLength: 2048,
		Cabinet:       cabsynth.DefaultConfig(),
	}
}

// Validate checks the construction-time fields. Control values are not
// validated; they are clamped when applied.
func (p *Params) Validate(sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: %d", wdf.ErrInvalidSampleRate, sampleRate)
	}
	nyquist := 0.5 * float64(sampleRate)
	switch {
	case p.SupplyVoltage <= 0 || p.SupplyVoltage > wdf.TableVpkMax:
		return fmt.Errorf("amp: supply_voltage must be in (0, %g]", wdf.TableVpkMax)
	case p.PlateResistance <= 0:
		return fmt.Errorf("amp: plate_resistance must be > 0")
	case p.CouplingCapacitance <= 0:
		return fmt.Errorf("amp: coupling_capacitance must be > 0")
	case p.GridResistance <= 0:
		return fmt.Errorf("amp: grid_resistance must be > 0")
	case p.Topology == TopologyAdapted && (p.GridStopper <= 0 || p.MillerCapacitance <= 0):
		return fmt.Errorf("amp: grid_stopper and miller_capacitance must be > 0")
	case p.OutputScale <= 0:
		return fmt.Errorf("amp: output_scale must be > 0")
	case p.DriveRangeDB < 0:
		return fmt.Errorf("amp: drive_range_db must be >= 0")
	case p.Topology != TopologyDirect && p.Topology != TopologyAdapted:
		return fmt.Errorf("amp: unknown topology %v", p.Topology)
	case p.BassHz <= 0 || p.BassHz >= nyquist:
		return fmt.Errorf("amp: bass_hz must be in (0, %g)", nyquist)
	case p.TrebleHz <= 0 || p.TrebleHz >= nyquist:
		return fmt.Errorf("amp: treble_hz must be in (0, %g)", nyquist)
	case p.ShelfQ <= 0:
		return fmt.Errorf("amp: shelf_q must be > 0")
	case p.ShelfRangeDB < 0:
		return fmt.Errorf("amp: shelf_range_db must be >= 0")
	case p.CabinetLength < 1:
		return fmt.Errorf("amp: cabinet_length must be >= 1")
	}
	return nil
}
