package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-tubeamp/amp"
	"github.com/cwbudde/algo-tubeamp/wdf"
)

// File is the JSON schema for amp presets. Absent fields keep their
// default values.
type File struct {
	Gain   *float64 `json:"gain,omitempty"`
	Bass   *float64 `json:"bass,omitempty"`
	Treble *float64 `json:"treble,omitempty"`
	Master *float64 `json:"master,omitempty"`

	SupplyVoltage       *float64 `json:"supply_voltage,omitempty"`
	PlateResistance     *float64 `json:"plate_resistance,omitempty"`
	Bias                *float64 `json:"bias,omitempty"`
	CouplingCapacitance *float64 `json:"coupling_capacitance,omitempty"`
	GridResistance      *float64 `json:"grid_resistance,omitempty"`
	GridStopper         *float64 `json:"grid_stopper,omitempty"`
	MillerCapacitance   *float64 `json:"miller_capacitance,omitempty"`
	GridClamp           *float64 `json:"grid_clamp,omitempty"`
	OutputScale         *float64 `json:"output_scale,omitempty"`
	DriveRangeDB        *float64 `json:"drive_range_db,omitempty"`

	Topology             string       `json:"topology,omitempty"`
	Solver               string       `json:"solver,omitempty"`
	FixedPointIterations *int         `json:"fixed_point_iterations,omitempty"`
	TableSize            *int         `json:"table_size,omitempty"`
	Tube                 *TubeSetting `json:"tube,omitempty"`

	BassHz       *float64 `json:"bass_hz,omitempty"`
	TrebleHz     *float64 `json:"treble_hz,omitempty"`
	ShelfQ       *float64 `json:"shelf_q,omitempty"`
	ShelfRangeDB *float64 `json:"shelf_range_db,omitempty"`

	CabinetLength *int            `json:"cabinet_length,omitempty"`
	CabinetIRPath string          `json:"cabinet_ir_wav_path,omitempty"`
	CabinetSynth  *CabinetSetting `json:"cabinet_synth,omitempty"`
}

// TubeSetting overrides the triode plate-current model.
type TubeSetting struct {
	Mu  *float64 `json:"mu,omitempty"`
	G   *float64 `json:"g,omitempty"`
	Ex  *float64 `json:"ex,omitempty"`
	Kp  *float64 `json:"kp,omitempty"`
	Kg  *float64 `json:"kg,omitempty"`
	Kvb *float64 `json:"kvb,omitempty"`
}

// CabinetSetting overrides the most commonly tuned cabinet synthesis knobs.
type CabinetSetting struct {
	Seed         *int64   `json:"seed,omitempty"`
	ConeHz       *float64 `json:"cone_hz,omitempty"`
	ConeLevel    *float64 `json:"cone_level,omitempty"`
	BreakupLowHz *float64 `json:"breakup_low_hz,omitempty"`
	BreakupHiHz  *float64 `json:"breakup_high_hz,omitempty"`
	Brightness   *float64 `json:"brightness,omitempty"`
}

// LoadJSON loads a preset JSON file and applies it on top of default params.
func LoadJSON(path string) (*amp.Params, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}

	p := amp.NewDefaultParams()
	if err := ApplyFile(p, &f); err != nil {
		return nil, err
	}

	if p.CabinetIRPath != "" && !filepath.IsAbs(p.CabinetIRPath) {
		base := filepath.Dir(path)
		p.CabinetIRPath = filepath.Clean(filepath.Join(base, p.CabinetIRPath))
	}
	return p, nil
}

// SaveJSON writes every preset-visible field of p to path.
func SaveJSON(path string, p *amp.Params) error {
	if p == nil {
		return fmt.Errorf("nil params")
	}
	b, err := json.MarshalIndent(FromParams(p), "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// FromParams builds a fully populated File from p.
func FromParams(p *amp.Params) *File {
	f64 := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }
	seed := p.Cabinet.Seed
	return &File{
		Gain:   f64(p.Gain),
		Bass:   f64(p.Bass),
		Treble: f64(p.Treble),
		Master: f64(p.Master),

		SupplyVoltage:       f64(p.SupplyVoltage),
		PlateResistance:     f64(p.PlateResistance),
		Bias:                f64(p.Bias),
		CouplingCapacitance: f64(p.CouplingCapacitance),
		GridResistance:      f64(p.GridResistance),
		GridStopper:         f64(p.GridStopper),
		MillerCapacitance:   f64(p.MillerCapacitance),
		GridClamp:           f64(p.GridClamp),
		OutputScale:         f64(p.OutputScale),
		DriveRangeDB:        f64(p.DriveRangeDB),

		Topology:             p.Topology.String(),
		Solver:               p.Solver.String(),
		FixedPointIterations: i(p.FixedPointIterations),
		TableSize:            i(p.TableSize),
		Tube: &TubeSetting{
			Mu:  f64(p.Tube.Mu),
			G:   f64(p.Tube.G),
			Ex:  f64(p.Tube.Ex),
			Kp:  f64(p.Tube.Kp),
			Kg:  f64(p.Tube.Kg),
			Kvb: f64(p.Tube.Kvb),
		},

		BassHz:       f64(p.BassHz),
		TrebleHz:     f64(p.TrebleHz),
		ShelfQ:       f64(p.ShelfQ),
		ShelfRangeDB: f64(p.ShelfRangeDB),

		CabinetLength: i(p.CabinetLength),
		CabinetIRPath: p.CabinetIRPath,
		CabinetSynth: &CabinetSetting{
			Seed:         &seed,
			ConeHz:       f64(p.Cabinet.ConeHz),
			ConeLevel:    f64(p.Cabinet.ConeLevel),
			BreakupLowHz: f64(p.Cabinet.BreakupLowHz),
			BreakupHiHz:  f64(p.Cabinet.BreakupHighHz),
			Brightness:   f64(p.Cabinet.Brightness),
		},
	}
}

func setUnit(dst *float64, v *float64, name string) error {
	if v == nil {
		return nil
	}
	if *v < 0 || *v > 1 {
		return fmt.Errorf("%s must be in [0,1]", name)
	}
	*dst = *v
	return nil
}

func setPositive(dst *float64, v *float64, name string) error {
	if v == nil {
		return nil
	}
	if *v <= 0 {
		return fmt.Errorf("%s must be > 0", name)
	}
	*dst = *v
	return nil
}

// ApplyFile applies a parsed preset file onto an existing params object.
func ApplyFile(dst *amp.Params, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination params")
	}
	if f == nil {
		return nil
	}

	units := []struct {
		dst  *float64
		v    *float64
		name string
	}{
		{&dst.Gain, f.Gain, "gain"},
		{&dst.Bass, f.Bass, "bass"},
		{&dst.Treble, f.Treble, "treble"},
		{&dst.Master, f.Master, "master"},
	}
	for _, u := range units {
		if err := setUnit(u.dst, u.v, u.name); err != nil {
			return err
		}
	}

	positives := []struct {
		dst  *float64
		v    *float64
		name string
	}{
		{&dst.SupplyVoltage, f.SupplyVoltage, "supply_voltage"},
		{&dst.PlateResistance, f.PlateResistance, "plate_resistance"},
		{&dst.CouplingCapacitance, f.CouplingCapacitance, "coupling_capacitance"},
		{&dst.GridResistance, f.GridResistance, "grid_resistance"},
		{&dst.GridStopper, f.GridStopper, "grid_stopper"},
		{&dst.MillerCapacitance, f.MillerCapacitance, "miller_capacitance"},
		{&dst.OutputScale, f.OutputScale, "output_scale"},
		{&dst.BassHz, f.BassHz, "bass_hz"},
		{&dst.TrebleHz, f.TrebleHz, "treble_hz"},
		{&dst.ShelfQ, f.ShelfQ, "shelf_q"},
	}
	for _, u := range positives {
		if err := setPositive(u.dst, u.v, u.name); err != nil {
			return err
		}
	}

	if f.SupplyVoltage != nil && *f.SupplyVoltage > wdf.TableVpkMax {
		return fmt.Errorf("supply_voltage must be <= %g", wdf.TableVpkMax)
	}
	if f.Bias != nil {
		if *f.Bias > 0 || *f.Bias < wdf.TableVgkMin {
			return fmt.Errorf("bias must be in [%g,0]", wdf.TableVgkMin)
		}
		dst.Bias = *f.Bias
	}
	if f.GridClamp != nil {
		if *f.GridClamp < dst.Bias || *f.GridClamp > wdf.TableVgkMax {
			return fmt.Errorf("grid_clamp must be in [bias,%g]", wdf.TableVgkMax)
		}
		dst.GridClamp = *f.GridClamp
	}
	if f.DriveRangeDB != nil {
		if *f.DriveRangeDB < 0 || *f.DriveRangeDB > 60 {
			return fmt.Errorf("drive_range_db must be in [0,60]")
		}
		dst.DriveRangeDB = *f.DriveRangeDB
	}
	if f.ShelfRangeDB != nil {
		if *f.ShelfRangeDB < 0 || *f.ShelfRangeDB > 24 {
			return fmt.Errorf("shelf_range_db must be in [0,24]")
		}
		dst.ShelfRangeDB = *f.ShelfRangeDB
	}

	if f.Topology != "" {
		t, err := amp.ParseTopology(f.Topology)
		if err != nil {
			return err
		}
		dst.Topology = t
	}
	if f.Solver != "" {
		s, err := wdf.ParseTriodeSolver(strings.TrimSpace(f.Solver))
		if err != nil {
			return err
		}
		dst.Solver = s
	}
	if f.FixedPointIterations != nil {
		if *f.FixedPointIterations < 1 || *f.FixedPointIterations > 64 {
			return fmt.Errorf("fixed_point_iterations must be in 1..64")
		}
		dst.FixedPointIterations = *f.FixedPointIterations
	}
	if f.TableSize != nil {
		if *f.TableSize < 2 || *f.TableSize > wdf.MaxTableSize {
			return fmt.Errorf("table_size must be in 2..%d", wdf.MaxTableSize)
		}
		dst.TableSize = *f.TableSize
	}
	if f.Tube != nil {
		if err := applyTube(&dst.Tube, f.Tube); err != nil {
			return err
		}
	}

	if f.CabinetLength != nil {
		if *f.CabinetLength < 1 {
			return fmt.Errorf("cabinet_length must be >= 1")
		}
		dst.CabinetLength = *f.CabinetLength
	}
	if f.CabinetIRPath != "" {
		dst.CabinetIRPath = strings.TrimSpace(f.CabinetIRPath)
	}
	if c := f.CabinetSynth; c != nil {
		if c.Seed != nil {
			dst.Cabinet.Seed = *c.Seed
		}
		if err := setPositive(&dst.Cabinet.ConeHz, c.ConeHz, "cabinet_synth.cone_hz"); err != nil {
			return err
		}
		if c.ConeLevel != nil {
			if *c.ConeLevel < 0 {
				return fmt.Errorf("cabinet_synth.cone_level must be >= 0")
			}
			dst.Cabinet.ConeLevel = *c.ConeLevel
		}
		if err := setPositive(&dst.Cabinet.BreakupLowHz, c.BreakupLowHz, "cabinet_synth.breakup_low_hz"); err != nil {
			return err
		}
		if err := setPositive(&dst.Cabinet.BreakupHighHz, c.BreakupHiHz, "cabinet_synth.breakup_high_hz"); err != nil {
			return err
		}
		if err := setPositive(&dst.Cabinet.Brightness, c.Brightness, "cabinet_synth.brightness"); err != nil {
			return err
		}
		if dst.Cabinet.BreakupHighHz < dst.Cabinet.BreakupLowHz {
			return fmt.Errorf("cabinet_synth.breakup_high_hz must be >= breakup_low_hz")
		}
	}
	return nil
}

func applyTube(dst *wdf.TriodeModel, t *TubeSetting) error {
	next := *dst
	fields := []struct {
		dst *float64
		v   *float64
	}{
		{&next.Mu, t.Mu}, {&next.G, t.G}, {&next.Ex, t.Ex},
		{&next.Kp, t.Kp}, {&next.Kg, t.Kg}, {&next.Kvb, t.Kvb},
	}
	for _, fld := range fields {
		if fld.v != nil {
			*fld.dst = *fld.v
		}
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("tube: %w", err)
	}
	*dst = next
	return nil
}
