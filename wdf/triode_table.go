package wdf

import (
	"errors"
	"fmt"
	"math"
)

const (
	// Grid-cathode and plate-cathode voltage ranges covered by the table.
	TableVgkMin = -10.0
	TableVgkMax = 5.0
	TableVpkMin = 0.0
	TableVpkMax = 500.0

	// DefaultTableSize is the number of grid points along each axis.
	DefaultTableSize = 256
	// MaxTableSize bounds the table allocation to 4096*4096 samples.
	MaxTableSize = 4096

	maxPlateCurrent = 0.020
)

var ErrInvalidTableSize = errors.New("wdf: triode table size out of range")

// TriodeModel holds the coefficients of the Dempwolf plate-current equation.
type TriodeModel struct {
	Mu  float64
	G   float64
	Ex  float64
	Kp  float64
	Kg  float64
	Kvb float64
}

// Dempwolf12AX7 returns coefficients for a 12AX7 / ECC83 stage.
func Dempwolf12AX7() TriodeModel {
	return TriodeModel{
		Mu:  100.0,
		G:   2.242e-3,
		Ex:  1.26,
		Kp:  3.4,
		Kg:  22.0,
		Kvb: 0.0,
	}
}

// Validate reports whether the model coefficients can produce a table.
func (m TriodeModel) Validate() error {
	if !(m.Mu > 0) {
		return fmt.Errorf("mu must be > 0")
	}
	if !(m.Kg > 0) {
		return fmt.Errorf("kg must be > 0")
	}
	if !(m.Ex > 0) {
		return fmt.Errorf("ex must be > 0")
	}
	if !isFinite(m.G) || !isFinite(m.Kp) || !isFinite(m.Kvb) {
		return fmt.Errorf("coefficients must be finite")
	}
	return nil
}

// PlateCurrent evaluates the closed-form model in amps, clamped to [0, 20 mA].
func (m TriodeModel) PlateCurrent(vgk, vpk float64) float64 {
	e1 := vpk/m.Mu + vgk
	if e1 < 0 {
		return 0
	}
	// Exponent capped at 50.
	soft := math.Log1p(math.Exp(math.Min(m.Kp*e1, 50.0)))
	ip := (m.G*e1*math.Pow(soft, m.Ex) + m.Kvb) / m.Kg
	if ip < 0 || math.IsNaN(ip) {
		return 0
	}
	if ip > maxPlateCurrent {
		return maxPlateCurrent
	}
	return ip
}

// TriodeTable is a precomputed plate-current grid over (Vgk, Vpk) with
// bilinear interpolation. Out-of-range voltages clamp to the grid edge.
type TriodeTable struct {
	size    int
	vgkStep float64
	vpkStep float64
	data    []float64 // row-major, row = vgk index
}

// NewTriodeTable samples m on a size x size grid.
func NewTriodeTable(m TriodeModel, size int) (*TriodeTable, error) {
	if size < 2 || size > MaxTableSize {
		return nil, fmt.Errorf("%w: %d (want 2..%d)", ErrInvalidTableSize, size, MaxTableSize)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("wdf: triode model: %w", err)
	}
	t := &TriodeTable{
		size:    size,
		vgkStep: (TableVgkMax - TableVgkMin) / float64(size-1),
		vpkStep: (TableVpkMax - TableVpkMin) / float64(size-1),
		data:    make([]float64, size*size),
	}
	for i := 0; i < size; i++ {
		vgk := TableVgkMin + float64(i)*t.vgkStep
		row := t.data[i*size : (i+1)*size]
		for j := range row {
			row[j] = m.PlateCurrent(vgk, TableVpkMin+float64(j)*t.vpkStep)
		}
	}
	return t, nil
}

// Size returns the number of grid points per axis.
func (t *TriodeTable) Size() int { return t.size }

// At returns the stored sample at grid index (i, j).
func (t *TriodeTable) At(i, j int) float64 { return t.data[i*t.size+j] }

// GridVoltages returns the (Vgk, Vpk) coordinates of grid index (i, j).
func (t *TriodeTable) GridVoltages(i, j int) (float64, float64) {
	return TableVgkMin + float64(i)*t.vgkStep, TableVpkMin + float64(j)*t.vpkStep
}

// Lookup returns the bilinearly interpolated plate current.
func (t *TriodeTable) Lookup(vgk, vpk float64) float64 {
	i, fx := t.cell(vgk, TableVgkMin, t.vgkStep)
	j, fy := t.cell(vpk, TableVpkMin, t.vpkStep)

	r0 := t.data[i*t.size+j:]
	r1 := t.data[(i+1)*t.size+j:]
	top := r0[0]*(1-fy) + r0[1]*fy
	bot := r1[0]*(1-fy) + r1[1]*fy
	return top*(1-fx) + bot*fx
}

// cell maps v to the lower grid index and the fractional offset inside the
// cell. NaN lands on the lower edge.
func (t *TriodeTable) cell(v, lo, step float64) (int, float64) {
	x := (v - lo) / step
	if !(x > 0) {
		return 0, 0
	}
	last := float64(t.size - 1)
	if x >= last {
		return t.size - 2, 1
	}
	k := int(x)
	return k, x - float64(k)
}
