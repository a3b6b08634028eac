package wdf

import (
	"errors"
	"math"
	"testing"
)

func newTestTriode(t *testing.T, r float64) *Triode {
	t.Helper()
	table, err := NewTriodeTable(Dempwolf12AX7(), DefaultTableSize)
	if err != nil {
		t.Fatalf("NewTriodeTable: %v", err)
	}
	tr, err := NewTriode(table, r)
	if err != nil {
		t.Fatalf("NewTriode: %v", err)
	}
	return tr
}

func TestTriodeTableCutoffRowIsZero(t *testing.T) {
	tr := newTestTriode(t, 22e3)
	table := tr.Table()
	for j := 0; j < table.Size(); j++ {
		if v := table.At(0, j); v != 0 {
			vgk, vpk := table.GridVoltages(0, j)
			t.Fatalf("table(%g, %g) = %g, want 0", vgk, vpk, v)
		}
	}
	for _, vpk := range []float64{0, 12.5, 250, 499.9, 500} {
		if v := table.Lookup(TableVgkMin, vpk); v != 0 {
			t.Fatalf("Lookup(-10, %g) = %g, want 0", vpk, v)
		}
	}
}

func TestTriodeTableMatchesModelAtGridPoints(t *testing.T) {
	m := Dempwolf12AX7()
	table, err := NewTriodeTable(m, 64)
	if err != nil {
		t.Fatalf("NewTriodeTable: %v", err)
	}
	for i := 0; i < 64; i += 7 {
		for j := 0; j < 64; j += 5 {
			vgk, vpk := table.GridVoltages(i, j)
			want := m.PlateCurrent(vgk, vpk)
			if got := table.Lookup(vgk, vpk); math.Abs(got-want) > 1e-12 {
				t.Fatalf("Lookup(%g, %g) = %g, want %g", vgk, vpk, got, want)
			}
		}
	}
}

func TestTriodeTableBilinearBetweenPoints(t *testing.T) {
	table, err := NewTriodeTable(Dempwolf12AX7(), 32)
	if err != nil {
		t.Fatalf("NewTriodeTable: %v", err)
	}
	i, j := 20, 12
	vgk0, vpk0 := table.GridVoltages(i, j)
	vgk1, vpk1 := table.GridVoltages(i+1, j+1)
	got := table.Lookup(0.5*(vgk0+vgk1), 0.5*(vpk0+vpk1))
	want := 0.25 * (table.At(i, j) + table.At(i+1, j) + table.At(i, j+1) + table.At(i+1, j+1))
	if math.Abs(got-want) > 1e-15 {
		t.Fatalf("cell centre = %g, want %g", got, want)
	}
}

func TestTriodeTableClampsOutOfRange(t *testing.T) {
	tr := newTestTriode(t, 22e3)
	table := tr.Table()
	n := table.Size() - 1
	cases := []struct {
		vgk, vpk float64
		want     float64
	}{
		{vgk: 40, vpk: 900, want: table.At(n, n)},
		{vgk: 40, vpk: -50, want: table.At(n, 0)},
		{vgk: -99, vpk: 900, want: table.At(0, n)},
		{vgk: math.NaN(), vpk: math.NaN(), want: table.At(0, 0)},
	}
	for _, tc := range cases {
		got := table.Lookup(tc.vgk, tc.vpk)
		if got != tc.want {
			t.Fatalf("Lookup(%g, %g) = %g, want edge value %g", tc.vgk, tc.vpk, got, tc.want)
		}
	}
}

func TestPlateCurrentModel(t *testing.T) {
	m := Dempwolf12AX7()
	if ip := m.PlateCurrent(-5, 100); ip != 0 {
		t.Fatalf("E1<0 should cut off, got %g", ip)
	}
	ip := m.PlateCurrent(-1.5, 241.3)
	if ip < 3e-4 || ip > 5e-4 {
		t.Fatalf("quiescent plate current = %g A, want about 0.4 mA", ip)
	}
	if ip := m.PlateCurrent(5, 500); ip != maxPlateCurrent {
		t.Fatalf("saturation not clamped: %g", ip)
	}
	prev := 0.0
	for vgk := -3.0; vgk <= 0; vgk += 0.25 {
		ip := m.PlateCurrent(vgk, 250)
		if ip < prev {
			t.Fatalf("plate current not monotonic in Vgk at %g", vgk)
		}
		prev = ip
	}
}

func TestTriodeTableSizeValidation(t *testing.T) {
	for _, n := range []int{-1, 0, 1, MaxTableSize + 1} {
		if _, err := NewTriodeTable(Dempwolf12AX7(), n); !errors.Is(err, ErrInvalidTableSize) {
			t.Fatalf("size %d: err = %v, want ErrInvalidTableSize", n, err)
		}
	}
	bad := Dempwolf12AX7()
	bad.Kg = 0
	if _, err := NewTriodeTable(bad, 16); err == nil {
		t.Fatal("expected error for kg = 0")
	}
}

func TestTriodeLaggedScattering(t *testing.T) {
	tr := newTestTriode(t, 22e3)
	tr.SetRestPoint(-1.5, 200)

	ip := tr.Table().Lookup(-1.5, 200)
	tr.SetGridVoltage(-0.5)
	b := tr.ComputeReflection(250)
	if want := 250 - 2*22e3*ip; b != want {
		t.Fatalf("reflected = %g, want %g", b, want)
	}
	vgk, vpk := tr.OperatingPoint()
	if vgk != -0.5 {
		t.Fatalf("lastVgk = %g, want pending grid voltage -0.5", vgk)
	}
	if want := 0.5 * (250 + b); vpk != want {
		t.Fatalf("lastVpk = %g, want %g", vpk, want)
	}
	if tr.PlateCurrent() != ip {
		t.Fatalf("plate current = %g, want %g", tr.PlateCurrent(), ip)
	}
}

func TestTriodeRestPointIsOnLoadLine(t *testing.T) {
	tr := newTestTriode(t, 22e3)
	v := tr.SolveRestPoint(250, -1.5)
	ip := tr.Table().Lookup(-1.5, v)
	if d := math.Abs(v - (250 - 22e3*ip)); d > 1e-6 {
		t.Fatalf("rest point off load line by %g V", d)
	}
	if v < 230 || v > 250 {
		t.Fatalf("rest plate voltage = %g, want about 241 V", v)
	}
}

func TestTriodeResetReturnsToRestPoint(t *testing.T) {
	tr := newTestTriode(t, 22e3)
	tr.SetRestPoint(-1.5, 241)
	for i := 0; i < 10; i++ {
		tr.SetGridVoltage(0.3)
		tr.ComputeReflection(250)
	}
	tr.Reset()
	vgk, vpk := tr.OperatingPoint()
	if vgk != -1.5 || vpk != 241 {
		t.Fatalf("operating point after reset = (%g, %g), want (-1.5, 241)", vgk, vpk)
	}
	if tr.IncidentWave() != 0 || tr.ReflectedWave() != 0 {
		t.Fatal("wave registers not cleared")
	}
}

func TestTriodeFixedPointSolvesPlateEquation(t *testing.T) {
	tr := newTestTriode(t, 22e3)
	if err := tr.SetSolver(SolverFixedPoint, 32); err != nil {
		t.Fatalf("SetSolver: %v", err)
	}
	tr.SetRestPoint(-1.5, tr.SolveRestPoint(250, -1.5))
	tr.SetGridVoltage(-0.8)
	tr.ComputeReflection(250)
	vgk, vpk := tr.OperatingPoint()
	if vgk != -0.8 {
		t.Fatalf("fixed-point solver must use the current grid voltage, got %g", vgk)
	}
	residual := vpk - (250 - 22e3*tr.Table().Lookup(vgk, vpk))
	if math.Abs(residual) > 1e-3 {
		t.Fatalf("plate equation residual = %g V", residual)
	}
}

func TestTriodeFixedPointTracksHighFrequenciesBetter(t *testing.T) {
	swing := func(solver TriodeSolver, freq float64) float64 {
		tr := newTestTriode(t, 22e3)
		if err := tr.SetSolver(solver, DefaultFixedPointIterations); err != nil {
			t.Fatalf("SetSolver: %v", err)
		}
		tr.SetRestPoint(-1.5, tr.SolveRestPoint(250, -1.5))
		lo := math.Inf(1)
		for n := 0; n < 4800; n++ {
			vg := math.Sin(2 * math.Pi * freq * float64(n) / 48000)
			tr.SetGridVoltage(-1.5 + vg)
			b := tr.ComputeReflection(250)
			if n >= 2400 && b < lo {
				lo = b
			}
		}
		return lo
	}
	lagErr := math.Abs(swing(SolverLagged, 10000) - swing(SolverLagged, 100))
	fpErr := math.Abs(swing(SolverFixedPoint, 10000) - swing(SolverFixedPoint, 100))
	if fpErr >= lagErr {
		t.Fatalf("fixed-point error %g V should be below lagged error %g V", fpErr, lagErr)
	}
}

func TestTriodeSolverValidation(t *testing.T) {
	tr := newTestTriode(t, 22e3)
	if err := tr.SetSolver(TriodeSolver(7), 8); err == nil {
		t.Fatal("expected error for unknown solver")
	}
	if err := tr.SetSolver(SolverFixedPoint, 0); err == nil {
		t.Fatal("expected error for zero iterations")
	}
	for _, name := range []string{"lagged", "fixed-point"} {
		s, err := ParseTriodeSolver(name)
		if err != nil {
			t.Fatalf("ParseTriodeSolver(%q): %v", name, err)
		}
		if s.String() != name {
			t.Fatalf("round trip %q -> %q", name, s.String())
		}
	}
	if _, err := ParseTriodeSolver("newton"); err == nil {
		t.Fatal("expected error for unknown solver name")
	}
}

func TestTriodeInsideAdaptorTree(t *testing.T) {
	tr := newTestTriode(t, 22e3)
	tr.SetRestPoint(-1.5, 200)
	// Two nested series adaptors keep the triode port in source polarity.
	inner, err := NewSeries(mustResistor(t, 1e3), tr)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	tree, err := NewSeries(mustResistor(t, 100e3), inner)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	vs := mustSource(t)
	vs.SetVoltage(250)

	lo, hi := math.Inf(1), math.Inf(-1)
	for n := 0; n < 4800; n++ {
		tr.SetGridVoltage(-1.5 + 2*math.Sin(2*math.Pi*440*float64(n)/48000))
		Drive(vs, tree)
		v := Voltage(tr)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite plate voltage at %d", n)
		}
		if n >= 2400 {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo <= 0 || hi > 250+1e-6 {
		t.Fatalf("plate voltage left the load line: [%g, %g]", lo, hi)
	}
	if hi-lo < 50 {
		t.Fatalf("plate swing = %g V, want an amplified grid signal", hi-lo)
	}
}
