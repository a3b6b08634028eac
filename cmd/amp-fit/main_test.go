package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-tubeamp/amp"
	"github.com/cwbudde/algo-tubeamp/analysis"
	"github.com/cwbudde/algo-tubeamp/preset"
)

func TestPresetIRPathRelativizesFromPresetDir(t *testing.T) {
	presetPath := filepath.Join("assets", "presets", "fitted.json")
	irPath := filepath.Join("assets", "ir", "v30_4x12.wav")

	got := presetIRPath(presetPath, irPath)
	want := filepath.ToSlash(filepath.Join("..", "ir", "v30_4x12.wav"))
	if got != want {
		t.Fatalf("presetIRPath() = %q, want %q", got, want)
	}
	if got := presetIRPath(presetPath, "  "); got != "" {
		t.Fatalf("presetIRPath() = %q, want empty", got)
	}
}

func TestFromNormalizedMapsIntoRange(t *testing.T) {
	defs := []knobDef{
		{Name: "gain", Min: 0, Max: 1},
		{Name: "steps", Min: 1, Max: 9, IsInt: true},
	}
	c := fromNormalized([]float64{0.25, 0.49}, defs)
	if c.Vals[0] != 0.25 {
		t.Fatalf("gain = %g, want 0.25", c.Vals[0])
	}
	if c.Vals[1] != 5 {
		t.Fatalf("steps = %g, want 5", c.Vals[1])
	}
	c = fromNormalized([]float64{-3}, defs)
	if c.Vals[0] != 0 || c.Vals[1] != 1 {
		t.Fatalf("out-of-range/missing positions not clamped: %v", c.Vals)
	}
}

func TestApplyCandidateDoesNotMutateBase(t *testing.T) {
	base := amp.NewDefaultParams()
	defs, _ := initCandidate(base)
	p := applyCandidate(base, defs, candidate{Vals: []float64{0.9, 0.1, 0.2, 0.3}})
	if p.Gain != 0.9 || p.Bass != 0.1 || p.Treble != 0.2 || p.Master != 0.3 {
		t.Fatalf("knobs not applied: %+v", p)
	}
	if base.Gain != 0.5 || base.Master != 0.8 {
		t.Fatalf("base mutated: gain=%g master=%g", base.Gain, base.Master)
	}
}

func TestLoadCandidateFromReport(t *testing.T) {
	dir := t.TempDir()
	defs, fallback := initCandidate(amp.NewDefaultParams())

	got, ok, err := loadCandidateFromReport(filepath.Join(dir, "missing.json"), defs, fallback)
	if err != nil || ok {
		t.Fatalf("missing report: ok=%v err=%v", ok, err)
	}
	if got.Vals[0] != fallback.Vals[0] {
		t.Fatal("missing report should return fallback")
	}

	path := filepath.Join(dir, "fit.report.json")
	if err := writeJSON(path, runReport{BestKnobs: map[string]float64{"gain": 1.7, "treble": 0.3}}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	got, ok, err = loadCandidateFromReport(path, defs, fallback)
	if err != nil || !ok {
		t.Fatalf("report: ok=%v err=%v", ok, err)
	}
	if got.Vals[0] != 1 {
		t.Fatalf("gain = %g, want clamped 1", got.Vals[0])
	}
	if got.Vals[2] != 0.3 {
		t.Fatalf("treble = %g, want 0.3", got.Vals[2])
	}
	if got.Vals[1] != fallback.Vals[1] {
		t.Fatalf("bass = %g, want fallback %g", got.Vals[1], fallback.Vals[1])
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := loadCandidateFromReport(bad, defs, fallback); err == nil {
		t.Fatal("expected error for malformed report")
	}
}

func TestRendererMatchesFreshAmplifier(t *testing.T) {
	base := amp.NewDefaultParams()
	base.CabinetLength = 128
	if err := freezeCabinet(base, 48000); err != nil {
		t.Fatalf("freezeCabinet: %v", err)
	}
	defs, _ := initCandidate(base)
	c := candidate{Vals: []float64{0.8, 0.3, 0.7, 0.6}}

	in := make([]float64, 2000)
	for i := range in {
		in[i] = 0.4 * math.Sin(2*math.Pi*220*float64(i)/48000)
	}

	r, err := newRenderer(base, defs, 48000, len(in))
	if err != nil {
		t.Fatalf("newRenderer: %v", err)
	}
	// A prior render must not leak state into the next one.
	r.render(in, candidate{Vals: []float64{1, 1, 1, 1}})
	got := append([]float64(nil), r.render(in, c)...)

	a, err := amp.NewAmplifier(48000, applyCandidate(base, defs, c))
	if err != nil {
		t.Fatalf("NewAmplifier: %v", err)
	}
	want := a.Process(in)
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("sample %d: got %g want %g", i, got[i], want[i])
		}
	}
}

func TestRendererSelfScoreIsPerfect(t *testing.T) {
	base := amp.NewDefaultParams()
	base.CabinetLength = 128
	defs, init := initCandidate(base)
	in := make([]float64, 48000/2)
	for i := range in {
		in[i] = 0.5 * math.Sin(2*math.Pi*110*float64(i)/48000) * math.Exp(-float64(i)/12000)
	}
	r, err := newRenderer(base, defs, 48000, len(in))
	if err != nil {
		t.Fatalf("newRenderer: %v", err)
	}
	cfg := &optimizationConfig{input: in, sampleRate: 48000}
	cfg.reference = append([]float64(nil), r.render(in, init)...)

	m := r.evaluate(cfg, init)
	if m.Score > 1e-6 {
		t.Fatalf("self score = %g, want ~0", m.Score)
	}
	other := r.evaluate(cfg, candidate{Vals: []float64{1, 0, 1, 0.8}})
	if other.Score <= m.Score {
		t.Fatalf("different knobs score %g not worse than self %g", other.Score, m.Score)
	}
}

func TestWriteOutputsSavesLoadablePreset(t *testing.T) {
	dir := t.TempDir()
	base := amp.NewDefaultParams()
	base.CabinetLength = 128
	defs, _ := initCandidate(base)
	cfg := &optimizationConfig{
		baseParams:    base,
		defs:          defs,
		sampleRate:    48000,
		mayflyVariant: "DESMA",
		outputPreset:  filepath.Join(dir, "presets", "fitted.json"),
	}
	best := candidate{Vals: []float64{0.7, 0.4, 0.6, 0.5}}
	if err := writeOutputs(cfg, 1.5, 42, best, analysis.Metrics{Score: 0.2, Similarity: 0.45}, 1); err != nil {
		t.Fatalf("writeOutputs: %v", err)
	}
	p, err := preset.LoadJSON(cfg.outputPreset)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if p.Gain != 0.7 || p.Bass != 0.4 || p.Treble != 0.6 || p.Master != 0.5 {
		t.Fatalf("fitted knobs not saved: gain=%g bass=%g treble=%g master=%g", p.Gain, p.Bass, p.Treble, p.Master)
	}
	got, ok, err := loadCandidateFromReport(cfg.outputPreset+".report.json", defs, candidate{Vals: make([]float64, 4)})
	if err != nil || !ok {
		t.Fatalf("report reload: ok=%v err=%v", ok, err)
	}
	for i := range best.Vals {
		if got.Vals[i] != best.Vals[i] {
			t.Fatalf("report knob %d = %g, want %g", i, got.Vals[i], best.Vals[i])
		}
	}
}

func TestNewMayflyConfig(t *testing.T) {
	for _, v := range []string{"ma", "desma", "olce", "eobbma", "gsasma", "mpma", "aoblmoa"} {
		cfg, err := newMayflyConfig(v, 10, 4, 3)
		if err != nil {
			t.Fatalf("%s: %v", v, err)
		}
		if cfg.ProblemSize != 4 || cfg.NC != 20 || cfg.NM != 1 {
			t.Fatalf("%s: unexpected config dims=%d nc=%d nm=%d", v, cfg.ProblemSize, cfg.NC, cfg.NM)
		}
	}
	if _, err := newMayflyConfig("pso", 10, 4, 3); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestReserveEvalStopsAtLimit(t *testing.T) {
	var evals evalCounter
	for i := 1; i <= 3; i++ {
		n, ok := evals.reserve(3)
		if !ok || n != int64(i) {
			t.Fatalf("reserve %d: n=%d ok=%v", i, n, ok)
		}
	}
	if _, ok := evals.reserve(3); ok {
		t.Fatal("reserve beyond limit succeeded")
	}
}

func TestFitRunRecordKeepsBest(t *testing.T) {
	run := &fitRun{cfg: &optimizationConfig{checkpointEvery: 1000}, bestMetrics: analysis.Metrics{Score: 0.5}}
	if _, ok := run.record(candidate{Vals: []float64{0.1}}, analysis.Metrics{Score: 0.6}); ok {
		t.Fatal("worse score recorded as improvement")
	}
	c := candidate{Vals: []float64{0.2}}
	imp, ok := run.record(c, analysis.Metrics{Score: 0.3})
	if !ok || imp.seq != 1 || run.bestScore() != 0.3 {
		t.Fatalf("improvement not recorded: ok=%v seq=%d best=%g", ok, imp.seq, run.bestScore())
	}
	c.Vals[0] = 0.9
	if run.best.Vals[0] != 0.2 || imp.best.Vals[0] != 0.2 {
		t.Fatal("recorded candidate aliases the caller's slice")
	}
	run.persist(imp)
	run.persist(imp)
	if run.persisted != 1 {
		t.Fatalf("persisted = %d, want 1", run.persisted)
	}
}
