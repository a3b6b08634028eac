package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/cwbudde/algo-tubeamp/amp"
	"github.com/cwbudde/algo-tubeamp/analysis"
	"github.com/cwbudde/algo-tubeamp/internal/audioio"
	"github.com/cwbudde/algo-tubeamp/preset"
)

type knobDef struct {
	Name  string
	Min   float64
	Max   float64
	IsInt bool
}

type candidate struct {
	Vals []float64
}

type runReport struct {
	InputPath       string             `json:"input_path"`
	ReferencePath   string             `json:"reference_path"`
	PresetPath      string             `json:"preset_path"`
	OutputPreset    string             `json:"output_preset"`
	SampleRate      int                `json:"sample_rate"`
	DurationSec     float64            `json:"elapsed_seconds"`
	Evaluations     int                `json:"evaluations"`
	MayflyVariant   string             `json:"mayfly_variant"`
	BestScore       float64            `json:"best_score"`
	BestSimilarity  float64            `json:"best_similarity"`
	BestMetrics     analysis.Metrics   `json:"best_metrics"`
	BestKnobs       map[string]float64 `json:"best_knobs"`
	CheckpointCount int                `json:"checkpoint_count"`
}

func main() {
	inputPath := flag.String("input", "", "DI input WAV path fed through the amp")
	referencePath := flag.String("reference", "", "Reference WAV path (the target amp rendering of -input)")
	presetPath := flag.String("preset", "", "Base preset JSON path (empty = defaults)")
	outputPreset := flag.String("output-preset", "assets/presets/fitted.json", "Path to write best fitted preset JSON")
	reportPath := flag.String("report", "", "Optional report JSON path (default: <output-preset>.report.json)")
	sampleRate := flag.Int("sample-rate", 48000, "Render/analysis sample rate")
	maxDuration := flag.Float64("max-duration", 6.0, "Use at most this many seconds of input and reference")
	seed := flag.Int64("seed", 1, "Random seed")
	timeBudget := flag.Float64("time-budget", 120.0, "Optimization time budget in seconds")
	maxEvals := flag.Int("max-evals", 4000, "Maximum objective evaluations")
	reportEvery := flag.Int("report-every", 20, "Print progress every N evaluations")
	checkpointEvery := flag.Int("checkpoint-every", 1, "Write checkpoint every N best-score improvements")
	workers := flag.Int("workers", 0, "Parallel optimization workers (0 = GOMAXPROCS)")
	writeBestCandidate := flag.String("write-best-candidate", "", "Optional WAV path to write best candidate render")
	resume := flag.Bool("resume", true, "Resume from previous best_knobs report when available")
	resumeReport := flag.String("resume-report", "", "Optional report JSON path to resume from (default: current report path)")

	mayflyVariant := flag.String("mayfly-variant", "desma", "Mayfly variant: ma|desma|olce|eobbma|gsasma|mpma|aoblmoa")
	mayflyPop := flag.Int("mayfly-pop", 10, "Male and female population size per Mayfly run")
	mayflyRoundEvals := flag.Int("mayfly-round-evals", 240, "Target eval budget per Mayfly round")
	flag.Parse()

	if *inputPath == "" || *referencePath == "" {
		die("both -input and -reference are required")
	}
	if *maxEvals < 1 {
		die("max-evals must be >= 1")
	}
	if *timeBudget <= 0 {
		die("time-budget must be > 0")
	}
	if *maxDuration <= 0 {
		die("max-duration must be > 0")
	}
	if *reportEvery < 1 {
		*reportEvery = 1
	}
	if *checkpointEvery < 1 {
		*checkpointEvery = 1
	}
	if *mayflyPop < 2 {
		*mayflyPop = 2
	}
	if *mayflyRoundEvals < *mayflyPop*2 {
		*mayflyRoundEvals = *mayflyPop * 2
	}

	baseParams := amp.NewDefaultParams()
	if *presetPath != "" {
		p, err := preset.LoadJSON(*presetPath)
		if err != nil {
			die("failed to load preset: %v", err)
		}
		baseParams = p
	}

	input, err := audioio.ReadMonoAt(*inputPath, *sampleRate)
	if err != nil {
		die("failed to read input: %v", err)
	}
	ref, err := audioio.ReadMonoAt(*referencePath, *sampleRate)
	if err != nil {
		die("failed to read reference: %v", err)
	}
	limit := int(*maxDuration * float64(*sampleRate))
	input = truncate(input, limit)
	ref = truncate(ref, limit)

	// Synthesize (or load) the cabinet once so workers share the same IR.
	if err := freezeCabinet(baseParams, *sampleRate); err != nil {
		die("failed to prepare cabinet: %v", err)
	}

	defs, initCand := initCandidate(baseParams)
	if *resume {
		resumePath := *resumeReport
		if resumePath == "" {
			if *reportPath != "" {
				resumePath = *reportPath
			} else {
				resumePath = *outputPreset + ".report.json"
			}
		}
		if resumed, ok, err := loadCandidateFromReport(resumePath, defs, initCand); err != nil {
			fmt.Fprintf(os.Stderr, "resume skipped (%s): %v\n", resumePath, err)
		} else if ok {
			initCand = resumed
			fmt.Printf("Resumed candidate from %s\n", resumePath)
		}
	}

	cfg := &optimizationConfig{
		input:              input,
		reference:          ref,
		baseParams:         baseParams,
		defs:               defs,
		initCandidate:      initCand,
		sampleRate:         *sampleRate,
		seed:               *seed,
		timeBudget:         *timeBudget,
		maxEvals:           *maxEvals,
		reportEvery:        *reportEvery,
		checkpointEvery:    *checkpointEvery,
		mayflyVariant:      *mayflyVariant,
		mayflyPop:          *mayflyPop,
		mayflyRoundEvals:   *mayflyRoundEvals,
		workers:            *workers,
		outputPreset:       *outputPreset,
		reportPath:         *reportPath,
		inputPath:          *inputPath,
		referencePath:      *referencePath,
		presetPath:         *presetPath,
		writeBestCandidate: *writeBestCandidate,
	}

	res, err := runOptimization(cfg)
	if err != nil {
		die("optimization failed: %v", err)
	}

	if err := writeOutputs(cfg, res.elapsed, res.evals, res.best, res.bestMetrics, res.checkpoints); err != nil {
		die("failed to write outputs: %v", err)
	}
	if *writeBestCandidate != "" {
		if err := writeBestCandidateSnapshot(cfg, res.best); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write best candidate wav: %v\n", err)
		}
	}

	fmt.Printf("Done evals=%d elapsed=%.1fs best_score=%.4f best_similarity=%.2f%% variant=%s\n",
		res.evals, res.elapsed, res.bestMetrics.Score, res.bestMetrics.Similarity*100.0, cfg.mayflyVariant)
}

// freezeCabinet stores the cabinet response in p.CabinetIR so every
// amplifier built from p skips synthesis and file loading.
func freezeCabinet(p *amp.Params, sampleRate int) error {
	if len(p.CabinetIR) > 0 {
		return nil
	}
	a, err := amp.NewAmplifier(sampleRate, p)
	if err != nil {
		return err
	}
	p.CabinetIR = a.Cabinet().IR()
	return nil
}

func truncate(x []float64, n int) []float64 {
	if n > 0 && len(x) > n {
		return x[:n]
	}
	return x
}

func initCandidate(base *amp.Params) ([]knobDef, candidate) {
	defs := []knobDef{
		{Name: "gain", Min: 0, Max: 1},
		{Name: "bass", Min: 0, Max: 1},
		{Name: "treble", Min: 0, Max: 1},
		{Name: "master", Min: 0, Max: 1},
	}
	vals := []float64{base.Gain, base.Bass, base.Treble, base.Master}
	for i := range vals {
		vals[i] = dspcore.Clamp(vals[i], defs[i].Min, defs[i].Max)
	}
	return defs, candidate{Vals: vals}
}

// applyCandidate returns a copy of base with the candidate knob values set.
// The cabinet IR slice is shared with base.
func applyCandidate(base *amp.Params, defs []knobDef, c candidate) *amp.Params {
	p := *base
	for i, d := range defs {
		if i >= len(c.Vals) {
			break
		}
		v := c.Vals[i]
		switch d.Name {
		case "gain":
			p.Gain = v
		case "bass":
			p.Bass = v
		case "treble":
			p.Treble = v
		case "master":
			p.Master = v
		}
	}
	return &p
}

func loadCandidateFromReport(path string, defs []knobDef, fallback candidate) (candidate, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, false, nil
		}
		return fallback, false, err
	}
	var rep runReport
	if err := json.Unmarshal(b, &rep); err != nil {
		return fallback, false, err
	}
	if len(rep.BestKnobs) == 0 {
		return fallback, false, nil
	}

	vals := make([]float64, len(fallback.Vals))
	copy(vals, fallback.Vals)
	updated := false
	for i, d := range defs {
		if v, ok := rep.BestKnobs[d.Name]; ok {
			vals[i] = dspcore.Clamp(v, d.Min, d.Max)
			if d.IsInt {
				vals[i] = math.Round(vals[i])
			}
			updated = true
		}
	}
	if !updated {
		return fallback, false, nil
	}
	return candidate{Vals: vals}, true, nil
}

func fromNormalized(pos []float64, defs []knobDef) candidate {
	vals := make([]float64, len(defs))
	for i := range defs {
		x := 0.0
		if i < len(pos) {
			x = dspcore.Clamp(pos[i], 0, 1)
		}
		v := defs[i].Min + x*(defs[i].Max-defs[i].Min)
		if defs[i].IsInt {
			v = math.Round(v)
		}
		vals[i] = v
	}
	return candidate{Vals: vals}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
