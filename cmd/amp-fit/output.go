package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-tubeamp/analysis"
	"github.com/cwbudde/algo-tubeamp/internal/audioio"
	"github.com/cwbudde/algo-tubeamp/preset"
)

func writeOutputs(
	cfg *optimizationConfig,
	elapsed float64,
	evals int,
	best candidate,
	bestM analysis.Metrics,
	checkpoints int,
) error {
	p := applyCandidate(cfg.baseParams, cfg.defs, best)
	// The preset stores the IR by reference; the frozen taps are only a
	// render-time cache.
	p.CabinetIR = nil
	p.CabinetIRPath = presetIRPath(cfg.outputPreset, p.CabinetIRPath)
	if err := preset.SaveJSON(cfg.outputPreset, p); err != nil {
		return err
	}

	knobs := make(map[string]float64, len(cfg.defs))
	for i, d := range cfg.defs {
		knobs[d.Name] = best.Vals[i]
	}
	rep := runReport{
		InputPath:       cfg.inputPath,
		ReferencePath:   cfg.referencePath,
		PresetPath:      cfg.presetPath,
		OutputPreset:    cfg.outputPreset,
		SampleRate:      cfg.sampleRate,
		DurationSec:     elapsed,
		Evaluations:     evals,
		MayflyVariant:   strings.ToLower(cfg.mayflyVariant),
		BestScore:       bestM.Score,
		BestSimilarity:  bestM.Similarity,
		BestMetrics:     bestM,
		BestKnobs:       knobs,
		CheckpointCount: checkpoints,
	}

	reportPath := cfg.reportPath
	if reportPath == "" {
		reportPath = cfg.outputPreset + ".report.json"
	}
	return writeJSON(reportPath, rep)
}

func writeBestCandidateSnapshot(cfg *optimizationConfig, best candidate) error {
	r, err := newRenderer(cfg.baseParams, cfg.defs, cfg.sampleRate, len(cfg.input))
	if err != nil {
		return err
	}
	return audioio.WriteMono(cfg.writeBestCandidate, r.render(cfg.input, best), cfg.sampleRate)
}

// presetIRPath rewrites irPath relative to the directory of presetPath so
// the saved preset resolves it the same way on load.
func presetIRPath(presetPath string, irPath string) string {
	irPath = strings.TrimSpace(irPath)
	if irPath == "" {
		return ""
	}

	presetDirAbs, err := filepath.Abs(filepath.Dir(presetPath))
	if err != nil {
		return irPath
	}
	irAbs := irPath
	if !filepath.IsAbs(irAbs) {
		irAbs, err = filepath.Abs(irAbs)
		if err != nil {
			return irPath
		}
	}
	rel, err := filepath.Rel(presetDirAbs, irAbs)
	if err != nil {
		return irPath
	}
	return filepath.ToSlash(rel)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}
