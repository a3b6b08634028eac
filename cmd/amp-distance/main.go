package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/algo-tubeamp/amp"
	"github.com/cwbudde/algo-tubeamp/analysis"
	"github.com/cwbudde/algo-tubeamp/internal/audioio"
	"github.com/cwbudde/algo-tubeamp/preset"
)

func main() {
	referencePath := flag.String("reference", "", "Reference WAV path")
	candidatePath := flag.String("candidate", "", "Candidate WAV path; if empty, render -input through the amp")
	inputPath := flag.String("input", "", "DI input WAV rendered as candidate when -candidate is empty")
	presetPath := flag.String("preset", "", "Preset JSON path for the rendered candidate (empty = defaults)")
	sampleRate := flag.Int("sample-rate", 48000, "Analysis sample rate in Hz")
	writeCandidate := flag.String("write-candidate", "", "Optional path to write rendered candidate WAV")
	bands := flag.Bool("bands", false, "Also print per-octave spectral differences")
	jsonOut := flag.Bool("json", false, "Print metrics as JSON")
	flag.Parse()

	if *referencePath == "" {
		die("-reference is required")
	}
	ref, err := audioio.ReadMonoAt(*referencePath, *sampleRate)
	if err != nil {
		die("failed to read reference: %v", err)
	}

	var cand []float64
	switch {
	case *candidatePath != "":
		cand, err = audioio.ReadMonoAt(*candidatePath, *sampleRate)
		if err != nil {
			die("failed to read candidate: %v", err)
		}
	case *inputPath != "":
		in, err := audioio.ReadMonoAt(*inputPath, *sampleRate)
		if err != nil {
			die("failed to read input: %v", err)
		}
		cand, err = renderCandidate(*presetPath, in, *sampleRate)
		if err != nil {
			die("failed to render candidate: %v", err)
		}
		if *writeCandidate != "" {
			if err := audioio.WriteMono(*writeCandidate, cand, *sampleRate); err != nil {
				die("failed to write candidate wav: %v", err)
			}
		}
	default:
		die("either -candidate or -input is required")
	}

	metrics := analysis.Compare(ref, cand, *sampleRate)
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(metrics); err != nil {
			die("json encode failed: %v", err)
		}
		return
	}

	fmt.Printf("Reference frames: %d\n", metrics.ReferenceFrames)
	fmt.Printf("Candidate frames: %d\n", metrics.CandidateFrames)
	fmt.Printf("Aligned frames:   %d\n", metrics.AlignedFrames)
	fmt.Printf("Lag:              %d samples (%.3f ms)\n", metrics.LagSamples, 1000.0*float64(metrics.LagSamples)/float64(metrics.SampleRate))
	fmt.Println()
	fmt.Printf("Component        Raw          Norm   Weight  Contribution\n")
	fmt.Printf("─────────────────────────────────────────────────────────\n")
	printComp := func(name string, raw string, norm, weight float64, dominant bool) {
		marker := ""
		if dominant {
			marker = " ◄"
		}
		fmt.Printf("%-16s %-12s %5.1f%%  ×%.2f   → %.4f%s\n", name, raw, norm*100, weight, norm*weight, marker)
	}
	printComp("Level diff", fmt.Sprintf("%.1f dB", metrics.LevelDiffDB), metrics.LevelNorm, analysis.WeightLevel, metrics.Dominant == "level")
	printComp("Time RMSE", fmt.Sprintf("%.6f", metrics.TimeRMSE), metrics.TimeNorm, analysis.WeightTime, metrics.Dominant == "time")
	printComp("Envelope RMSE", fmt.Sprintf("%.1f dB", metrics.EnvelopeRMSEDB), metrics.EnvelopeNorm, analysis.WeightEnvelope, metrics.Dominant == "envelope")
	printComp("Spectral RMSE", fmt.Sprintf("%.1f dB", metrics.SpectralRMSEDB), metrics.SpectralNorm, analysis.WeightSpectral, metrics.Dominant == "spectral")
	printComp("Crest diff", fmt.Sprintf("%.1f dB", metrics.CrestDiffDB), metrics.CrestNorm, analysis.WeightCrest, metrics.Dominant == "crest")
	fmt.Printf("─────────────────────────────────────────────────────────\n")
	fmt.Printf("Score:            %.4f  (0 best, 1 worst)\n", metrics.Score)
	fmt.Printf("Similarity:       %.2f%%\n", metrics.Similarity*100.0)
	fmt.Printf("Dominant factor:  %s\n", metrics.Dominant)
	fmt.Printf("\nCrest factors: ref=%.1f dB  cand=%.1f dB\n", metrics.RefCrestDB, metrics.CandCrestDB)

	if *bands {
		rows := octaveBands(ref, cand, *sampleRate)
		if rows == nil {
			fmt.Println("\nSignals too short for band analysis.")
			return
		}
		fmt.Printf("\nBand (Hz)          Ref dB   Cand dB   Diff dB\n")
		for _, r := range rows {
			fmt.Printf("%6.0f-%-6.0f    %7.1f   %7.1f   %+7.1f\n", r.lo, r.hi, r.ref, r.cand, r.cand-r.ref)
		}
	}
}

func renderCandidate(presetPath string, in []float64, sampleRate int) ([]float64, error) {
	params := amp.NewDefaultParams()
	if presetPath != "" {
		p, err := preset.LoadJSON(presetPath)
		if err != nil {
			return nil, err
		}
		params = p
	}
	a, err := amp.NewAmplifier(sampleRate, params)
	if err != nil {
		return nil, err
	}
	return a.Process(in), nil
}

type bandRow struct {
	lo, hi    float64
	ref, cand float64
}

// octaveBands averages the power spectra of both signals over octave bands
// from 31.25 Hz up to Nyquist. Levels are relative, in dB.
func octaveBands(ref, cand []float64, sampleRate int) []bandRow {
	sr := analysis.Spectrum(ref)
	sc := analysis.Spectrum(cand)
	if sr == nil || sc == nil {
		return nil
	}
	binHz := float64(sampleRate) / float64(2*(len(sr)-1))
	nyquist := 0.5 * float64(sampleRate)
	var rows []bandRow
	for lo := 31.25; lo < nyquist; lo *= 2 {
		hi := math.Min(2*lo, nyquist)
		k0 := int(math.Ceil(lo / binHz))
		k1 := int(hi / binHz)
		if k1 >= len(sr) {
			k1 = len(sr) - 1
		}
		if k1 < k0 {
			continue
		}
		rows = append(rows, bandRow{lo: lo, hi: hi, ref: bandLevel(sr[k0:k1+1]), cand: bandLevel(sc[k0:k1+1])})
	}
	return rows
}

func bandLevel(db []float64) float64 {
	var p float64
	for _, v := range db {
		p += math.Pow(10, v/10)
	}
	return 10 * math.Log10(math.Max(p/float64(len(db)), 1e-24))
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
