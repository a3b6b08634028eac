package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cwbudde/algo-tubeamp/cabsynth"
	"github.com/cwbudde/algo-tubeamp/internal/audioio"
)

func main() {
	cfg := cabsynth.DefaultConfig()

	output := flag.String("output", "assets/ir/cab_1x12.wav", "Output WAV path")
	normalize := flag.Float64("normalize", 0.9, "Peak level of the written file (the amp renormalizes on load)")
	flag.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Output sample rate")
	flag.IntVar(&cfg.Length, "length", cfg.Length, "IR length in taps")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed")
	flag.Float64Var(&cfg.DirectLevel, "direct", cfg.DirectLevel, "Direct impulse level")
	flag.Float64Var(&cfg.ConeHz, "cone-hz", cfg.ConeHz, "Speaker cone resonance (Hz)")
	flag.Float64Var(&cfg.ConeLevel, "cone-level", cfg.ConeLevel, "Cone resonance level")
	flag.Float64Var(&cfg.BoxWidthM, "box-width", cfg.BoxWidthM, "Cabinet width (m)")
	flag.Float64Var(&cfg.BoxHeightM, "box-height", cfg.BoxHeightM, "Cabinet height (m)")
	flag.Float64Var(&cfg.BoxDepthM, "box-depth", cfg.BoxDepthM, "Cabinet depth (m)")
	flag.IntVar(&cfg.BoxModes, "box-modes", cfg.BoxModes, "Axial modes per box dimension")
	flag.Float64Var(&cfg.BoxLevel, "box-level", cfg.BoxLevel, "Box mode level")
	flag.IntVar(&cfg.Breakups, "breakups", cfg.Breakups, "Number of cone breakup resonances")
	flag.Float64Var(&cfg.BreakupLowHz, "breakup-low", cfg.BreakupLowHz, "Lowest breakup resonance (Hz)")
	flag.Float64Var(&cfg.BreakupHighHz, "breakup-high", cfg.BreakupHighHz, "Highest breakup resonance (Hz)")
	flag.Float64Var(&cfg.BreakupLevel, "breakup-level", cfg.BreakupLevel, "Breakup resonance level")
	flag.IntVar(&cfg.EarlyCount, "early", cfg.EarlyCount, "Number of early reflections")
	flag.Float64Var(&cfg.EarlyLevel, "early-level", cfg.EarlyLevel, "Early reflection level")
	flag.Float64Var(&cfg.Brightness, "brightness", cfg.Brightness, "Spectral brightness control (>0)")
	flag.Float64Var(&cfg.FadeOutS, "fade-out", cfg.FadeOutS, "Cosine fade-out at the end (s)")
	flag.Parse()

	if *normalize <= 0 || *normalize > 1 {
		die("normalize must be in (0,1]")
	}

	ir, err := cabsynth.Generate(cfg)
	if err != nil {
		die("cab-ir-synth error: %v", err)
	}
	out := scaleToPeak(ir, *normalize)

	if err := audioio.WriteMono(*output, out, cfg.SampleRate); err != nil {
		die("wav write error: %v", err)
	}

	fmt.Printf("Wrote %s\n", *output)
	fmt.Printf("SampleRate: %d Hz, Taps: %d (%.2f ms)\n", cfg.SampleRate, len(ir), 1000*float64(len(ir))/float64(cfg.SampleRate))
	fmt.Printf("Box modes: %d, Peak: %.6f, RMS: %.6f\n", len(cabsynth.BoxModeFrequencies(cfg)), audioio.PeakAbs(out), audioio.RMS(out))
}

func scaleToPeak(x []float64, peak float64) []float64 {
	out := make([]float64, len(x))
	m := audioio.PeakAbs(x)
	if m <= 0 {
		return out
	}
	g := peak / m
	for i, v := range x {
		out[i] = v * g
	}
	return out
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
