package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/cwbudde/algo-tubeamp/amp"
	"github.com/cwbudde/algo-tubeamp/internal/audioio"
	"github.com/cwbudde/algo-tubeamp/preset"
	"github.com/cwbudde/algo-tubeamp/wdf"
)

// knob flags default to -1, meaning "keep the preset value".
type knobOverrides struct {
	gain, bass, treble, master float64
}

func main() {
	input := flag.String("input", "", "Input WAV path (DI guitar). Empty renders a synthesized test signal")
	signal := flag.String("signal", "pluck", "Test signal when -input is empty: sine|pluck|sweep")
	freq := flag.Float64("freq", 110.0, "Test signal frequency in Hz (sweep start)")
	level := flag.Float64("level", 0.5, "Test signal peak level")
	duration := flag.Float64("duration", 2.0, "Test signal duration in seconds")
	tail := flag.Float64("tail", 0.1, "Silence appended after the input in seconds")
	sampleRate := flag.Int("sample-rate", 48000, "Render sample rate in Hz")
	presetPath := flag.String("preset", "", "Preset JSON file path (empty = defaults)")
	irPath := flag.String("ir", "", "Cabinet IR WAV path override (optional)")
	topology := flag.String("topology", "", "Grid topology override: direct|adapted")
	solver := flag.String("solver", "", "Triode solver override: lagged|fixed-point")
	blockSize := flag.Int("block-size", 128, "Processing block size")
	stereo := flag.Bool("stereo", false, "Write the mono result to both channels")
	output := flag.String("output", "output.wav", "Output WAV file path")

	var knobs knobOverrides
	flag.Float64Var(&knobs.gain, "gain", -1, "Gain knob 0..1 (-1 keeps preset)")
	flag.Float64Var(&knobs.bass, "bass", -1, "Bass knob 0..1 (-1 keeps preset)")
	flag.Float64Var(&knobs.treble, "treble", -1, "Treble knob 0..1 (-1 keeps preset)")
	flag.Float64Var(&knobs.master, "master", -1, "Master knob 0..1 (-1 keeps preset)")
	flag.Parse()

	if *blockSize < 1 {
		die("block-size must be >= 1")
	}

	params := amp.NewDefaultParams()
	if *presetPath != "" {
		p, err := preset.LoadJSON(*presetPath)
		if err != nil {
			die("Error loading preset %q: %v", *presetPath, err)
		}
		params = p
	}
	if *irPath != "" {
		params.CabinetIRPath = *irPath
	}
	if err := applyCircuitOverrides(params, *topology, *solver); err != nil {
		die("%v", err)
	}

	var in []float64
	if *input != "" {
		x, err := audioio.ReadMonoAt(*input, *sampleRate)
		if err != nil {
			die("Error reading input %q: %v", *input, err)
		}
		in = x
	} else {
		x, err := makeTestSignal(*signal, *freq, *level, *duration, *sampleRate)
		if err != nil {
			die("%v", err)
		}
		in = x
	}
	if *tail > 0 {
		in = append(in, make([]float64, int(*tail*float64(*sampleRate)))...)
	}

	a, err := amp.NewAmplifier(*sampleRate, params)
	if err != nil {
		die("Error building amplifier: %v", err)
	}
	controls := amp.NewControls(a)
	knobs.apply(controls)

	fmt.Printf("Rendering %d samples at %d Hz (topology=%s solver=%s gain=%.2f bass=%.2f treble=%.2f master=%.2f)...\n",
		len(in), *sampleRate, params.Topology, params.Solver,
		controls.Get(amp.ControlGain), controls.Get(amp.ControlBass), controls.Get(amp.ControlTreble), controls.Get(amp.ControlMaster))

	out := render(a, controls, in, *blockSize)

	if *stereo {
		err = audioio.WriteDualMono(*output, out, *sampleRate)
	} else {
		err = audioio.WriteMono(*output, out, *sampleRate)
	}
	if err != nil {
		die("Error writing WAV file: %v", err)
	}

	fmt.Printf("Successfully wrote %s (%d frames, peak %.4f, rms %.4f)\n", *output, len(out), audioio.PeakAbs(out), audioio.RMS(out))
}

func (k knobOverrides) apply(c *amp.Controls) {
	if k.gain >= 0 {
		c.SetGain(k.gain)
	}
	if k.bass >= 0 {
		c.SetBass(k.bass)
	}
	if k.treble >= 0 {
		c.SetTreble(k.treble)
	}
	if k.master >= 0 {
		c.SetMaster(k.master)
	}
}

func applyCircuitOverrides(p *amp.Params, topology, solver string) error {
	if topology != "" {
		t, err := amp.ParseTopology(topology)
		if err != nil {
			return err
		}
		p.Topology = t
	}
	if solver != "" {
		s, err := wdf.ParseTriodeSolver(solver)
		if err != nil {
			return err
		}
		p.Solver = s
	}
	return nil
}

// render processes in in blocks, picking up control changes at each block
// boundary the way a plugin host would.
func render(a *amp.Amplifier, c *amp.Controls, in []float64, blockSize int) []float64 {
	out := make([]float64, len(in))
	for start := 0; start < len(in); start += blockSize {
		end := start + blockSize
		if end > len(in) {
			end = len(in)
		}
		c.ApplyTo(a)
		a.ProcessBlock(out[start:end], in[start:end])
	}
	return out
}

func makeTestSignal(kind string, freq, level, duration float64, sampleRate int) ([]float64, error) {
	if freq <= 0 || freq >= 0.5*float64(sampleRate) {
		return nil, fmt.Errorf("freq must be in (0, %d)", sampleRate/2)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be > 0")
	}
	n := int(duration * float64(sampleRate))
	out := make([]float64, n)
	fs := float64(sampleRate)
	switch strings.ToLower(kind) {
	case "sine":
		for i := range out {
			out[i] = level * math.Sin(2*math.Pi*freq*float64(i)/fs)
		}
	case "pluck":
		// Decaying harmonic series; upper partials die away faster.
		var norm float64
		for k := 1; k <= 12; k++ {
			norm += 1.0 / float64(k)
		}
		for i := range out {
			t := float64(i) / fs
			var v float64
			for k := 1; k <= 12; k++ {
				fk := freq * float64(k)
				if fk >= 0.5*fs {
					break
				}
				v += math.Exp(-t*(1.5+0.8*float64(k))) * math.Sin(2*math.Pi*fk*t) / float64(k)
			}
			out[i] = level * v / norm
		}
	case "sweep":
		// Exponential sweep from freq to 20 kHz (or Nyquist).
		f1 := math.Min(20000, 0.45*fs)
		if f1 <= freq {
			return nil, fmt.Errorf("sweep start must be below %g Hz", f1)
		}
		k := math.Log(f1 / freq)
		for i := range out {
			t := float64(i) / fs
			phase := 2 * math.Pi * freq * duration / k * (math.Exp(t/duration*k) - 1)
			out[i] = level * math.Sin(phase)
		}
	default:
		return nil, fmt.Errorf("unknown signal %q (use sine, pluck or sweep)", kind)
	}
	return out, nil
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
