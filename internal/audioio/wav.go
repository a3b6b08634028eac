// Package audioio reads and writes the mono WAV files used by the amp tools.
package audioio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// ReadMono decodes a WAV file and downmixes all channels to one.
func ReadMono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fmt.Errorf("invalid wav buffer: %s", path)
	}
	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i*ch+c])
		}
		out[i] = sum / float64(ch)
	}
	return out, buf.Format.SampleRate, nil
}

// Resample converts in from fromRate to toRate. It returns in unchanged
// when the rates match.
func Resample(in []float64, fromRate int, toRate int) ([]float64, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate {
		return in, nil
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, err
	}
	return r.Process(in), nil
}

// ReadMonoAt reads path and resamples it to sampleRate.
func ReadMonoAt(path string, sampleRate int) ([]float64, error) {
	x, sr, err := ReadMono(path)
	if err != nil {
		return nil, err
	}
	return Resample(x, sr, sampleRate)
}

// WriteMono writes 16-bit mono PCM. Samples are clipped to [-1, 1].
func WriteMono(path string, data []float64, sampleRate int) error {
	return WriteInterleaved(path, data, 1, sampleRate)
}

// WriteDualMono writes data to both channels of a 16-bit stereo file.
func WriteDualMono(path string, data []float64, sampleRate int) error {
	st := make([]float64, len(data)*2)
	for i, v := range data {
		st[i*2] = v
		st[i*2+1] = v
	}
	return WriteInterleaved(path, st, 2, sampleRate)
}

// WriteInterleaved writes interleaved 16-bit PCM with the given channel
// count. Samples are clipped to [-1, 1].
func WriteInterleaved(path string, data []float64, channels int, sampleRate int) error {
	if channels < 1 {
		return fmt.Errorf("invalid channel count %d", channels)
	}
	if len(data)%channels != 0 {
		return fmt.Errorf("sample count %d not a multiple of %d channels", len(data), channels)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	defer enc.Close()

	samples := make([]float32, len(data))
	for i, v := range data {
		samples[i] = float32(math.Max(-1, math.Min(1, v)))
	}
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: channels,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	return enc.Write(buf)
}

func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func PeakAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}
