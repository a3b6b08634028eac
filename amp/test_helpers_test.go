package amp

import (
	"math"
	"testing"
)

const testSampleRate = 48000

func newTestAmplifier(t testing.TB, mutate func(*Params)) *Amplifier {
	t.Helper()
	p := NewDefaultParams()
	p.CabinetLength = 256
	if mutate != nil {
		mutate(p)
	}
	a, err := NewAmplifier(testSampleRate, p)
	if err != nil {
		t.Fatalf("NewAmplifier: %v", err)
	}
	return a
}

func sine(freq, amp float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate)
	}
	return out
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func impulse(n int) []float64 {
	out := make([]float64, n)
	out[0] = 1
	return out
}
