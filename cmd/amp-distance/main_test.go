package main

import (
	"math"
	"testing"
)

func TestOctaveBandsLocatesTone(t *testing.T) {
	const sr = 48000
	x := make([]float64, sr)
	for i := range x {
		x[i] = 0.5 * math.Sin(2*math.Pi*1500*float64(i)/sr)
	}
	rows := octaveBands(x, x, sr)
	if len(rows) == 0 {
		t.Fatal("no bands")
	}
	best := 0
	for i, r := range rows {
		if r.cand != r.ref {
			t.Fatalf("band %d: identical signals differ (%g vs %g)", i, r.ref, r.cand)
		}
		if r.ref > rows[best].ref {
			best = i
		}
	}
	if rows[best].lo > 1500 || rows[best].hi < 1500 {
		t.Fatalf("loudest band %g-%g Hz does not contain 1.5 kHz", rows[best].lo, rows[best].hi)
	}
	if octaveBands(x[:100], x, sr) != nil {
		t.Fatal("expected nil for short input")
	}
}

func TestRenderCandidateDefaults(t *testing.T) {
	in := make([]float64, 512)
	in[0] = 0.5
	out, err := renderCandidate("", in, 48000)
	if err != nil {
		t.Fatalf("renderCandidate: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	if _, err := renderCandidate("does-not-exist.json", in, 48000); err == nil {
		t.Fatal("expected error for missing preset")
	}
}
