package live

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/cwbudde/algo-tubeamp/amp"
)

func newTestAmp(t *testing.T) *amp.Amplifier {
	t.Helper()
	p := amp.NewDefaultParams()
	p.CabinetLength = 64
	a, err := amp.NewAmplifier(48000, p)
	if err != nil {
		t.Fatalf("NewAmplifier: %v", err)
	}
	return a
}

func testInput(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 0.3 * math.Sin(2*math.Pi*196*float64(i)/48000)
	}
	return x
}

func TestStreamMatchesProcessAndDuplicatesChannels(t *testing.T) {
	in := testInput(3000)
	a := newTestAmp(t)
	s := NewStream(a, amp.NewControls(a), in, 2, false)
	want := newTestAmp(t).Process(in)

	buf := make([]byte, 8*700+3)
	var got []float32
	for {
		n, err := s.Read(buf)
		if n%8 != 0 {
			t.Fatalf("read %d bytes, not a whole number of frames", n)
		}
		for off := 0; off < n; off += 8 {
			l := math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
			r := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:]))
			if l != r {
				t.Fatalf("frame %d: channels differ %g vs %g", len(got), l, r)
			}
			got = append(got, l)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != float32(want[i]) {
			t.Fatalf("frame %d: got %g want %g", i, got[i], float32(want[i]))
		}
	}
	if s.Frames() != int64(len(in)) || s.Position() != len(in) {
		t.Fatalf("frames=%d position=%d", s.Frames(), s.Position())
	}
}

func TestStreamLoops(t *testing.T) {
	in := testInput(100)
	a := newTestAmp(t)
	s := NewStream(a, amp.NewControls(a), in, 1, true)
	buf := make([]byte, 4*250)
	n, err := s.Read(buf)
	if err != nil || n != len(buf) {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	if s.Position() != 50 {
		t.Fatalf("position = %d, want 50", s.Position())
	}
}

func TestStreamAppliesControlsPerRead(t *testing.T) {
	a := newTestAmp(t)
	c := amp.NewControls(a)
	s := NewStream(a, c, testInput(1000), 1, false)
	c.SetMaster(0.1)
	if _, err := s.Read(make([]byte, 4*10)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if a.Master() != 0.1 {
		t.Fatalf("master = %g, want 0.1", a.Master())
	}
}

func TestHandleKey(t *testing.T) {
	a := newTestAmp(t)
	c := amp.NewControls(a)
	if HandleKey(c, 'G') != ActionChanged {
		t.Fatal("G should change gain")
	}
	if got := c.Get(amp.ControlGain); math.Abs(got-0.55) > 1e-12 {
		t.Fatalf("gain = %g, want 0.55", got)
	}
	for i := 0; i < 40; i++ {
		HandleKey(c, 'm')
	}
	if got := c.Get(amp.ControlMaster); got != 0 {
		t.Fatalf("master = %g, want clamped 0", got)
	}
	if HandleKey(c, 'x') != ActionNone {
		t.Fatal("unbound key should do nothing")
	}
	for _, k := range []byte{'q', 0x03} {
		if HandleKey(c, k) != ActionQuit {
			t.Fatalf("key %q should quit", k)
		}
	}
	if Status(c) == "" {
		t.Fatal("empty status")
	}
}
