// Package live adapts an Amplifier to pull-based audio output and maps
// single key presses to knob changes.
package live

import (
	"encoding/binary"
	"io"
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-tubeamp/amp"
)

// Stream renders an input buffer through an Amplifier on demand. Read fills
// p with interleaved float32 little-endian frames, every channel carrying the
// same mono sample. Knob changes made through Controls are applied at the
// start of each Read.
//
// Read is meant to be called from a single audio goroutine; Controls and
// Position may be used from any goroutine.
type Stream struct {
	amp      *amp.Amplifier
	controls *amp.Controls
	input    []float64
	channels int
	loop     bool

	pos    atomic.Int64
	frames atomic.Int64

	block []float64
}

// NewStream returns a stream over input. channels below 1 are treated as 1.
func NewStream(a *amp.Amplifier, c *amp.Controls, input []float64, channels int, loop bool) *Stream {
	if channels < 1 {
		channels = 1
	}
	return &Stream{
		amp:      a,
		controls: c,
		input:    input,
		channels: channels,
		loop:     loop,
		block:    make([]float64, 1024),
	}
}

// BytesPerFrame is 4 bytes per channel.
func (s *Stream) BytesPerFrame() int { return 4 * s.channels }

// Position returns the next input index to be rendered.
func (s *Stream) Position() int { return int(s.pos.Load()) }

// Frames returns the total number of frames produced so far.
func (s *Stream) Frames() int64 { return s.frames.Load() }

// Read implements io.Reader. It returns io.EOF once a non-looping input is
// exhausted. Partial frames at the end of p are left untouched.
func (s *Stream) Read(p []byte) (int, error) {
	s.controls.ApplyTo(s.amp)

	bpf := s.BytesPerFrame()
	want := len(p) / bpf
	if want == 0 {
		return 0, nil
	}
	pos := int(s.pos.Load())
	n := 0
	for n < want {
		if pos >= len(s.input) {
			if !s.loop || len(s.input) == 0 {
				break
			}
			pos = 0
		}
		chunk := min(want-n, len(s.block), len(s.input)-pos)
		out := s.block[:chunk]
		s.amp.ProcessBlock(out, s.input[pos:pos+chunk])
		for i, v := range out {
			bits := math.Float32bits(float32(v))
			off := (n + i) * bpf
			for ch := 0; ch < s.channels; ch++ {
				binary.LittleEndian.PutUint32(p[off+4*ch:], bits)
			}
		}
		n += chunk
		pos += chunk
	}
	s.pos.Store(int64(pos))
	s.frames.Add(int64(n))
	if n == 0 {
		return 0, io.EOF
	}
	return n * bpf, nil
}
