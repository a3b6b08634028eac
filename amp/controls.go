package amp

import (
	"math"
	"sync/atomic"
)

// Control identifies one of the four amplifier knobs.
type Control int

const (
	ControlGain Control = iota
	ControlBass
	ControlTreble
	ControlMaster
	numControls
)

func (c Control) String() string {
	switch c {
	case ControlGain:
		return "gain"
	case ControlBass:
		return "bass"
	case ControlTreble:
		return "treble"
	case ControlMaster:
		return "master"
	default:
		return "unknown"
	}
}

// Controls hands knob values from a control goroutine to the audio
// goroutine without locks. Values are stored as float64 bits. ApplyTo only
// touches knobs set since its last call.
type Controls struct {
	values [numControls]atomic.Uint64
	dirty  [numControls]atomic.Bool
}

// NewControls seeds the knobs from a's current settings.
func NewControls(a *Amplifier) *Controls {
	c := &Controls{}
	c.values[ControlGain].Store(math.Float64bits(a.Gain()))
	c.values[ControlBass].Store(math.Float64bits(a.Bass()))
	c.values[ControlTreble].Store(math.Float64bits(a.Treble()))
	c.values[ControlMaster].Store(math.Float64bits(a.Master()))
	return c
}

// Set stores v, clamped to [0,1], for the next ApplyTo. Out-of-range ids
// are ignored.
func (c *Controls) Set(id Control, v float64) {
	if id < 0 || id >= numControls {
		return
	}
	c.values[id].Store(math.Float64bits(clamp01(v)))
	c.dirty[id].Store(true)
}

// Get returns the last stored value.
func (c *Controls) Get(id Control) float64 {
	if id < 0 || id >= numControls {
		return 0
	}
	return math.Float64frombits(c.values[id].Load())
}

// SetGain stores the gain knob.
func (c *Controls) SetGain(v float64) { c.Set(ControlGain, v) }

// SetBass stores the bass knob.
func (c *Controls) SetBass(v float64) { c.Set(ControlBass, v) }

// SetTreble stores the treble knob.
func (c *Controls) SetTreble(v float64) { c.Set(ControlTreble, v) }

// SetMaster stores the master knob.
func (c *Controls) SetMaster(v float64) { c.Set(ControlMaster, v) }

// ApplyTo pushes changed knobs into a and reports whether anything changed.
// Call it from the audio goroutine, typically at the start of a block.
func (c *Controls) ApplyTo(a *Amplifier) bool {
	changed := false
	for id := Control(0); id < numControls; id++ {
		if !c.dirty[id].Swap(false) {
			continue
		}
		v := math.Float64frombits(c.values[id].Load())
		switch id {
		case ControlGain:
			a.SetGain(v)
		case ControlBass:
			a.SetBass(v)
		case ControlTreble:
			a.SetTreble(v)
		case ControlMaster:
			a.SetMaster(v)
		}
		changed = true
	}
	return changed
}
