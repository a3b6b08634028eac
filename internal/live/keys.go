package live

import (
	"fmt"

	"github.com/cwbudde/algo-tubeamp/amp"
)

// KnobStep is the change applied by one key press.
const KnobStep = 0.05

// Action is the outcome of a key press.
type Action int

const (
	ActionNone Action = iota
	ActionChanged
	ActionQuit
)

var keyKnobs = map[byte]struct {
	id   amp.Control
	sign float64
}{
	'g': {amp.ControlGain, -1}, 'G': {amp.ControlGain, +1},
	'b': {amp.ControlBass, -1}, 'B': {amp.ControlBass, +1},
	't': {amp.ControlTreble, -1}, 'T': {amp.ControlTreble, +1},
	'm': {amp.ControlMaster, -1}, 'M': {amp.ControlMaster, +1},
}

// HandleKey applies key to c. Lower case lowers a knob, upper case raises
// it. q, Q, Esc and Ctrl-C quit.
func HandleKey(c *amp.Controls, key byte) Action {
	switch key {
	case 'q', 'Q', 0x1b, 0x03:
		return ActionQuit
	}
	k, ok := keyKnobs[key]
	if !ok {
		return ActionNone
	}
	c.Set(k.id, c.Get(k.id)+k.sign*KnobStep)
	return ActionChanged
}

// Status formats the current knob values on one line.
func Status(c *amp.Controls) string {
	return fmt.Sprintf("gain=%.2f bass=%.2f treble=%.2f master=%.2f",
		c.Get(amp.ControlGain), c.Get(amp.ControlBass), c.Get(amp.ControlTreble), c.Get(amp.ControlMaster))
}

// Help lists the key bindings.
const Help = "g/G gain  b/B bass  t/T treble  m/M master  q quit"
