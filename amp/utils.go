package amp

import (
	"math"

	"github.com/cwbudde/algo-approx"
	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

const ln10Over20 = math.Ln10 / 20.0

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return dspcore.Clamp(v, 0, 1)
}

// dbToGain is used at control rate only; FastExp is accurate enough for a
// drive knob.
func dbToGain(db float64) float64 {
	return float64(approx.FastExp(float32(db * ln10Over20)))
}
