//go:build !fastmath

package dynamics

import (
	"math"

	"github.com/cwbudde/earcomp/dsp/core"
)

// Level conversions of the detector and the gain computer. Building with
// -tags fastmath swaps in the algo-approx versions.

func mathLog10(x float64) float64 { return math.Log10(x) }

func dbToGain(db float64) float64 { return core.DBToLinear(db) }
