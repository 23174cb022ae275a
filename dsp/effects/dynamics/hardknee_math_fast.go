//go:build fastmath

package dynamics

import approx "github.com/meko-christian/algo-approx"

const ln10 = 2.302585092994045684017991454684

func mathLog10(x float64) float64 { return approx.FastLog(x) / ln10 }

func dbToGain(db float64) float64 { return approx.FastExp(db * ln10 / 20) }
