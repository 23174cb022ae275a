package gaintrace_test

import (
	"fmt"
	"math"

	"github.com/cwbudde/earcomp/measure/gaintrace"
)

func ExampleAnalyze() {
	const sampleRate = 48000.0

	// A gain that settles from unity to -6 dB with a 50 ms time constant.
	trace := make([]float64, 48000)
	for i := range trace {
		trace[i] = 0.5 + 0.5*math.Exp(-float64(i)/(0.05*sampleRate))
	}

	rep, err := gaintrace.Analyze(trace, sampleRate)
	if err != nil {
		panic(err)
	}

	fmt.Printf("final %.1f dB, settled after %.0f ms\n", rep.FinalDB(), rep.SettleTime*1000)
	// Output:
	// final -6.0 dB, settled after 230 ms
}
