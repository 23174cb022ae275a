// Package gaintrace summarises the per-sample gain produced by a dynamics or
// auto-gain stage: where it ends up, how long it takes to get there and how
// much it pumps.
package gaintrace

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/mjibson/go-dsp/window"
	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/earcomp/dsp/core"
)

const (
	// floorDB is reported when there is no modulation energy at all.
	floorDB = -120.0

	minSpectrumPoints = 8

	// flatRMS is the relative modulation below which a trace counts as flat.
	flatRMS = 1e-9
)

// ErrEmptyTrace is returned when there is nothing to analyse.
var ErrEmptyTrace = errors.New("gaintrace: empty trace")

// Report holds the gain-trace statistics.
type Report struct {
	Samples    int
	SampleRate float64

	Final  float64
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64

	// SettleTime is the time after which the gain stays within the settle
	// tolerance of Final, in seconds.
	SettleTime float64

	// RangeDB is the distance between Max and Min in dB.
	RangeDB float64

	// PumpingDB is the share of gain modulation energy inside the
	// modulation band, relative to all modulation energy above DC.
	PumpingDB float64
	// ModulationDB is the RMS gain modulation in the band relative to the
	// mean gain. Inaudible pumping stays well below -40 dB.
	ModulationDB float64
}

// FinalDB returns the final gain in dB.
func (r Report) FinalDB() float64 {
	return core.LinearToDB(r.Final)
}

// Analyze computes a Report for a gain trace sampled at sampleRate.
func Analyze(trace []float64, sampleRate float64, opts ...Option) (Report, error) {
	if len(trace) == 0 {
		return Report{}, ErrEmptyTrace
	}

	if !(sampleRate > 0) || !finite(sampleRate) {
		return Report{}, fmt.Errorf("gaintrace: sample rate must be positive and finite: %f", sampleRate)
	}

	cfg, err := applyOptions(opts)
	if err != nil {
		return Report{}, err
	}

	for i, g := range trace {
		if !(g > 0) || !finite(g) {
			return Report{}, fmt.Errorf("gaintrace: gain at sample %d must be positive and finite: %f", i, g)
		}
	}

	rep := Report{
		Samples:    len(trace),
		SampleRate: sampleRate,
		Final:      trace[len(trace)-1],
		Min:        floats.Min(trace),
		Max:        floats.Max(trace),
	}
	rep.Mean, rep.StdDev = stat.MeanStdDev(trace, nil)
	if len(trace) == 1 {
		rep.StdDev = 0
	}

	rep.RangeDB = core.LinearToDB(rep.Max / rep.Min)
	rep.SettleTime = settleTime(trace, cfg.SettleTolerance) / sampleRate

	rep.PumpingDB, rep.ModulationDB, err = modulation(trace, sampleRate, rep.Mean, cfg)
	if err != nil {
		return Report{}, err
	}

	return rep, nil
}

// settleTime returns the number of samples before the trace enters the
// tolerance band around its last value for good.
func settleTime(trace []float64, tol float64) float64 {
	final := trace[len(trace)-1]
	limit := tol * final

	for i := len(trace) - 1; i >= 0; i-- {
		if math.Abs(trace[i]-final) > limit {
			return float64(i + 1)
		}
	}

	return 0
}

// modulation measures the in-band gain modulation of the decimated,
// detrended and Hann-windowed trace.
func modulation(trace []float64, sampleRate, mean float64, cfg Config) (pumpingDB, modulationDB float64, err error) {
	decimated, rate := decimate(trace, sampleRate, cfg.AnalysisRate)

	n := len(decimated)
	if n < minSpectrumPoints {
		return floorDB, floorDB, nil
	}

	detrend(decimated)

	coeffs := window.Hann(n)
	fftSize := nextPowerOf2(n)

	in := make([]complex128, fftSize)
	for i, v := range decimated {
		in[i] = complex(v*coeffs[i], 0)
	}

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return 0, 0, fmt.Errorf("gaintrace: fft plan: %w", err)
	}

	out := make([]complex128, fftSize)
	if err := plan.Forward(out, in); err != nil {
		return 0, 0, fmt.Errorf("gaintrace: fft: %w", err)
	}

	binHz := rate / float64(fftSize)

	var total, band float64
	for k := 1; k <= fftSize/2; k++ {
		x := out[k]
		p := real(x)*real(x) + imag(x)*imag(x)
		total += p

		f := float64(k) * binHz
		if f >= cfg.BandLowHz && f <= cfg.BandHighHz {
			band += p
		}
	}

	// One-sided Parseval with the window's power gain removed gives the
	// mean square of the modulation.
	norm := 2 / (float64(fftSize) * f64.DotProduct(coeffs, coeffs))
	totalRMS := math.Sqrt(total * norm)
	bandRMS := math.Sqrt(band * norm)

	if !(totalRMS > flatRMS*mean) || !(band > 0) {
		return floorDB, floorDB, nil
	}

	pumpingDB = math.Max(core.LinearPowerToDB(band/total), floorDB)
	modulationDB = math.Max(core.LinearToDB(bandRMS/mean), floorDB)

	return pumpingDB, modulationDB, nil
}

// decimate averages consecutive samples down to roughly targetRate and
// returns the new trace with its rate.
func decimate(trace []float64, sampleRate, targetRate float64) ([]float64, float64) {
	factor := int(sampleRate / targetRate)
	if factor <= 1 {
		return append([]float64(nil), trace...), sampleRate
	}

	n := len(trace) / factor
	out := make([]float64, n)
	for i := range out {
		out[i] = floats.Sum(trace[i*factor:(i+1)*factor]) / float64(factor)
	}

	return out, sampleRate / float64(factor)
}

// detrend removes the mean and the linear trend so a slowly settling gain
// does not leak into the modulation band.
func detrend(x []float64) {
	n := len(x)
	t := make([]float64, n)
	for i := range t {
		t[i] = float64(i)
	}

	alpha, beta := stat.LinearRegression(t, x, nil, false)
	for i := range x {
		x[i] -= alpha + beta*t[i]
	}
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
