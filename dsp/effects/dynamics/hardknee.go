package dynamics

import (
	"fmt"
	"math"
	"sync/atomic"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/earcomp/dsp/core"
	"github.com/cwbudde/earcomp/dsp/param"
)

// Parameter names understood by HardKneeCompressor.
const (
	ParamThreshold = "threshold"
	ParamRatio     = "ratio"
	ParamAttack    = "attack"
	ParamRelease   = "release"
)

const (
	// Detector floor: levels at or below levelFloor read as levelFloorDB.
	levelFloor   = 1e-6
	levelFloorDB = -120.0

	minHardKneeRatio = 1.0

	// minTargetGain keeps the envelope strictly positive for infinite input.
	minTargetGain = 1e-10
)

// Descriptors lists the automatable parameters of HardKneeCompressor.
// Bounds are enforced by the host; the processor itself only guards against
// values that would break the arithmetic.
var Descriptors = param.Set{
	{Name: ParamThreshold, Unit: "dB", Default: -20, Min: -100, Max: 0},
	{Name: ParamRatio, Unit: ":1", Default: 4, Min: 1, Max: 50},
	{Name: ParamAttack, Unit: "s", Default: 0.005, Min: 0, Max: 1},
	{Name: ParamRelease, Unit: "s", Default: 0.2, Min: 0, Max: 3},
}

// Params holds one block's worth of compressor parameters.
type Params struct {
	Threshold param.Values // dB
	Ratio     param.Values
	Attack    param.Values // seconds
	Release   param.Values // seconds
}

// DefaultParams returns block-constant default parameters.
func DefaultParams() Params {
	return ResolveParams(nil)
}

// ResolveParams maps host parameter arrays to Params. Missing or empty
// arrays fall back to the descriptor defaults.
func ResolveParams(arrays core.ParamArrays) Params {
	return Params{
		Threshold: param.Resolve(arrays[ParamThreshold], Descriptors[0].Default),
		Ratio:     param.Resolve(arrays[ParamRatio], Descriptors[1].Default),
		Attack:    param.Resolve(arrays[ParamAttack], Descriptors[2].Default),
		Release:   param.Resolve(arrays[ParamRelease], Descriptors[3].Default),
	}
}

// Metrics is a snapshot of the most recently processed block.
type Metrics struct {
	InputPeak       float64 // Largest absolute input sample
	OutputPeak      float64 // Largest absolute output sample
	GainReductionDB float64 // Deepest gain reduction, <= 0
}

// coeffCache remembers the envelope coefficient of the last time value so
// block-constant parameters cost no exp per sample.
type coeffCache struct {
	time  float64
	coeff float64
	valid bool
}

func (c *coeffCache) lookup(time, sampleRate float64) float64 {
	if c.valid && time == c.time {
		return c.coeff
	}

	c.time = time
	c.coeff = core.TimeConstantCoeff(time, sampleRate)
	c.valid = true

	return c.coeff
}

// HardKneeCompressor is a peak-detecting, hard-knee compressor with a
// VCA-style attack/release envelope on the gain itself.
//
// Detection is linked across channels: the loudest channel at each sample
// sets one gain that is applied to every channel.
//
// Process is meant for a single real-time thread. Metrics may be read from
// any goroutine.
type HardKneeCompressor struct {
	sampleRate float64

	// Envelope follower state
	gain float64

	attack  coeffCache
	release coeffCache

	// Per-sample gain of the last block
	gains []float64

	inputPeak  atomic.Uint64
	outputPeak atomic.Uint64
	reduction  atomic.Uint64
}

// NewHardKneeCompressor creates a compressor running at sampleRate with
// unity gain. WithBlockSize sizes the gain scratch buffer; a sample rate
// passed as an option is ignored in favor of sampleRate.
//
// Sample rate must be positive and finite.
func NewHardKneeCompressor(sampleRate float64, opts ...core.ProcessorOption) (*HardKneeCompressor, error) {
	if !(sampleRate > 0) || !core.IsFinite(sampleRate) {
		return nil, fmt.Errorf("hard-knee compressor sample rate must be positive and finite: %f", sampleRate)
	}

	cfg := core.ApplyProcessorOptions(opts...)

	c := &HardKneeCompressor{
		sampleRate: sampleRate,
		gains:      make([]float64, 0, cfg.BlockSize),
	}
	c.Reset()

	return c, nil
}

// SetSampleRate updates the sample rate used by the envelope follower.
func (c *HardKneeCompressor) SetSampleRate(sampleRate float64) error {
	if !(sampleRate > 0) || !core.IsFinite(sampleRate) {
		return fmt.Errorf("hard-knee compressor sample rate must be positive and finite: %f", sampleRate)
	}

	c.sampleRate = sampleRate
	c.attack.valid = false
	c.release.valid = false

	return nil
}

// SampleRate returns the current sample rate in Hz.
func (c *HardKneeCompressor) SampleRate() float64 { return c.sampleRate }

// CurrentGain returns the linear gain applied to the last processed sample.
func (c *HardKneeCompressor) CurrentGain() float64 { return c.gain }

// LastBlockGains returns the gain applied at each sample of the last block.
// The slice is reused by the next call to Process.
func (c *HardKneeCompressor) LastBlockGains() []float64 { return c.gains }

// Reset returns the envelope to unity gain and clears the metrics.
func (c *HardKneeCompressor) Reset() {
	c.gain = 1.0
	c.gains = c.gains[:0]
	c.ResetMetrics()
}

// ResetMetrics clears the published metrics.
func (c *HardKneeCompressor) ResetMetrics() {
	c.inputPeak.Store(0)
	c.outputPeak.Store(0)
	c.reduction.Store(math.Float64bits(0))
}

// Metrics returns the metrics of the most recently processed block.
func (c *HardKneeCompressor) Metrics() Metrics {
	return Metrics{
		InputPeak:       math.Float64frombits(c.inputPeak.Load()),
		OutputPeak:      math.Float64frombits(c.outputPeak.Load()),
		GainReductionDB: math.Float64frombits(c.reduction.Load()),
	}
}

// ProcessBlock implements core.BlockProcessor. The first input is
// compressed; parameters are read by name from params.
func (c *HardKneeCompressor) ProcessBlock(inputs []core.Block, output core.Block, params core.ParamArrays) bool {
	return c.Process(core.Input(inputs, 0), output, ResolveParams(params))
}

// Process compresses input into output. Output may alias input. An absent
// or empty input block is left alone. Process always reports that the
// processor should be kept alive.
func (c *HardKneeCompressor) Process(input, output core.Block, p Params) bool {
	frames := input.Frames()
	if frames == 0 {
		return true
	}

	c.gains = core.EnsureLen(c.gains, frames)

	var inPeak, outPeak float64
	minGain := 1.0

	for i := 0; i < frames; i++ {
		level := 0.0
		for _, ch := range input {
			if a := math.Abs(core.SampleAt(ch, i)); a > level {
				level = a
			}
		}

		target := c.targetGain(levelToDB(level), p.Threshold.At(i), p.Ratio.At(i))

		// Attack while the gain has to fall, release while it may rise.
		if target != c.gain {
			var coeff float64
			if target < c.gain {
				coeff = c.attack.lookup(p.Attack.At(i), c.sampleRate)
			} else {
				coeff = c.release.lookup(p.Release.At(i), c.sampleRate)
			}

			c.gain = coeff*c.gain + (1-coeff)*target
		}

		c.gains[i] = c.gain

		inPeak = math.Max(inPeak, level)
		outPeak = math.Max(outPeak, level*c.gain)
		minGain = math.Min(minGain, c.gain)
	}

	c.apply(input, output, frames)

	c.inputPeak.Store(math.Float64bits(inPeak))
	c.outputPeak.Store(math.Float64bits(outPeak))
	c.reduction.Store(math.Float64bits(20 * math.Log10(minGain)))

	return true
}

// apply multiplies every channel by the per-sample gain trace. Output
// channels without a matching input are silenced.
func (c *HardKneeCompressor) apply(input, output core.Block, frames int) {
	for ch, out := range output {
		n := min(len(out), frames)
		if ch >= len(input) {
			core.Zero(out[:n])
			continue
		}

		in := input[ch]
		m := min(n, len(in))
		vecmath.MulBlock(out[:m], in[:m], c.gains[:m])
		core.Zero(out[m:n])
	}
}

func (c *HardKneeCompressor) targetGain(levelDB, thresholdDB, ratio float64) float64 {
	gainDB := StaticGainDB(levelDB, thresholdDB, ratio)
	if gainDB == 0 {
		return 1.0
	}
	return math.Max(dbToGain(gainDB), minTargetGain)
}

// StaticGainDB evaluates the hard-knee curve: 0 dB at or below the
// threshold, (level - threshold) * (1/ratio - 1) above it. Ratios below 1
// (or NaN) are treated as 1; a NaN threshold disables compression.
func StaticGainDB(levelDB, thresholdDB, ratio float64) float64 {
	if !(levelDB > thresholdDB) {
		return 0
	}
	if !(ratio > minHardKneeRatio) {
		return 0
	}

	return (levelDB - thresholdDB) * (1/ratio - 1)
}

// levelToDB converts a linear peak level to dB with a floor so silence never
// reaches log10(0).
func levelToDB(level float64) float64 {
	if !(level > levelFloor) {
		return levelFloorDB
	}
	return 20 * mathLog10(level)
}
