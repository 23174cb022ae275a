package autogain

import (
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/earcomp/dsp/core"
)

// Matcher matches the loudness of a processed signal to a reference signal.
//
// Process must be called from a single audio thread. The ControlPort returned
// by Port may be written from one other goroutine concurrently; the
// observation methods are only safe on the audio thread or between calls.
type Matcher struct {
	cfg Config

	alpha float64 // power integration coefficient
	beta  float64 // gain smoothing coefficient

	sumProcessed float64
	sumReference float64
	gain         float64

	port *ControlPort

	// Scratch, sized for the configured block size
	powProcessed []float64
	powReference []float64
	square       []float64
	gains        []float64
}

// NewMatcher creates a Matcher with unity gain and empty integrators.
func NewMatcher(opts ...Option) (*Matcher, error) {
	cfg := ApplyOptions(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := cfg.BlockSize
	m := &Matcher{
		cfg:          cfg,
		alpha:        core.TimeConstantCoeff(cfg.IntegrationTime, cfg.SampleRate),
		beta:         core.TimeConstantCoeff(cfg.GainSmoothingTime, cfg.SampleRate),
		port:         newControlPort(cfg.TargetRatio),
		powProcessed: make([]float64, n),
		powReference: make([]float64, n),
		square:       make([]float64, n),
		gains:        make([]float64, 0, n),
	}
	m.Reset()

	return m, nil
}

// Config returns the configuration the Matcher was built with.
func (m *Matcher) Config() Config { return m.cfg }

// Port returns the control port of m.
func (m *Matcher) Port() *ControlPort { return m.port }

// CurrentGain returns the linear gain applied to the last processed sample.
func (m *Matcher) CurrentGain() float64 { return m.gain }

// SmoothedPowers returns the integrated power of the processed and the
// reference signal.
func (m *Matcher) SmoothedPowers() (processed, reference float64) {
	return m.sumProcessed, m.sumReference
}

// TargetRatio returns the ratio currently requested through the port.
func (m *Matcher) TargetRatio() float64 { return m.port.TargetRatio() }

// LastBlockGains returns the gain applied at each sample of the last block.
// The slice is reused by the next call to Process.
func (m *Matcher) LastBlockGains() []float64 { return m.gains }

// Coefficients returns the per-sample power integration and gain smoothing
// coefficients.
func (m *Matcher) Coefficients() (alpha, beta float64) { return m.alpha, m.beta }

// Reset reinitialises the matcher to unity gain with empty integrators. It
// must not run concurrently with Process. Pending port commands are kept.
func (m *Matcher) Reset() {
	m.sumProcessed = 0
	m.sumReference = 0
	m.gain = 1.0
	m.gains = m.gains[:0]
}

// ProcessBlock implements core.BlockProcessor. inputs[0] is the processed
// signal and inputs[1] the reference.
func (m *Matcher) ProcessBlock(inputs []core.Block, output core.Block, _ core.ParamArrays) bool {
	return m.Process(core.Input(inputs, 0), core.Input(inputs, 1), output)
}

// Process writes processed scaled by the matching gain to output. Output may
// alias processed. Power is summed over the channels of processed; reference
// channels that are missing or shorter contribute silence. An absent or
// empty processed block is left alone. Process always reports that the
// matcher should be kept alive.
func (m *Matcher) Process(processed, reference, output core.Block) bool {
	frames := processed.Frames()
	if frames == 0 {
		return true
	}

	m.grow(frames)

	channels := len(processed)
	powP := m.powProcessed[:frames]
	powR := m.powReference[:frames]
	m.blockPower(powP, processed, channels)
	m.blockPower(powR, reference, channels)

	minGain, maxGain := m.cfg.MinGain, m.cfg.MaxGain
	alpha, beta := m.alpha, m.beta

	for i := 0; i < frames; i++ {
		reset := m.port.takeReset()

		if reset {
			m.sumProcessed = powP[i]
			m.sumReference = powR[i]
		} else {
			m.sumProcessed = m.sumProcessed*alpha + powP[i]*(1-alpha)
			m.sumReference = m.sumReference*alpha + powR[i]*(1-alpha)
		}

		// Overflowing or NaN input must not stick in the sums.
		if !core.IsFinite(m.sumProcessed) || !core.IsFinite(m.sumReference) {
			m.sumProcessed, m.sumReference = 0, 0
		}

		target := 1.0
		if m.sumProcessed > Epsilon && m.sumReference > Epsilon {
			target = math.Sqrt(m.sumReference/m.sumProcessed) * m.port.TargetRatio()
			if !core.IsFinite(target) {
				target = 1.0
			}
		}

		target = core.Clamp(target, minGain, maxGain)

		if reset {
			m.gain = target
		} else {
			m.gain = m.gain*beta + target*(1-beta)
		}

		m.gains[i] = m.gain
	}

	m.apply(processed, output, frames)

	return true
}

// blockPower writes the per-sample sum of squares over the first channels of
// block into dst.
func (m *Matcher) blockPower(dst []float64, block core.Block, channels int) {
	core.Zero(dst)

	for c := 0; c < channels && c < len(block); c++ {
		ch := block[c]
		n := min(len(ch), len(dst))
		if n == 0 {
			continue
		}

		sq := m.square[:n]
		vecmath.MulBlock(sq, ch[:n], ch[:n])
		for i, v := range sq {
			dst[i] += v
		}
	}
}

// apply multiplies every channel by the gain trace. Output channels without
// a matching input are silenced.
func (m *Matcher) apply(input, output core.Block, frames int) {
	for ch, out := range output {
		n := min(len(out), frames)
		if ch >= len(input) {
			core.Zero(out[:n])
			continue
		}

		in := input[ch]
		k := min(n, len(in))
		vecmath.MulBlock(out[:k], in[:k], m.gains[:k])
		core.Zero(out[k:n])
	}
}

// grow resizes the scratch buffers when the host delivers a block larger
// than configured. This is the only allocation on the processing path.
func (m *Matcher) grow(frames int) {
	if frames > len(m.powProcessed) {
		m.powProcessed = make([]float64, frames)
		m.powReference = make([]float64, frames)
		m.square = make([]float64, frames)
	}

	m.gains = core.EnsureLen(m.gains, frames)
}

// String summarises the matcher state for logs.
func (m *Matcher) String() string {
	return fmt.Sprintf("autogain(gain=%.4f ratio=%.3f powers=%.3g/%.3g)",
		m.gain, m.TargetRatio(), m.sumProcessed, m.sumReference)
}
