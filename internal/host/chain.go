package host

import (
	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/earcomp/dsp/core"
	"github.com/cwbudde/earcomp/dsp/effects/autogain"
	"github.com/cwbudde/earcomp/dsp/effects/dynamics"
)

// Chain is the listening-test graph: the dry input is compressed and the
// compressed signal is then loudness matched against the dry input, so the
// comparison is not biased by level.
type Chain struct {
	Compressor *dynamics.HardKneeCompressor
	// Matcher is nil when matching is disabled.
	Matcher *autogain.Matcher

	wet     core.Block
	wetView core.Block
	gains   []float64
	in      [1]core.Block
}

// NewChain builds a compressor at sampleRate followed, when match is set, by
// an auto-gain matcher configured with opts. Both stages and the stereo
// scratch are sized for the block size given in opts, so stereo blocks up to
// that size are processed without allocating.
func NewChain(sampleRate float64, match bool, opts ...autogain.Option) (*Chain, error) {
	opts = append([]autogain.Option{autogain.WithSampleRate(sampleRate)}, opts...)
	blockSize := autogain.ApplyOptions(opts...).BlockSize

	comp, err := dynamics.NewHardKneeCompressor(sampleRate, core.WithBlockSize(blockSize))
	if err != nil {
		return nil, err
	}

	c := &Chain{Compressor: comp}

	if match {
		c.Matcher, err = autogain.NewMatcher(opts...)
		if err != nil {
			return nil, err
		}
	}

	c.grow(2, blockSize)

	return c, nil
}

// Reserve sizes the chain scratch for blocks of up to frames frames on
// channels channels. The stages themselves are sized by the block size
// passed to NewChain.
func (c *Chain) Reserve(channels, frames int) {
	c.grow(channels, frames)
}

// Port returns the matcher's control port, or nil without a matcher.
func (c *Chain) Port() *autogain.ControlPort {
	if c.Matcher == nil {
		return nil
	}
	return c.Matcher.Port()
}

// Reset resets both stages.
func (c *Chain) Reset() {
	c.Compressor.Reset()
	if c.Matcher != nil {
		c.Matcher.Reset()
	}
	c.gains = c.gains[:0]
}

// ProcessBlock implements core.BlockProcessor. inputs[0] is the dry signal;
// params are forwarded to the compressor.
func (c *Chain) ProcessBlock(inputs []core.Block, output core.Block, params core.ParamArrays) bool {
	dry := core.Input(inputs, 0)
	frames := dry.Frames()
	if frames == 0 {
		return true
	}

	c.grow(len(dry), frames)
	c.wetView = c.wet[:len(dry)].Slice(c.wetView, 0, frames)
	wet := c.wetView

	c.in[0] = dry
	c.Compressor.ProcessBlock(c.in[:], wet, params)

	if c.Matcher == nil {
		for ch, out := range output {
			n := min(len(out), frames)
			if ch < len(wet) {
				copy(out[:n], wet[ch])
				continue
			}
			core.Zero(out[:n])
		}
		return true
	}

	return c.Matcher.Process(wet, dry, output)
}

// LastBlockGains returns the total gain applied to the dry signal at each
// sample of the last block: compressor gain times matching gain.
func (c *Chain) LastBlockGains() []float64 {
	comp := c.Compressor.LastBlockGains()
	if c.Matcher == nil {
		return comp
	}

	match := c.Matcher.LastBlockGains()
	n := min(len(comp), len(match))
	c.gains = core.EnsureLen(c.gains, n)
	vecmath.MulBlock(c.gains, comp[:n], match[:n])

	return c.gains
}

func (c *Chain) grow(channels, frames int) {
	if len(c.wet) >= channels && c.wet.Frames() >= frames && cap(c.gains) >= frames {
		return
	}

	c.wet = core.NewBlock(max(channels, len(c.wet)), max(frames, c.wet.Frames()))
	c.wetView = make(core.Block, 0, len(c.wet))
	c.gains = make([]float64, 0, max(frames, cap(c.gains)))
}
