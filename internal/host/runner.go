// Package host models the real-time scheduler that drives block processors:
// it cuts whole buffers into fixed-size blocks, slices automation lanes to
// match and collects per-sample gain traces.
package host

import (
	"errors"
	"fmt"

	"github.com/cwbudde/earcomp/dsp/core"
)

// ErrShortOutput is returned when the output cannot hold the rendered frames.
var ErrShortOutput = errors.New("host: output shorter than input")

// GainReporter is implemented by processors that expose the gain they
// applied to each sample of the last block.
type GainReporter interface {
	LastBlockGains() []float64
}

// BlockHook is called before block index starting at frame start.
type BlockHook func(index, start int)

// Runner renders whole buffers through a core.BlockProcessor.
//
// Params holds block-constant values (1-length arrays) and automation lanes
// (arrays as long as the rendered input); lanes are sliced per block so the
// processor sees sample-accurate automation.
type Runner struct {
	blockSize int

	Params core.ParamArrays

	// OnBlock, if set, runs before every block. Control commands posted
	// here take effect at the first sample of that block.
	OnBlock BlockHook

	// CollectGains appends the gain trace of GainReporter processors to
	// Result.Gains.
	CollectGains bool

	inViews []core.Block
	outView core.Block
	params  core.ParamArrays
}

// Result describes a finished render.
type Result struct {
	Frames int
	Blocks int
	// Alive is the keep-alive flag returned by the last block.
	Alive bool
	// Gains holds one gain per rendered frame when collected.
	Gains []float64
}

// NewRunner creates a Runner with the given block size.
func NewRunner(blockSize int) (*Runner, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("host: block size must be positive: %d", blockSize)
	}
	return &Runner{blockSize: blockSize, Params: core.ParamArrays{}}, nil
}

// BlockSize returns the number of frames per block.
func (r *Runner) BlockSize() int { return r.blockSize }

// Run processes inputs into output block by block. The length of inputs[0]
// determines the rendered frames; output may alias inputs[0].
func (r *Runner) Run(p core.BlockProcessor, inputs []core.Block, output core.Block) (Result, error) {
	frames := core.Input(inputs, 0).Frames()
	if output.Frames() < frames {
		return Result{}, fmt.Errorf("%w: %d < %d frames", ErrShortOutput, output.Frames(), frames)
	}

	res := Result{Frames: frames, Alive: true}
	reporter, hasGains := p.(GainReporter)
	if r.CollectGains && hasGains {
		res.Gains = make([]float64, 0, frames)
	}

	if len(r.inViews) < len(inputs) {
		r.inViews = make([]core.Block, len(inputs))
	}
	views := r.inViews[:len(inputs)]

	for start := 0; start < frames; start += r.blockSize {
		end := min(start+r.blockSize, frames)

		for i, in := range inputs {
			views[i] = in.Slice(views[i], start, end)
		}
		r.outView = output.Slice(r.outView, start, end)

		if r.OnBlock != nil {
			r.OnBlock(res.Blocks, start)
		}

		res.Alive = p.ProcessBlock(views, r.outView, r.blockParams(start, end, frames))
		res.Blocks++

		if res.Gains != nil {
			res.Gains = append(res.Gains, reporter.LastBlockGains()...)
		}
	}

	return res, nil
}

// blockParams slices automation lanes to [start, end). Arrays that are not
// full-length lanes are passed through unchanged.
func (r *Runner) blockParams(start, end, frames int) core.ParamArrays {
	if len(r.Params) == 0 {
		return nil
	}

	if r.params == nil {
		r.params = make(core.ParamArrays, len(r.Params))
	}
	clear(r.params)

	for name, arr := range r.Params {
		if len(arr) > 1 && len(arr) == frames {
			r.params[name] = arr[start:end]
			continue
		}
		r.params[name] = arr
	}

	return r.params
}
