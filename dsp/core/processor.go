package core

// ParamArrays carries automatable parameter values for one process call,
// keyed by parameter name. A 1-length array holds a block-constant value; an
// array as long as the block holds one value per sample.
type ParamArrays map[string][]float64

// BlockProcessor is the capability a real-time host drives: one call per
// fixed-size block. Implementations write output in place and return false
// only when the host may discard them.
//
// ProcessBlock must not allocate, lock, or perform I/O.
type BlockProcessor interface {
	ProcessBlock(inputs []Block, output Block, params ParamArrays) bool
}

// Input returns inputs[i], or nil when the host did not connect that input.
func Input(inputs []Block, i int) Block {
	if i < 0 || i >= len(inputs) {
		return nil
	}
	return inputs[i]
}
