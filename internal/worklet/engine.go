// Package worklet adapts the block processors to the buffer layout of a Web
// Audio worklet: float32 channel arrays, float32 parameter arrays and
// key/value port messages. Processor instances are addressed by handle so
// a JavaScript bridge can hold them.
package worklet

import (
	"errors"
	"fmt"

	"github.com/cwbudde/earcomp/dsp/core"
	"github.com/cwbudde/earcomp/dsp/effects/autogain"
	"github.com/cwbudde/earcomp/dsp/effects/dynamics"
	"github.com/cwbudde/earcomp/dsp/param"
)

// Registered processor names.
const (
	KindCompressor = "hard-knee-compressor"
	KindAutoGain   = "auto-gain-processor"
)

var (
	// ErrUnknownHandle is returned for handles that were never issued or
	// have been released.
	ErrUnknownHandle = errors.New("worklet: unknown handle")
	// ErrNoPort is returned when posting to a processor without a control
	// port.
	ErrNoPort = errors.New("worklet: processor has no message port")
)

// Handle identifies a processor instance inside an Engine.
type Handle int

// ProcessorInfo describes a processor kind to the host.
type ProcessorInfo struct {
	Kind           string
	NumberOfInputs int
	Params         param.Set
}

// Meter is a snapshot for UI meters.
type Meter struct {
	Gain            float64
	GainReductionDB float64
	InputPeak       float64
	OutputPeak      float64
}

type node struct {
	kind   string
	proc   core.BlockProcessor
	comp   *dynamics.HardKneeCompressor
	match  *autogain.Matcher
	params param.Set

	inputs []core.Block
	output core.Block
	values core.ParamArrays
}

// Engine owns processor instances. It is not safe for concurrent use; a
// worklet scope calls it from its single audio thread.
type Engine struct {
	nodes map[Handle]*node
	next  Handle
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{nodes: make(map[Handle]*node)}
}

// Descriptors lists the processor kinds an engine can create.
func Descriptors() []ProcessorInfo {
	return []ProcessorInfo{
		{Kind: KindCompressor, NumberOfInputs: 1, Params: dynamics.Descriptors},
		{Kind: KindAutoGain, NumberOfInputs: 2},
	}
}

// NewCompressor creates a hard-knee compressor.
func (e *Engine) NewCompressor(sampleRate float64) (Handle, error) {
	comp, err := dynamics.NewHardKneeCompressor(sampleRate)
	if err != nil {
		return 0, err
	}

	return e.add(&node{
		kind:   KindCompressor,
		proc:   comp,
		comp:   comp,
		params: dynamics.Descriptors,
	}), nil
}

// NewAutoGain creates an auto-gain matcher with the given target ratio.
func (e *Engine) NewAutoGain(sampleRate, ratio float64) (Handle, error) {
	m, err := autogain.NewMatcher(
		autogain.WithSampleRate(sampleRate),
		autogain.WithTargetRatio(ratio),
	)
	if err != nil {
		return 0, err
	}

	return e.add(&node{
		kind:  KindAutoGain,
		proc:  m,
		match: m,
	}), nil
}

func (e *Engine) add(n *node) Handle {
	e.next++
	n.values = make(core.ParamArrays, len(n.params))
	e.nodes[e.next] = n
	return e.next
}

// Release drops a processor. It reports whether the handle was live.
func (e *Engine) Release(h Handle) bool {
	if _, ok := e.nodes[h]; !ok {
		return false
	}
	delete(e.nodes, h)
	return true
}

// Len returns the number of live processors.
func (e *Engine) Len() int { return len(e.nodes) }

// Kind returns the processor kind behind h.
func (e *Engine) Kind(h Handle) (string, bool) {
	n, ok := e.nodes[h]
	if !ok {
		return "", false
	}
	return n.kind, true
}

// Process runs one render quantum. inputs is indexed by input, then
// channel; output by channel. Parameter arrays hold one value or one value
// per frame and are clamped to their declared range.
func (e *Engine) Process(h Handle, inputs [][][]float32, output [][]float32, params map[string][]float32) (bool, error) {
	n, ok := e.nodes[h]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}

	if len(n.inputs) < len(inputs) {
		n.inputs = append(n.inputs, make([]core.Block, len(inputs)-len(n.inputs))...)
	}
	for i, in := range inputs {
		n.inputs[i] = loadBlock(n.inputs[i], in)
	}

	// Processors leave parts of the output alone; keep the host's content
	// there.
	n.output = loadBlock(n.output, output)
	n.loadParams(params)

	alive := n.proc.ProcessBlock(n.inputs[:len(inputs)], n.output, n.values)

	for ch, dst := range output {
		src := n.output[ch]
		for i := range dst {
			dst[i] = float32(src[i])
		}
	}

	return alive, nil
}

// PostMessage delivers a port message such as {"type": "setOffset",
// "value": 0.8}.
func (e *Engine) PostMessage(h Handle, raw map[string]any) error {
	n, ok := e.nodes[h]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}

	if n.match == nil {
		return fmt.Errorf("%w: %s", ErrNoPort, n.kind)
	}

	msg, err := autogain.DecodeMessage(raw)
	if err != nil {
		return err
	}

	return n.match.Port().Post(msg)
}

// Meter returns the current gain state of the processor behind h.
func (e *Engine) Meter(h Handle) (Meter, error) {
	n, ok := e.nodes[h]
	if !ok {
		return Meter{}, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}

	if n.comp != nil {
		m := n.comp.Metrics()
		return Meter{
			Gain:            n.comp.CurrentGain(),
			GainReductionDB: m.GainReductionDB,
			InputPeak:       m.InputPeak,
			OutputPeak:      m.OutputPeak,
		}, nil
	}

	return Meter{Gain: n.match.CurrentGain()}, nil
}

// loadParams converts the host arrays into the node's reusable parameter
// map. Parameters absent from this call fall back to their defaults.
func (n *node) loadParams(params map[string][]float32) {
	for name, arr := range n.values {
		if _, ok := params[name]; !ok {
			n.values[name] = arr[:0]
		}
	}

	for name, src := range params {
		if _, known := n.params.Lookup(name); !known {
			continue
		}

		dst := core.EnsureLen(n.values[name], len(src))
		for i, v := range src {
			dst[i] = float64(v)
		}
		n.params.ClampArray(name, dst)
		n.values[name] = dst
	}
}

// loadBlock converts src into dst, reusing dst's storage.
func loadBlock(dst core.Block, src [][]float32) core.Block {
	dst = sizeBlock(dst, src)
	for ch, s := range src {
		d := dst[ch]
		for i, v := range s {
			d[i] = float64(v)
		}
	}
	return dst
}

// sizeBlock shapes dst like src without copying samples.
func sizeBlock(dst core.Block, src [][]float32) core.Block {
	if cap(dst) < len(src) {
		grown := make(core.Block, len(src))
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:len(src)]

	for ch, s := range src {
		dst[ch] = core.EnsureLen(dst[ch], len(s))
	}
	return dst
}
