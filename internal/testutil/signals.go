package testutil

import (
	"math"
	"math/rand"

	"github.com/cwbudde/earcomp/dsp/core"
)

// DeterministicSine generates a deterministic sine wave.
func DeterministicSine(freqHz, sampleRate, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	step := 2 * math.Pi * freqHz / sampleRate
	for i := range out {
		out[i] = amplitude * math.Sin(step*float64(i))
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// DC generates a constant-valued signal.
func DC(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}
	return out
}

// BlockOf builds a multichannel block where every channel is a copy of ch.
func BlockOf(channels int, ch []float64) core.Block {
	b := core.NewBlock(channels, len(ch))
	for c := range b {
		copy(b[c], ch)
	}
	return b
}

// NoiseBlock generates a block of independent deterministic noise channels.
func NoiseBlock(seed int64, amplitude float64, channels, frames int) core.Block {
	b := make(core.Block, channels)
	for c := range b {
		b[c] = DeterministicNoise(seed+int64(c), amplitude, frames)
	}
	return b
}

// CloneBlock returns a deep copy of b.
func CloneBlock(b core.Block) core.Block {
	out := make(core.Block, len(b))
	for c, ch := range b {
		out[c] = append([]float64(nil), ch...)
	}
	return out
}
