package core

// Block is one host callback's worth of multichannel audio: an ordered list
// of channels, each a slice of samples. All blocks passed to a single
// process call share the same frame count.
type Block [][]float64

// NewBlock allocates a zeroed block backed by one contiguous array.
func NewBlock(channels, frames int) Block {
	if channels <= 0 {
		return Block{}
	}
	if frames < 0 {
		frames = 0
	}

	backing := make([]float64, channels*frames)
	b := make(Block, channels)
	for c := range b {
		b[c] = backing[c*frames : (c+1)*frames : (c+1)*frames]
	}
	return b
}

// Channels returns the number of channels.
func (b Block) Channels() int { return len(b) }

// Frames returns the length of the first channel, or 0 for a block without
// channels.
func (b Block) Frames() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// IsEmpty reports whether the block carries no samples.
func (b Block) IsEmpty() bool { return b.Frames() == 0 }

// Slice returns a view of frames [start, end) of every channel without
// copying. Bounds are clamped per channel.
func (b Block) Slice(dst Block, start, end int) Block {
	dst = dst[:0]
	for _, ch := range b {
		s, e := start, end
		if s > len(ch) {
			s = len(ch)
		}
		if e > len(ch) {
			e = len(ch)
		}
		if s > e {
			s = e
		}
		dst = append(dst, ch[s:e])
	}
	return dst
}

// Zero clears every channel.
func (b Block) Zero() {
	for _, ch := range b {
		Zero(ch)
	}
}

// DeinterleaveFloat32 splits interleaved float32 frames into dst and returns
// the number of frames written. The channel count is taken from dst.
func DeinterleaveFloat32(dst Block, src []float32) int {
	channels := len(dst)
	if channels == 0 {
		return 0
	}

	frames := min(len(src)/channels, dst.Frames())
	for c, ch := range dst {
		n := min(frames, len(ch))
		for i := 0; i < n; i++ {
			ch[i] = float64(src[i*channels+c])
		}
	}
	return frames
}

// InterleaveFloat32 writes src into interleaved float32 frames and returns
// the number of frames written.
func InterleaveFloat32(dst []float32, src Block) int {
	channels := len(src)
	if channels == 0 {
		return 0
	}

	frames := min(len(dst)/channels, src.Frames())
	for c, ch := range src {
		for i := 0; i < frames; i++ {
			dst[i*channels+c] = float32(SampleAt(ch, i))
		}
	}
	return frames
}
