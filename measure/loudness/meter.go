package loudness

import (
	"math"

	"github.com/cwbudde/earcomp/dsp/core"
)

const (
	momentaryDuration = 0.4
	shortTermDuration = 3.0

	absThreshold = -70.0
	relThreshold = -10.0

	// Gating blocks overlap by 75%.
	blockStepFactor = 0.25

	// Floor returned for silent windows.
	FloorLUFS = -120.0
)

// window is a sliding sum of K-weighted frame powers.
type window struct {
	history []float64
	pos     int
	sum     float64
}

func newWindow(n int) window {
	return window{history: make([]float64, max(n, 1))}
}

func (w *window) push(p float64) {
	w.sum += p - w.history[w.pos]
	if w.sum < 0 {
		w.sum = 0
	}
	w.history[w.pos] = p
	w.pos++
	if w.pos == len(w.history) {
		w.pos = 0
	}
}

func (w *window) mean() float64 { return w.sum / float64(len(w.history)) }

func (w *window) reset() {
	core.Zero(w.history)
	w.pos = 0
	w.sum = 0
}

// Meter implements ITU-R BS.1770 loudness metering on blocks.
//
// Channel weights are all 1, so the loudness is the K-weighted power summed
// across the metered channels.
type Meter struct {
	cfg MeterConfig

	filters []kFilter

	momentary window
	shortTerm window

	step      int
	sinceStep int

	// Gating block powers since Reset
	blocks []float64

	maxMomentary float64
	peak         float64
	frames       int64
}

// NewMeter creates a new loudness meter with the given options.
func NewMeter(opts ...MeterOption) *Meter {
	cfg := ApplyMeterOptions(opts...)

	m := &Meter{
		cfg:       cfg,
		filters:   make([]kFilter, cfg.Channels),
		momentary: newWindow(int(math.Round(momentaryDuration * cfg.SampleRate))),
		shortTerm: newWindow(int(math.Round(shortTermDuration * cfg.SampleRate))),
		step:      max(int(math.Round(momentaryDuration*blockStepFactor*cfg.SampleRate)), 1),
	}
	for i := range m.filters {
		m.filters[i] = newKFilter(cfg.SampleRate)
	}
	m.Reset()

	return m
}

// Config returns the meter configuration.
func (m *Meter) Config() MeterConfig { return m.cfg }

// Reset clears all filter, window and gating state.
func (m *Meter) Reset() {
	for i := range m.filters {
		m.filters[i].reset()
	}
	m.momentary.reset()
	m.shortTerm.reset()
	m.sinceStep = 0
	m.blocks = m.blocks[:0]
	m.maxMomentary = 0
	m.peak = 0
	m.frames = 0
}

// ProcessBlock meters every frame of b.
func (m *Meter) ProcessBlock(b core.Block) {
	frames := b.Frames()
	for i := 0; i < frames; i++ {
		power := 0.0
		for ch := range m.filters {
			var x float64
			if ch < len(b) {
				x = core.SampleAt(b[ch], i)
			}
			m.peak = math.Max(m.peak, math.Abs(x))

			y := m.filters[ch].process(x)
			power += y * y
		}

		m.momentary.push(power)
		m.shortTerm.push(power)
		m.frames++

		m.sinceStep++
		if m.sinceStep >= m.step {
			m.sinceStep = 0
			z := m.momentary.mean()
			m.blocks = append(m.blocks, z)
			m.maxMomentary = math.Max(m.maxMomentary, z)
		}
	}
}

// Momentary returns the loudness of the last 400 ms in LUFS.
func (m *Meter) Momentary() float64 { return toLUFS(m.momentary.mean()) }

// ShortTerm returns the loudness of the last 3 s in LUFS.
func (m *Meter) ShortTerm() float64 { return toLUFS(m.shortTerm.mean()) }

// MaxMomentary returns the loudest gating block seen since Reset in LUFS.
func (m *Meter) MaxMomentary() float64 { return toLUFS(m.maxMomentary) }

// Peak returns the largest absolute sample since Reset.
func (m *Meter) Peak() float64 { return m.peak }

// Integrated returns the gated loudness since Reset in LUFS. It returns
// negative infinity when every block falls below the absolute gate.
func (m *Meter) Integrated() float64 {
	absGate := fromLUFS(absThreshold)

	var sum float64
	var n int
	for _, z := range m.blocks {
		if z > absGate {
			sum += z
			n++
		}
	}
	if n == 0 {
		return math.Inf(-1)
	}

	relGate := fromLUFS(toLUFS(sum/float64(n)) + relThreshold)

	sum, n = 0, 0
	for _, z := range m.blocks {
		if z > absGate && z > relGate {
			sum += z
			n++
		}
	}
	if n == 0 {
		return math.Inf(-1)
	}

	return toLUFS(sum / float64(n))
}

// Report summarizes the loudness of a whole signal.
type Report struct {
	Integrated   float64 // LUFS
	MaxMomentary float64 // LUFS
	Peak         float64 // linear
}

// Measure meters all channels of b at sampleRate.
func Measure(b core.Block, sampleRate float64) Report {
	m := NewMeter(WithSampleRate(sampleRate), WithChannels(max(len(b), 1)))
	m.ProcessBlock(b)

	return Report{
		Integrated:   m.Integrated(),
		MaxMomentary: m.MaxMomentary(),
		Peak:         m.Peak(),
	}
}

func toLUFS(meanSquare float64) float64 {
	if !(meanSquare > 0) {
		return FloorLUFS
	}
	return -0.691 + core.LinearPowerToDB(meanSquare)
}

func fromLUFS(lufs float64) float64 {
	return core.DBPowerToLinear(lufs + 0.691)
}
