package loudness

import (
	"math"

	"github.com/cwbudde/earcomp/dsp/core"
)

const (
	shelfFreq   = 1500.0
	shelfGainDB = 4.0
	highpassHz  = 38.0
)

// section is a transposed direct form II biquad with a0 normalized to 1.
type section struct {
	b0, b1, b2 float64
	a1, a2     float64
	d0, d1     float64
}

func (s *section) process(x float64) float64 {
	y := s.b0*x + s.d0
	s.d0 = core.FlushDenormals(s.b1*x - s.a1*y + s.d1)
	s.d1 = core.FlushDenormals(s.b2*x - s.a2*y)
	return y
}

func (s *section) reset() { s.d0, s.d1 = 0, 0 }

func normalized(b0, b1, b2, a0, a1, a2 float64) section {
	return section{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// highShelf designs an RBJ high shelf.
func highShelf(freq, gainDB, q, sampleRate float64) section {
	w0 := 2 * math.Pi * freq / sampleRate
	cw, sw := math.Cos(w0), math.Sin(w0)
	a := math.Pow(10, gainDB/40)
	beta := 2 * math.Sqrt(a) * sw / (2 * q)

	return normalized(
		a*((a+1)+(a-1)*cw+beta),
		-2*a*((a-1)+(a+1)*cw),
		a*((a+1)+(a-1)*cw-beta),
		(a+1)-(a-1)*cw+beta,
		2*((a-1)-(a+1)*cw),
		(a+1)-(a-1)*cw-beta,
	)
}

// highpass designs an RBJ second-order highpass.
func highpass(freq, q, sampleRate float64) section {
	w0 := 2 * math.Pi * freq / sampleRate
	cw, sw := math.Cos(w0), math.Sin(w0)
	alpha := sw / (2 * q)

	return normalized((1+cw)/2, -(1 + cw), (1+cw)/2, 1+alpha, -2*cw, 1-alpha)
}

// kFilter is the BS.1770 K-weighting pre-filter of one channel.
type kFilter struct {
	shelf, hp section
}

func newKFilter(sampleRate float64) kFilter {
	q := 1 / math.Sqrt2
	return kFilter{
		shelf: highShelf(shelfFreq, shelfGainDB, q, sampleRate),
		hp:    highpass(highpassHz, q, sampleRate),
	}
}

func (k *kFilter) process(x float64) float64 {
	return k.hp.process(k.shelf.process(x))
}

func (k *kFilter) reset() {
	k.shelf.reset()
	k.hp.reset()
}
