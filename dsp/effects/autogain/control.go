package autogain

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/cwbudde/earcomp/dsp/core"
)

// ErrInvalidRatio is returned when a target ratio is not positive and finite.
var ErrInvalidRatio = errors.New("autogain: target ratio must be positive and finite")

// ControlPort carries commands from one producer goroutine to the audio
// thread of a Matcher without locks.
//
// The target ratio is a single value: the most recent write wins. A reset
// request is a latch: any number of requests made before the audio thread
// observes it collapse into one reset.
type ControlPort struct {
	ratio atomic.Uint64
	reset atomic.Bool
}

func newControlPort(ratio float64) *ControlPort {
	p := &ControlPort{}
	p.ratio.Store(math.Float64bits(ratio))
	return p
}

// SetTargetRatio sets the desired loudness of the processed signal relative
// to the reference, as a linear amplitude factor.
func (p *ControlPort) SetTargetRatio(ratio float64) error {
	if err := validateRatio(ratio); err != nil {
		return err
	}

	p.ratio.Store(math.Float64bits(ratio))

	return nil
}

// RequestReset asks the audio thread to drop its integration history and
// jump straight to the gain implied by the next sample.
func (p *ControlPort) RequestReset() {
	p.reset.Store(true)
}

// Post applies a decoded control message.
func (p *ControlPort) Post(msg Message) error {
	switch msg.Type {
	case MessageSetOffset:
		return p.SetTargetRatio(msg.Value)
	case MessageResetGain:
		p.RequestReset()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// TargetRatio returns the most recently written ratio.
func (p *ControlPort) TargetRatio() float64 {
	return math.Float64frombits(p.ratio.Load())
}

// ResetPending reports whether a reset has been requested but not yet
// consumed by the audio thread.
func (p *ControlPort) ResetPending() bool {
	return p.reset.Load()
}

// takeReset consumes a pending reset. It returns true at most once per
// latched request.
func (p *ControlPort) takeReset() bool {
	return p.reset.Load() && p.reset.CompareAndSwap(true, false)
}

func validateRatio(ratio float64) error {
	if !(ratio > 0) || !core.IsFinite(ratio) {
		return fmt.Errorf("%w: %f", ErrInvalidRatio, ratio)
	}
	return nil
}
