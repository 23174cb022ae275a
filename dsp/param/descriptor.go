package param

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is returned by [Descriptor.Validate] for values outside the
// declared bounds.
var ErrOutOfRange = errors.New("param: value out of range")

// Descriptor declares one automatable parameter.
type Descriptor struct {
	Name    string
	Unit    string
	Default float64
	Min     float64
	Max     float64
}

// Clamp limits v to [Min, Max]. NaN maps to Default.
func (d Descriptor) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return d.Default
	}
	if v < d.Min {
		return d.Min
	}
	if v > d.Max {
		return d.Max
	}
	return v
}

// Validate reports whether v is finite and within [Min, Max].
func (d Descriptor) Validate(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("param: %s must be finite: %f", d.Name, v)
	}
	if v < d.Min || v > d.Max {
		return fmt.Errorf("%w: %s must be in [%g, %g]: %g", ErrOutOfRange, d.Name, d.Min, d.Max, v)
	}
	return nil
}

// Normalize maps a plain value to [0, 1] for knob widgets.
func (d Descriptor) Normalize(plain float64) float64 {
	if d.Max <= d.Min {
		return 0
	}
	n := (d.Clamp(plain) - d.Min) / (d.Max - d.Min)
	return math.Min(math.Max(n, 0), 1)
}

// Denormalize maps a normalized [0, 1] value back to the plain range.
func (d Descriptor) Denormalize(normalized float64) float64 {
	normalized = math.Min(math.Max(normalized, 0), 1)
	return d.Min + normalized*(d.Max-d.Min)
}

// Set is an ordered, static list of descriptors.
type Set []Descriptor

// Lookup returns the descriptor with the given name.
func (s Set) Lookup(name string) (Descriptor, bool) {
	for _, d := range s {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Names returns the parameter names in declaration order.
func (s Set) Names() []string {
	names := make([]string, len(s))
	for i, d := range s {
		names[i] = d.Name
	}
	return names
}

// Defaults returns a fresh map holding each parameter's default as a
// block-constant array.
func (s Set) Defaults() map[string][]float64 {
	out := make(map[string][]float64, len(s))
	for _, d := range s {
		out[d.Name] = []float64{d.Default}
	}
	return out
}

// ClampArray clamps every value of arr in place against the named
// descriptor. Unknown names are left untouched and reported as false.
func (s Set) ClampArray(name string, arr []float64) bool {
	d, ok := s.Lookup(name)
	if !ok {
		return false
	}
	for i, v := range arr {
		arr[i] = d.Clamp(v)
	}
	return true
}
