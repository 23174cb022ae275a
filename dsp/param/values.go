package param

// Values is a read-only view of one parameter for the duration of a block.
// It is a small value type; resolving and reading it never allocates.
type Values struct {
	values   []float64
	fallback float64
}

// Resolve wraps a host-supplied parameter array. An empty array reads as
// fallback everywhere.
func Resolve(arr []float64, fallback float64) Values {
	return Values{values: arr, fallback: fallback}
}

// Constant returns Values holding v for every sample.
func Constant(v float64) Values {
	return Values{fallback: v}
}

// At returns the parameter value at sample index i. Per-sample arrays
// shorter than the block repeat their last value.
func (v Values) At(i int) float64 {
	n := len(v.values)
	switch {
	case n == 0:
		return v.fallback
	case n == 1 || i < 0:
		return v.values[0]
	case i < n:
		return v.values[i]
	default:
		return v.values[n-1]
	}
}

// IsConstant reports whether the value is the same for every sample of the
// block by construction.
func (v Values) IsConstant() bool {
	return len(v.values) <= 1
}

// Len returns the length of the underlying array.
func (v Values) Len() int { return len(v.values) }
