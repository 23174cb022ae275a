package testutil

import (
	"math"
	"testing"

	"github.com/cwbudde/earcomp/dsp/core"
)

// RequireSliceNearlyEqual fails t if got and want differ in length or if
// any element pair exceeds eps (absolute tolerance).
func RequireSliceNearlyEqual(t *testing.T, got, want []float64, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		if diff := math.Abs(got[i] - want[i]); diff > eps {
			t.Fatalf("index %d: got %v, want %v (diff %v > eps %v)", i, got[i], want[i], diff, eps)
		}
	}
}

// RequireBlockFinite fails t if any sample of any channel is NaN or Inf.
func RequireBlockFinite(t *testing.T, b core.Block) {
	t.Helper()
	for ch, samples := range b {
		for i, v := range samples {
			if !core.IsFinite(v) {
				t.Fatalf("channel %d, frame %d: non-finite value %v", ch, i, v)
			}
		}
	}
}

// MaxAbsDiff returns the largest absolute sample difference between two
// blocks. Blocks of different shape are infinitely far apart.
func MaxAbsDiff(a, b core.Block) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	d := 0.0
	for ch := range a {
		if len(a[ch]) != len(b[ch]) {
			return math.Inf(1)
		}
		for i, v := range a[ch] {
			d = math.Max(d, math.Abs(v-b[ch][i]))
		}
	}
	return d
}
