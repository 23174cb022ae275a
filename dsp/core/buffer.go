package core

// EnsureLen returns a slice with the requested length, reusing buf capacity if possible.
func EnsureLen(buf []float64, n int) []float64 {
	if n <= 0 {
		return buf[:0]
	}
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]float64, n)
}

// Zero sets all values in buf to 0.
func Zero(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}

// SampleAt returns buf[i], or 0 when i lies outside buf. Absent samples are
// silence.
func SampleAt(buf []float64, i int) float64 {
	if i < 0 || i >= len(buf) {
		return 0
	}
	return buf[i]
}
