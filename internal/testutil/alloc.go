package testutil

import (
	"runtime"
)

// Mallocs returns the number of heap allocations made by a single call of f.
// Unlike testing.AllocsPerRun it does not warm f up first, so it catches
// buffers that are only grown on the first call.
func Mallocs(f func()) uint64 {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(1))

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	f()
	runtime.ReadMemStats(&after)

	return after.Mallocs - before.Mallocs
}
