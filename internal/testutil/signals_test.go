package testutil

import (
	"math"
	"testing"
)

func TestDeterministicSine(t *testing.T) {
	s := DeterministicSine(1000, 48000, 1.0, 48)
	if len(s) != 48 {
		t.Fatalf("len = %d, want 48", len(s))
	}
	// First sample of a sine at phase 0 should be 0.
	if math.Abs(s[0]) > 1e-15 {
		t.Fatalf("s[0] = %v, want 0", s[0])
	}
	// All values in [-1, 1].
	for i, v := range s {
		if v < -1 || v > 1 {
			t.Fatalf("s[%d] = %v out of range", i, v)
		}
	}
}

func TestDeterministicSineReproducible(t *testing.T) {
	a := DeterministicSine(440, 44100, 0.5, 100)
	b := DeterministicSine(440, 44100, 0.5, 100)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic at index %d", i)
		}
	}
}

func TestDeterministicNoise(t *testing.T) {
	a := DeterministicNoise(42, 1.0, 64)
	b := DeterministicNoise(42, 1.0, 64)
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("noise not deterministic at index %d", i)
		}
	}
}

func TestDeterministicNoiseDifferentSeeds(t *testing.T) {
	a := DeterministicNoise(1, 1.0, 16)
	b := DeterministicNoise(2, 1.0, 16)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical noise")
	}
}

func TestDC(t *testing.T) {
	d := DC(0.5, 4)
	for i, v := range d {
		if v != 0.5 {
			t.Fatalf("DC[%d] = %v, want 0.5", i, v)
		}
	}
}

func TestBlockOf(t *testing.T) {
	b := BlockOf(2, []float64{0.25, -0.25})
	if b.Channels() != 2 || b.Frames() != 2 {
		t.Fatalf("block = %dx%d, want 2x2", b.Channels(), b.Frames())
	}
	b[0][0] = 1
	if b[1][0] != 0.25 {
		t.Fatal("channels must be independent copies")
	}
}

func TestNoiseBlock(t *testing.T) {
	b := NoiseBlock(7, 0.5, 2, 32)
	if b.Channels() != 2 || b.Frames() != 32 {
		t.Fatalf("block = %dx%d, want 2x32", b.Channels(), b.Frames())
	}
	same := true
	for i := range b[0] {
		if b[0][i] != b[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("channels should carry different noise")
	}

	clone := CloneBlock(b)
	clone[0][0] = 9
	if b[0][0] == 9 {
		t.Fatal("CloneBlock must deep-copy")
	}
}
