package core

import (
	"math"
	"testing"
)

func TestApplyProcessorOptions(t *testing.T) {
	cfg := ApplyProcessorOptions(WithSampleRate(96000), WithBlockSize(256))
	if cfg.SampleRate != 96000 {
		t.Fatalf("sample rate = %v, want 96000", cfg.SampleRate)
	}
	if cfg.BlockSize != 256 {
		t.Fatalf("block size = %d, want 256", cfg.BlockSize)
	}
}

func TestDefaultProcessorConfig(t *testing.T) {
	cfg := DefaultProcessorConfig()
	if cfg.SampleRate != 48000 || cfg.BlockSize != 128 {
		t.Fatalf("cfg = %#v, want 48000 Hz / 128 frames", cfg)
	}
}

func TestInvalidOptionsIgnored(t *testing.T) {
	cfg := ApplyProcessorOptions(
		WithSampleRate(0),
		WithSampleRate(math.NaN()),
		WithSampleRate(math.Inf(1)),
		WithBlockSize(-1),
		nil,
	)
	def := DefaultProcessorConfig()
	if cfg != def {
		t.Fatalf("cfg = %#v, want %#v", cfg, def)
	}
}
