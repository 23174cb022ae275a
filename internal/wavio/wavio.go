// Package wavio reads and writes PCM WAV files as core.Block buffers for
// the command-line host. It is never used on the processing path.
package wavio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cwbudde/earcomp/dsp/core"
)

const pcmFormat = 1

var (
	// ErrInvalidFile is returned for input that is not a PCM WAV file.
	ErrInvalidFile = errors.New("wavio: invalid WAV file")
	// ErrUnsupportedBitDepth is returned for bit depths other than 16, 24
	// and 32.
	ErrUnsupportedBitDepth = errors.New("wavio: unsupported bit depth")
)

// Audio is a decoded file.
type Audio struct {
	Data       core.Block
	SampleRate float64
	BitDepth   int
}

// Duration returns the length of the audio in seconds.
func (a Audio) Duration() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(a.Data.Frames()) / a.SampleRate
}

// ReadFile decodes the WAV file at path.
func ReadFile(path string) (Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return Audio{}, fmt.Errorf("wavio: open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	a, err := Decode(f)
	if err != nil {
		return Audio{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Decode reads a whole PCM WAV stream and normalises it to [-1, 1).
func Decode(r io.ReadSeeker) (Audio, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Audio{}, ErrInvalidFile
	}

	bitDepth := int(dec.BitDepth)
	scale, err := fullScale(bitDepth)
	if err != nil {
		return Audio{}, err
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Audio{}, fmt.Errorf("wavio: read samples: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		return Audio{}, fmt.Errorf("%w: %d channels", ErrInvalidFile, channels)
	}

	frames := len(buf.Data) / channels
	block := core.NewBlock(channels, frames)
	inv := 1 / scale
	for i := 0; i < frames; i++ {
		for ch := range block {
			block[ch][i] = float64(buf.Data[i*channels+ch]) * inv
		}
	}

	return Audio{
		Data:       block,
		SampleRate: float64(buf.Format.SampleRate),
		BitDepth:   bitDepth,
	}, nil
}

// WriteFile encodes a to a new WAV file at path.
func WriteFile(path string, a Audio) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wavio: create output: %w", err)
	}

	if err := Encode(f, a); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}

	return f.Close()
}

// Encode writes a as PCM WAV. Samples are clipped to full scale.
func Encode(w io.WriteSeeker, a Audio) error {
	scale, err := fullScale(a.BitDepth)
	if err != nil {
		return err
	}

	channels := a.Data.Channels()
	if channels == 0 {
		return fmt.Errorf("wavio: no channels to write")
	}

	rate := int(math.Round(a.SampleRate))
	if rate <= 0 {
		return fmt.Errorf("wavio: sample rate must be positive: %f", a.SampleRate)
	}

	frames := a.Data.Frames()
	data := make([]int, frames*channels)
	for i := 0; i < frames; i++ {
		for ch, samples := range a.Data {
			data[i*channels+ch] = quantize(core.SampleAt(samples, i), scale)
		}
	}

	enc := wav.NewEncoder(w, rate, a.BitDepth, channels, pcmFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: a.BitDepth,
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavio: write samples: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavio: finalize: %w", err)
	}

	return nil
}

func quantize(v, scale float64) int {
	if math.IsNaN(v) {
		return 0
	}
	q := math.Round(v * scale)
	return int(core.Clamp(q, -scale, scale-1))
}

func fullScale(bitDepth int) (float64, error) {
	switch bitDepth {
	case 16, 24, 32:
		return float64(int64(1) << (bitDepth - 1)), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
}
