package autogain

import (
	"errors"
	"fmt"

	"github.com/cwbudde/earcomp/dsp/core"
)

const (
	// DefaultIntegrationTime is the power integration time in seconds.
	DefaultIntegrationTime = 0.4
	// DefaultGainSmoothingTime is the gain smoothing time in seconds.
	DefaultGainSmoothingTime = 1.0
	// DefaultMinGain and DefaultMaxGain bound the gain to about ±40 dB.
	DefaultMinGain = 0.01
	DefaultMaxGain = 100.0
	// DefaultTargetRatio requests equal loudness.
	DefaultTargetRatio = 1.0

	// Epsilon is the smoothed power at or below which a signal counts as
	// silent. While either signal is silent the target gain is unity.
	Epsilon = 1e-6
)

// ErrInvalidConfig is returned by NewMatcher for unusable configurations.
var ErrInvalidConfig = errors.New("autogain: invalid configuration")

// Config defines the configuration of a Matcher.
type Config struct {
	core.ProcessorConfig

	IntegrationTime   float64 // seconds
	GainSmoothingTime float64 // seconds
	MinGain           float64 // linear
	MaxGain           float64 // linear
	TargetRatio       float64 // initial loudness ratio
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the defaults for a 48 kHz host.
func DefaultConfig() Config {
	return Config{
		ProcessorConfig:   core.DefaultProcessorConfig(),
		IntegrationTime:   DefaultIntegrationTime,
		GainSmoothingTime: DefaultGainSmoothingTime,
		MinGain:           DefaultMinGain,
		MaxGain:           DefaultMaxGain,
		TargetRatio:       DefaultTargetRatio,
	}
}

// WithSampleRate sets the processing sample rate.
func WithSampleRate(sampleRate float64) Option {
	return func(cfg *Config) {
		cfg.SampleRate = sampleRate
	}
}

// WithBlockSize sets the expected host block size used to size scratch
// buffers.
func WithBlockSize(blockSize int) Option {
	return func(cfg *Config) {
		cfg.BlockSize = blockSize
	}
}

// WithIntegrationTime sets the time constant of the power smoothers.
func WithIntegrationTime(seconds float64) Option {
	return func(cfg *Config) {
		cfg.IntegrationTime = seconds
	}
}

// WithGainSmoothingTime sets the time constant of the gain smoother.
func WithGainSmoothingTime(seconds float64) Option {
	return func(cfg *Config) {
		cfg.GainSmoothingTime = seconds
	}
}

// WithGainRange bounds the linear gain to [minGain, maxGain].
func WithGainRange(minGain, maxGain float64) Option {
	return func(cfg *Config) {
		cfg.MinGain = minGain
		cfg.MaxGain = maxGain
	}
}

// WithTargetRatio sets the initial target loudness ratio.
func WithTargetRatio(ratio float64) Option {
	return func(cfg *Config) {
		cfg.TargetRatio = ratio
	}
}

// ApplyOptions applies zero or more options to the default config.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return cfg
}

// Validate reports the first unusable setting of cfg.
func (cfg Config) Validate() error {
	if !(cfg.SampleRate > 0) || !core.IsFinite(cfg.SampleRate) {
		return fmt.Errorf("%w: sample rate must be positive and finite: %f", ErrInvalidConfig, cfg.SampleRate)
	}

	if cfg.BlockSize <= 0 {
		return fmt.Errorf("%w: block size must be positive: %d", ErrInvalidConfig, cfg.BlockSize)
	}

	if !validCoeff(core.TimeConstantCoeff(cfg.IntegrationTime, cfg.SampleRate)) {
		return fmt.Errorf("%w: integration time out of range at %.0f Hz: %f", ErrInvalidConfig, cfg.SampleRate, cfg.IntegrationTime)
	}

	if !validCoeff(core.TimeConstantCoeff(cfg.GainSmoothingTime, cfg.SampleRate)) {
		return fmt.Errorf("%w: gain smoothing time out of range at %.0f Hz: %f", ErrInvalidConfig, cfg.SampleRate, cfg.GainSmoothingTime)
	}

	if !(cfg.MinGain > 0) || !core.IsFinite(cfg.MaxGain) || cfg.MinGain > cfg.MaxGain {
		return fmt.Errorf("%w: gain range must satisfy 0 < min <= max < inf: [%f, %f]", ErrInvalidConfig, cfg.MinGain, cfg.MaxGain)
	}

	if err := validateRatio(cfg.TargetRatio); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// validCoeff reports whether a one-pole coefficient actually smooths: 0
// would make the smoother transparent and 1 would freeze it.
func validCoeff(c float64) bool {
	return c > 0 && c < 1
}
