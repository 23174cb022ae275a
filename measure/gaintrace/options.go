package gaintrace

import (
	"errors"
	"fmt"
)

const (
	defaultSettleTolerance = 0.01
	defaultBandLowHz       = 0.5
	defaultBandHighHz      = 20.0
	defaultAnalysisRate    = 1000.0
)

// ErrInvalidOption is returned for analysis options outside their domain.
var ErrInvalidOption = errors.New("gaintrace: invalid option")

// Config holds gain-trace analysis parameters.
type Config struct {
	// SettleTolerance is the relative deviation from the final gain that
	// still counts as settled.
	SettleTolerance float64
	// BandLowHz and BandHighHz delimit the modulation band used for the
	// pumping index.
	BandLowHz  float64
	BandHighHz float64
	// AnalysisRate is the rate the trace is decimated to before the
	// modulation spectrum is taken.
	AnalysisRate float64
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns a 1% settle tolerance and a 0.5-20 Hz pumping band.
func DefaultConfig() Config {
	return Config{
		SettleTolerance: defaultSettleTolerance,
		BandLowHz:       defaultBandLowHz,
		BandHighHz:      defaultBandHighHz,
		AnalysisRate:    defaultAnalysisRate,
	}
}

// WithSettleTolerance sets the relative settle tolerance.
func WithSettleTolerance(tol float64) Option {
	return func(cfg *Config) {
		cfg.SettleTolerance = tol
	}
}

// WithModulationBand sets the band in which gain modulation counts as
// pumping.
func WithModulationBand(lowHz, highHz float64) Option {
	return func(cfg *Config) {
		cfg.BandLowHz = lowHz
		cfg.BandHighHz = highHz
	}
}

// WithAnalysisRate sets the decimated rate of the modulation analysis.
func WithAnalysisRate(hz float64) Option {
	return func(cfg *Config) {
		cfg.AnalysisRate = hz
	}
}

func applyOptions(opts []Option) (Config, error) {
	cfg := DefaultConfig()

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if !(cfg.SettleTolerance > 0) || cfg.SettleTolerance >= 1 {
		return cfg, fmt.Errorf("%w: settle tolerance must be in (0, 1): %f", ErrInvalidOption, cfg.SettleTolerance)
	}

	if !(cfg.BandLowHz >= 0) || !(cfg.BandHighHz > cfg.BandLowHz) || !finite(cfg.BandHighHz) {
		return cfg, fmt.Errorf("%w: modulation band must satisfy 0 <= low < high: [%f, %f]",
			ErrInvalidOption, cfg.BandLowHz, cfg.BandHighHz)
	}

	if !(cfg.AnalysisRate > 2*cfg.BandHighHz) || !finite(cfg.AnalysisRate) {
		return cfg, fmt.Errorf("%w: analysis rate must exceed twice the band edge: %f", ErrInvalidOption, cfg.AnalysisRate)
	}

	return cfg, nil
}
