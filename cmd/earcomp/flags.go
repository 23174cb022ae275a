package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/earcomp/dsp/core"
	"github.com/cwbudde/earcomp/dsp/effects/autogain"
	"github.com/cwbudde/earcomp/dsp/effects/dynamics"
	"github.com/cwbudde/earcomp/internal/host"
)

// chainFlags are the processing flags shared by render and play.
type chainFlags struct {
	threshold float64
	ratio     float64
	attack    float64
	release   float64

	match      bool
	offset     float64
	resetEvery time.Duration

	blockSize int
	verbose   bool
}

func (c *chainFlags) register(fs *flag.FlagSet) {
	d := dynamics.DefaultParams()
	fs.Float64Var(&c.threshold, "threshold", d.Threshold.At(0), "compressor threshold in dB")
	fs.Float64Var(&c.ratio, "ratio", d.Ratio.At(0), "compression ratio")
	fs.Float64Var(&c.attack, "attack", d.Attack.At(0), "attack time in seconds")
	fs.Float64Var(&c.release, "release", d.Release.At(0), "release time in seconds")
	fs.BoolVar(&c.match, "match", false, "loudness-match the compressed signal to the dry input")
	fs.Float64Var(&c.offset, "offset", autogain.DefaultTargetRatio, "target loudness ratio for -match")
	fs.DurationVar(&c.resetEvery, "reset-every", 0, "request a matcher gain reset at this interval (0 disables)")
	fs.IntVar(&c.blockSize, "block", core.DefaultBlockSize, "host block size in frames")
	fs.BoolVar(&c.verbose, "v", false, "verbose logging")
}

// params returns block-constant compressor parameters clamped to their
// declared ranges.
func (c *chainFlags) params(log logrus.FieldLogger) core.ParamArrays {
	p := core.ParamArrays{
		dynamics.ParamThreshold: {c.threshold},
		dynamics.ParamRatio:     {c.ratio},
		dynamics.ParamAttack:    {c.attack},
		dynamics.ParamRelease:   {c.release},
	}

	for _, d := range dynamics.Descriptors {
		v := p[d.Name][0]
		if err := d.Validate(v); err != nil {
			log.WithError(err).WithField("param", d.Name).Warn("parameter clamped")
		}
		dynamics.Descriptors.ClampArray(d.Name, p[d.Name])
	}

	return p
}

// newChain builds the chain sized for passes of up to maxFrames frames; the
// -block size is the lower bound.
func (c *chainFlags) newChain(sampleRate float64, maxFrames int) (*host.Chain, error) {
	if c.blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive: %d", c.blockSize)
	}

	return host.NewChain(sampleRate, c.match,
		autogain.WithBlockSize(max(c.blockSize, maxFrames)),
		autogain.WithTargetRatio(c.offset),
	)
}

func (c *chainFlags) configureLogger(log *logrus.Logger) {
	if !c.verbose {
		return
	}

	log.SetLevel(logrus.DebugLevel)
	log.WithFields(logrus.Fields{
		"cpu":      cpuid.CPU.BrandName,
		"cores":    cpuid.CPU.PhysicalCores,
		"threads":  cpuid.CPU.LogicalCores,
		"avx2":     cpuid.CPU.AVX2(),
		"fma3":     cpuid.CPU.FMA3(),
		"fastmath": fastMath,
	}).Debug("host")
}

// resetInterval converts -reset-every to whole blocks at sampleRate; 0
// disables periodic resets.
func resetInterval(every time.Duration, sampleRate float64, blockSize int) int {
	if every <= 0 || blockSize <= 0 {
		return 0
	}
	blocks := int(every.Seconds() * sampleRate / float64(blockSize))
	return max(blocks, 1)
}
