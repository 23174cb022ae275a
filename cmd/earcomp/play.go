package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/earcomp/dsp/core"
	"github.com/cwbudde/earcomp/internal/host"
	"github.com/cwbudde/earcomp/internal/wavio"
)

const (
	// maxCallbackFrames bounds one processing pass inside the device
	// callback; longer callbacks are processed in several passes.
	maxCallbackFrames = 4096

	statusInterval = time.Second
)

// player is the real-time side of play: it pulls frames from the source,
// runs the chain and interleaves into the device buffer. fill never
// allocates or logs.
type player struct {
	chain  *host.Chain
	params core.ParamArrays
	src    core.Block

	pos  atomic.Int64
	done atomic.Bool

	inputs  [1]core.Block
	srcView core.Block
	out     core.Block
	outView core.Block
}

func newPlayer(chain *host.Chain, src core.Block, params core.ParamArrays, maxFrames int) *player {
	return &player{
		chain:   chain,
		params:  params,
		src:     src,
		srcView: make(core.Block, 0, src.Channels()),
		out:     core.NewBlock(src.Channels(), maxFrames),
		outView: make(core.Block, 0, src.Channels()),
	}
}

// fill writes frames interleaved frames to dst. Past the end of the source
// it writes silence and marks the player done.
func (p *player) fill(dst []float32, frames int) {
	channels := p.src.Channels()
	maxFrames := p.out.Frames()
	total := p.src.Frames()
	pos := int(p.pos.Load())

	written := 0
	for written < frames {
		n := min(frames-written, maxFrames, total-pos)
		if n <= 0 {
			break
		}

		p.srcView = p.src.Slice(p.srcView, pos, pos+n)
		p.outView = p.out.Slice(p.outView, 0, n)
		p.inputs[0] = p.srcView
		p.chain.ProcessBlock(p.inputs[:], p.outView, p.params)

		core.InterleaveFloat32(dst[written*channels:], p.outView)
		written += n
		pos += n
	}

	clear(dst[written*channels : frames*channels])
	p.pos.Store(int64(pos))

	if pos >= total {
		p.done.Store(true)
	}
}

func playCmd(args []string, log *logrus.Logger) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	var cf chainFlags
	cf.register(fs)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), "Usage: earcomp play [flags] in.wav\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("%w: play needs an input file", errUsage)
	}
	cf.configureLogger(log)

	in, err := wavio.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	chain, err := cf.newChain(in.SampleRate, maxCallbackFrames)
	if err != nil {
		return err
	}
	chain.Reserve(in.Data.Channels(), maxCallbackFrames)

	p := newPlayer(chain, in.Data, cf.params(log), maxCallbackFrames)

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		log.WithField("backend", "malgo").Debug(msg)
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	channels := in.Data.Channels()
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(in.SampleRate)
	cfg.PeriodSizeInFrames = uint32(cf.blockSize)
	cfg.Alsa.NoMMap = 1

	onSamples := func(pOutput, _ []byte, frameCount uint32) {
		if len(pOutput) == 0 {
			return
		}
		n := int(frameCount)
		out := unsafe.Slice((*float32)(unsafe.Pointer(&pOutput[0])), n*channels)
		p.fill(out, n)
	}

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		return fmt.Errorf("init playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}

	log.WithFields(logrus.Fields{
		"file":     fs.Arg(0),
		"rate":     device.SampleRate(),
		"channels": channels,
		"match":    cf.match,
	}).Info("playing")

	return p.control(chain, &cf, in.SampleRate, log)
}

// control runs on the main goroutine while the device plays: it posts
// periodic resets, logs status and waits for the end or an interrupt.
func (p *player) control(chain *host.Chain, cf *chainFlags, sampleRate float64, log logrus.FieldLogger) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	status := time.NewTicker(statusInterval)
	defer status.Stop()

	var resets <-chan time.Time
	if cf.resetEvery > 0 && chain.Port() != nil {
		t := time.NewTicker(cf.resetEvery)
		defer t.Stop()
		resets = t.C
	}

	for {
		select {
		case <-interrupt:
			log.Info("interrupted")
			return nil
		case <-resets:
			chain.Port().RequestReset()
			log.Debug("gain reset requested")
		case <-status.C:
			m := chain.Compressor.Metrics()
			log.WithFields(logrus.Fields{
				"position_s":   round2(float64(p.pos.Load()) / sampleRate),
				"reduction_db": round2(m.GainReductionDB),
				"in_peak":      round2(m.InputPeak),
				"out_peak":     round2(m.OutputPeak),
			}).Info("status")
			if p.done.Load() {
				log.Info("finished")
				return nil
			}
		}
	}
}
