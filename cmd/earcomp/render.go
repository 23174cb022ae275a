package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/earcomp/dsp/core"
	"github.com/cwbudde/earcomp/internal/host"
	"github.com/cwbudde/earcomp/internal/wavio"
	"github.com/cwbudde/earcomp/measure/gaintrace"
	"github.com/cwbudde/earcomp/measure/loudness"
)

func renderCmd(args []string, log *logrus.Logger) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	var cf chainFlags
	cf.register(fs)
	bits := fs.Int("bits", 0, "output bit depth: 16, 24 or 32 (default: same as input)")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), "Usage: earcomp render [flags] in.wav out.wav\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return fmt.Errorf("%w: render needs an input and an output file", errUsage)
	}
	cf.configureLogger(log)

	in, err := wavio.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"file":     fs.Arg(0),
		"rate":     in.SampleRate,
		"channels": in.Data.Channels(),
		"bits":     in.BitDepth,
		"seconds":  in.Duration(),
	}).Info("input")

	out, rep, err := render(in, &cf, log)
	if err != nil {
		return err
	}

	if *bits != 0 {
		out.BitDepth = *bits
	}
	if err := wavio.WriteFile(fs.Arg(1), out); err != nil {
		return err
	}

	log.WithFields(reportFields(rep)).Info("gain")
	log.WithFields(loudnessFields(in, out)).Info("loudness")
	log.WithField("file", fs.Arg(1)).Info("written")

	return nil
}

// render runs the whole input through the chain and analyses the total
// gain applied to it.
func render(in wavio.Audio, cf *chainFlags, log logrus.FieldLogger) (wavio.Audio, gaintrace.Report, error) {
	chain, err := cf.newChain(in.SampleRate, cf.blockSize)
	if err != nil {
		return wavio.Audio{}, gaintrace.Report{}, err
	}

	runner, err := host.NewRunner(cf.blockSize)
	if err != nil {
		return wavio.Audio{}, gaintrace.Report{}, err
	}
	runner.Params = cf.params(log)
	runner.CollectGains = true

	if every := resetInterval(cf.resetEvery, in.SampleRate, cf.blockSize); every > 0 && chain.Port() != nil {
		port := chain.Port()
		runner.OnBlock = func(index, _ int) {
			if index > 0 && index%every == 0 {
				port.RequestReset()
			}
		}
	}

	out := core.NewBlock(in.Data.Channels(), in.Data.Frames())

	start := time.Now()
	res, err := runner.Run(chain, []core.Block{in.Data}, out)
	if err != nil {
		return wavio.Audio{}, gaintrace.Report{}, err
	}

	log.WithFields(logrus.Fields{
		"blocks":  res.Blocks,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Debug("rendered")

	var rep gaintrace.Report
	if len(res.Gains) > 0 {
		rep, err = gaintrace.Analyze(res.Gains, in.SampleRate)
		if err != nil {
			return wavio.Audio{}, gaintrace.Report{}, err
		}
	}

	return wavio.Audio{Data: out, SampleRate: in.SampleRate, BitDepth: in.BitDepth}, rep, nil
}

func reportFields(rep gaintrace.Report) logrus.Fields {
	return logrus.Fields{
		"final_db":      round2(rep.FinalDB()),
		"range_db":      round2(rep.RangeDB),
		"settle_s":      round2(rep.SettleTime),
		"pumping_db":    round2(rep.PumpingDB),
		"modulation_db": round2(rep.ModulationDB),
	}
}

// loudnessFields compares the integrated loudness of the dry input and the
// rendered output.
func loudnessFields(dry, wet wavio.Audio) logrus.Fields {
	d := loudness.Measure(dry.Data, dry.SampleRate)
	w := loudness.Measure(wet.Data, wet.SampleRate)

	return logrus.Fields{
		"dry_lufs": round2(d.Integrated),
		"out_lufs": round2(w.Integrated),
		"delta_db": round2(w.Integrated - d.Integrated),
		"out_peak": round2(core.LinearToDB(w.Peak)),
	}
}

func round2(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
