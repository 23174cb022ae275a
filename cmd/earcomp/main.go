// Command earcomp renders and auditions the hard-knee compressor with an
// optional loudness-matching stage, so compressed and dry material can be
// compared at equal loudness.
//
// Usage:
//
//	earcomp params
//	earcomp render [flags] in.wav out.wav
//	earcomp play [flags] in.wav
//
// Examples:
//
//	earcomp params
//	earcomp render -threshold -30 -ratio 8 drums.wav drums-comp.wav
//	earcomp render -match -offset 0.8 mix.wav mix-matched.wav
//	earcomp play -match -reset-every 5s vocal.wav
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var errUsage = errors.New("usage")

func main() {
	log := newLogger(os.Stderr)

	if err := run(os.Args[1:], os.Stdout, log); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		log.WithError(err).Error("earcomp failed")
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}

func run(args []string, stdout io.Writer, log *logrus.Logger) error {
	if len(args) == 0 {
		usage(stdout)
		return errUsage
	}

	switch args[0] {
	case "params":
		return printParams(stdout)
	case "render":
		return renderCmd(args[1:], log)
	case "play":
		return playCmd(args[1:], log)
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return nil
	default:
		usage(stdout)
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Usage:\n")
	_, _ = fmt.Fprintf(w, "  earcomp params                       print compressor parameters\n")
	_, _ = fmt.Fprintf(w, "  earcomp render [flags] in.wav out.wav compress a file\n")
	_, _ = fmt.Fprintf(w, "  earcomp play [flags] in.wav           compress and play a file\n")
	_, _ = fmt.Fprintf(w, "\nRun 'earcomp <command> -h' for command flags.\n")
}
