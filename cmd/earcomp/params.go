package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cwbudde/earcomp/dsp/effects/autogain"
	"github.com/cwbudde/earcomp/internal/worklet"
)

func printParams(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for _, info := range worklet.Descriptors() {
		if len(info.Params) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(tw, "%s\nName\tUnit\tDefault\tMin\tMax\n----\t----\t-------\t---\t---\n", info.Kind); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for _, d := range info.Params {
			if _, err := fmt.Fprintf(tw, "%s\t%s\t%g\t%g\t%g\n", d.Name, d.Unit, d.Default, d.Min, d.Max); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
	}

	cfg := autogain.DefaultConfig()
	if _, err := fmt.Fprintf(tw, "\n%s\nSetting\tValue\n-------\t-----\n", worklet.KindAutoGain); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rows := []struct {
		name  string
		value string
	}{
		{"integration time", fmt.Sprintf("%g s", cfg.IntegrationTime)},
		{"gain smoothing", fmt.Sprintf("%g s", cfg.GainSmoothingTime)},
		{"gain range", fmt.Sprintf("%g..%g", cfg.MinGain, cfg.MaxGain)},
		{"target ratio", fmt.Sprintf("%g", cfg.TargetRatio)},
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", r.name, r.value); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	return tw.Flush()
}
