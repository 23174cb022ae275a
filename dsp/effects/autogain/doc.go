// Package autogain implements a loudness-matching auto-gain stage.
//
// A Matcher scales a processed signal so that its smoothed power follows the
// smoothed power of a reference signal, times a target loudness ratio. It is
// meant to sit after a dynamics processor with the dry signal as reference,
// so level changes introduced by the processor do not bias a listening
// comparison.
//
// Power is integrated per sample with a one-pole smoother (integration time,
// default 400 ms) and the resulting gain is smoothed again (gain smoothing
// time, default 1 s) to avoid audible pumping. The gain is always kept within
// the configured range.
//
// The ratio and the reset command are controlled through a ControlPort that
// may be written from any single goroutine while the audio thread is
// processing. Commands take effect on the next processed sample.
package autogain
