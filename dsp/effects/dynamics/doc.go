// Package dynamics provides the hard-knee compressor used in the listening
// exercises.
//
// HardKneeCompressor detects the channel-linked peak level per sample, maps
// it through a hard-knee static curve and smooths the resulting gain with a
// one-pole attack/release follower. Threshold, ratio, attack and release are
// automatable per sample through core.ParamArrays.
//
// Build with -tags fastmath to evaluate the dB conversions with the
// approximations from algo-approx.
package dynamics
