package autogain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/earcomp/dsp/core"
	"github.com/cwbudde/earcomp/internal/testutil"
)

const testRate = 48000.0

func newTestMatcher(t *testing.T, opts ...Option) *Matcher {
	t.Helper()
	m, err := NewMatcher(opts...)
	require.NoError(t, err)
	return m
}

// runDC feeds blocks of constant processed and reference amplitudes.
func runDC(m *Matcher, processed, reference float64, channels, blockSize, blocks int) core.Block {
	p := testutil.BlockOf(channels, testutil.DC(processed, blockSize))
	r := testutil.BlockOf(channels, testutil.DC(reference, blockSize))
	out := core.NewBlock(channels, blockSize)
	for range blocks {
		m.Process(p, r, out)
	}
	return out
}

func TestNewMatcherValidation(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		ok   bool
	}{
		{name: "defaults", ok: true},
		{name: "44.1k", opts: []Option{WithSampleRate(44100)}, ok: true},
		{name: "zero rate", opts: []Option{WithSampleRate(0)}},
		{name: "inf rate", opts: []Option{WithSampleRate(math.Inf(1))}},
		{name: "zero block", opts: []Option{WithBlockSize(0)}},
		{name: "zero integration", opts: []Option{WithIntegrationTime(0)}},
		{name: "negative integration", opts: []Option{WithIntegrationTime(-1)}},
		{name: "nan smoothing", opts: []Option{WithGainSmoothingTime(math.NaN())}},
		{name: "frozen smoothing", opts: []Option{WithGainSmoothingTime(1e300)}},
		{name: "inverted range", opts: []Option{WithGainRange(2, 1)}},
		{name: "zero min gain", opts: []Option{WithGainRange(0, 1)}},
		{name: "infinite max gain", opts: []Option{WithGainRange(0.1, math.Inf(1))}},
		{name: "fixed gain", opts: []Option{WithGainRange(1, 1)}, ok: true},
		{name: "zero ratio", opts: []Option{WithTargetRatio(0)}},
		{name: "nan ratio", opts: []Option{WithTargetRatio(math.NaN())}},
		{name: "nil option", opts: []Option{nil}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMatcher(tt.opts...)
			if tt.ok {
				require.NoError(t, err)
				assert.NotNil(t, m)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, m)
		})
	}
}

func TestDefaults(t *testing.T) {
	m := newTestMatcher(t)

	cfg := m.Config()
	assert.Equal(t, core.DefaultSampleRate, cfg.SampleRate)
	assert.Equal(t, core.DefaultBlockSize, cfg.BlockSize)
	assert.Equal(t, DefaultIntegrationTime, cfg.IntegrationTime)
	assert.Equal(t, DefaultGainSmoothingTime, cfg.GainSmoothingTime)

	assert.Equal(t, 1.0, m.CurrentGain())
	assert.Equal(t, 1.0, m.TargetRatio())
	p, r := m.SmoothedPowers()
	assert.Zero(t, p)
	assert.Zero(t, r)

	alpha, beta := m.Coefficients()
	assert.InDelta(t, math.Exp(-1/(testRate*0.4)), alpha, 1e-15)
	assert.InDelta(t, math.Exp(-1/testRate), beta, 1e-15)
	assert.Greater(t, beta, alpha, "gain smoothing must be slower than integration")
}

func TestIdenticalSignalsConvergeToUnity(t *testing.T) {
	m := newTestMatcher(t, WithIntegrationTime(0.01), WithGainSmoothingTime(0.02))

	sig := testutil.NoiseBlock(7, 0.5, 2, 128)
	out := core.NewBlock(2, 128)
	for range 200 {
		m.Process(sig, sig, out)
	}

	assert.InDelta(t, 1.0, m.CurrentGain(), 1e-12)
	for c := range out {
		for i := range out[c] {
			assert.InDelta(t, sig[c][i], out[c][i], 1e-12)
		}
	}
}

func TestPowerRatioScenario(t *testing.T) {
	for _, ratio := range []float64{1.0, 0.8, 1.5} {
		m := newTestMatcher(t,
			WithIntegrationTime(0.01),
			WithGainSmoothingTime(0.02),
			WithTargetRatio(ratio),
		)

		// Mono: processed power 4, reference power 1.
		runDC(m, 2, 1, 1, 128, 300)

		assert.InDelta(t, 0.5*ratio, m.CurrentGain(), 1e-6, "ratio %v", ratio)
		p, r := m.SmoothedPowers()
		assert.InDelta(t, 4.0, p, 1e-9)
		assert.InDelta(t, 1.0, r, 1e-9)
	}
}

func TestPowerRatioScenarioDefaultTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("long settle")
	}

	m := newTestMatcher(t)
	// 20 s covers 50 integration and 20 smoothing time constants.
	runDC(m, 2, 1, 2, 128, int(20*testRate/128))

	assert.InDelta(t, 0.5, m.CurrentGain(), 1e-6)
}

func TestTargetClampedToRange(t *testing.T) {
	m := newTestMatcher(t,
		WithIntegrationTime(0.01),
		WithGainSmoothingTime(0.02),
		WithGainRange(0.25, 4),
	)

	// Processed 40 dB below reference wants a gain of 100.
	runDC(m, 0.01, 1, 1, 128, 300)
	assert.InDelta(t, 4.0, m.CurrentGain(), 1e-9)

	for _, g := range m.LastBlockGains() {
		assert.LessOrEqual(t, g, 4.0)
		assert.GreaterOrEqual(t, g, 0.25)
	}

	// Processed 40 dB above reference wants 0.01.
	runDC(m, 1, 0.01, 1, 128, 300)
	assert.InDelta(t, 0.25, m.CurrentGain(), 1e-9)
}

func TestGainStaysWithinBoundsOnNoise(t *testing.T) {
	m := newTestMatcher(t, WithIntegrationTime(0.005), WithGainSmoothingTime(0.01))
	cfg := m.Config()

	out := core.NewBlock(2, 128)
	for b := range 300 {
		p := testutil.NoiseBlock(int64(b), 1e-3+float64(b%7), 2, 128)
		r := testutil.NoiseBlock(int64(1000+b), float64(b%5)*0.3, 2, 128)
		if b%50 == 0 {
			m.Port().RequestReset()
		}
		m.Process(p, r, out)

		for _, g := range m.LastBlockGains() {
			require.True(t, core.IsFinite(g))
			require.GreaterOrEqual(t, g, cfg.MinGain)
			require.LessOrEqual(t, g, cfg.MaxGain)
		}
		testutil.RequireBlockFinite(t, out)
	}
}

func TestRecoversFromNonFiniteInput(t *testing.T) {
	tests := []struct {
		name      string
		processed float64
		reference float64
	}{
		{name: "overflowing power", processed: 1e200, reference: 1e200},
		{name: "overflowing reference", processed: 0.5, reference: 1e200},
		{name: "nan", processed: math.NaN(), reference: 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMatcher(t, WithIntegrationTime(0.005), WithGainSmoothingTime(0.01))
			cfg := m.Config()

			runDC(m, tt.processed, tt.reference, 2, 128, 1)
			for _, g := range m.LastBlockGains() {
				require.True(t, core.IsFinite(g))
				require.GreaterOrEqual(t, g, cfg.MinGain)
				require.LessOrEqual(t, g, cfg.MaxGain)
			}

			out := runDC(m, 0.5, 0.25, 2, 128, 300)
			p, r := m.SmoothedPowers()
			assert.True(t, core.IsFinite(p) && core.IsFinite(r))
			assert.InDelta(t, 0.5, m.CurrentGain(), 1e-6)
			testutil.RequireBlockFinite(t, out)
		})
	}
}

func TestSilenceIsSafe(t *testing.T) {
	m := newTestMatcher(t)

	out := runDC(m, 0, 0, 2, 128, 50)
	assert.Equal(t, 1.0, m.CurrentGain())
	for _, ch := range out {
		for _, v := range ch {
			assert.Zero(t, v)
		}
	}

	m.Port().RequestReset()
	runDC(m, 0, 0, 2, 128, 1)
	assert.Equal(t, 1.0, m.CurrentGain())
}

func TestSilentReferenceKeepsUnityTarget(t *testing.T) {
	m := newTestMatcher(t, WithIntegrationTime(0.01), WithGainSmoothingTime(0.02))

	runDC(m, 0.5, 1, 1, 128, 300)
	require.InDelta(t, 2.0, m.CurrentGain(), 1e-6)

	// Reference goes silent: the gain relaxes back towards unity.
	m.Process(testutil.BlockOf(1, testutil.DC(0.5, 128)), nil, core.NewBlock(1, 128))
	runDC(m, 0.5, 0, 1, 128, 300)
	assert.InDelta(t, 1.0, m.CurrentGain(), 1e-6)
}

func TestResetIsImmediate(t *testing.T) {
	m := newTestMatcher(t, WithTargetRatio(0.8))

	// Settle partially on a loud processed signal.
	runDC(m, 1, 1, 2, 128, 20)

	m.Port().RequestReset()

	p := testutil.BlockOf(2, testutil.DC(2, 128))
	r := testutil.BlockOf(2, testutil.DC(1, 128))
	out := core.NewBlock(2, 128)
	m.Process(p, r, out)

	// First sample after reset: target computed from that sample alone.
	gains := m.LastBlockGains()
	assert.InDelta(t, 0.4, gains[0], 1e-12)
	assert.InDelta(t, 0.8, out[0][0], 1e-12)
	assert.InDelta(t, 0.8, out[1][0], 1e-12)

	// The steady inputs keep it there.
	assert.InDelta(t, 0.4, gains[len(gains)-1], 1e-9)
	assert.False(t, m.Port().ResetPending())
}

func TestResetsCoalesce(t *testing.T) {
	m := newTestMatcher(t)

	for range 5 {
		m.Port().RequestReset()
	}
	require.True(t, m.Port().ResetPending())

	runDC(m, 2, 1, 1, 128, 1)
	assert.False(t, m.Port().ResetPending())
	assert.InDelta(t, 0.5, m.CurrentGain(), 1e-12)

	// Only the first sample was reset: switching the input afterwards is
	// smoothed, not jumped.
	runDC(m, 1, 1, 1, 1, 1)
	assert.InDelta(t, 0.5, m.CurrentGain(), 1e-3)
}

func TestLastRatioWins(t *testing.T) {
	m := newTestMatcher(t, WithIntegrationTime(0.01), WithGainSmoothingTime(0.02))

	port := m.Port()
	require.NoError(t, port.SetTargetRatio(0.5))
	require.NoError(t, port.SetTargetRatio(2))
	require.NoError(t, port.SetTargetRatio(0.9))
	assert.Equal(t, 0.9, m.TargetRatio())

	runDC(m, 1, 1, 1, 128, 300)
	assert.InDelta(t, 0.9, m.CurrentGain(), 1e-6)
}

func TestRatioTakesEffectNextSample(t *testing.T) {
	m := newTestMatcher(t, WithIntegrationTime(0.01), WithGainSmoothingTime(0.02))
	runDC(m, 1, 1, 1, 128, 100)

	require.NoError(t, m.Port().SetTargetRatio(2))
	m.Port().RequestReset()
	runDC(m, 1, 1, 1, 1, 1)
	assert.InDelta(t, 2.0, m.CurrentGain(), 1e-12)
}

func TestReferenceChannelHandling(t *testing.T) {
	// Stereo processed, mono reference: the missing reference channel is
	// silence, so the reference power is half that of the processed signal.
	m := newTestMatcher(t)
	m.Port().RequestReset()

	p := testutil.BlockOf(2, testutil.DC(1, 16))
	r := testutil.BlockOf(1, testutil.DC(1, 16))
	m.Process(p, r, core.NewBlock(2, 16))
	assert.InDelta(t, math.Sqrt(0.5), m.CurrentGain(), 1e-12)

	// Extra reference channels are ignored.
	m.Port().RequestReset()
	r = testutil.BlockOf(4, testutil.DC(1, 16))
	m.Process(p, r, core.NewBlock(2, 16))
	assert.InDelta(t, 1.0, m.CurrentGain(), 1e-12)

	// Short reference channels contribute silence past their end.
	m.Port().RequestReset()
	r = core.Block{{1, 1}, {1, 1}}
	m.Process(p, r, core.NewBlock(2, 16))
	gains := m.LastBlockGains()
	assert.InDelta(t, 1.0, gains[0], 1e-12)
	assert.Less(t, gains[15], 1.0)
}

func TestEmptyInputIsNoOp(t *testing.T) {
	m := newTestMatcher(t)
	out := testutil.BlockOf(1, testutil.DC(0.3, 8))

	assert.True(t, m.Process(nil, nil, out))
	assert.True(t, m.Process(core.Block{}, nil, out))
	assert.True(t, m.Process(core.Block{{}}, nil, out))
	assert.True(t, m.ProcessBlock(nil, out, nil))

	assert.Equal(t, 0.3, out[0][0])
	assert.Equal(t, 1.0, m.CurrentGain())
}

func TestOutputChannelsWithoutInputAreSilenced(t *testing.T) {
	m := newTestMatcher(t)
	out := testutil.BlockOf(3, testutil.DC(9, 8))

	in := testutil.BlockOf(2, testutil.DC(0.5, 8))
	m.Process(in, in, out)

	assert.InDelta(t, 0.5, out[1][7], 1e-12)
	for _, v := range out[2] {
		assert.Zero(t, v)
	}
}

func TestProcessBlockMatchesProcess(t *testing.T) {
	a := newTestMatcher(t, WithIntegrationTime(0.01))
	b := newTestMatcher(t, WithIntegrationTime(0.01))

	p := testutil.NoiseBlock(1, 0.8, 2, 128)
	r := testutil.NoiseBlock(9, 0.2, 2, 128)
	outA := core.NewBlock(2, 128)
	outB := core.NewBlock(2, 128)

	for range 10 {
		a.Process(p, r, outA)
		b.ProcessBlock([]core.Block{p, r}, outB, nil)
	}

	assert.Equal(t, outA, outB)
}

func TestBlockSizeIndependence(t *testing.T) {
	const total = 1024

	p := testutil.NoiseBlock(3, 0.7, 2, total)
	r := testutil.NoiseBlock(4, 0.3, 2, total)

	render := func(blockSize, resetAt int) core.Block {
		m := newTestMatcher(t, WithIntegrationTime(0.002), WithGainSmoothingTime(0.004))
		out := core.NewBlock(2, total)
		var pv, rv, ov core.Block
		for start := 0; start < total; start += blockSize {
			if start == resetAt {
				m.Port().RequestReset()
			}
			end := min(start+blockSize, total)
			pv = p.Slice(pv, start, end)
			rv = r.Slice(rv, start, end)
			ov = out.Slice(ov, start, end)
			m.Process(pv, rv, ov)
		}
		return out
	}

	assert.Equal(t, render(128, 512), render(1, 512))
	assert.Equal(t, render(128, -1), render(300, -1))
}

func TestInPlaceProcessing(t *testing.T) {
	a := newTestMatcher(t)
	b := newTestMatcher(t)

	p := testutil.NoiseBlock(5, 0.5, 2, 128)
	r := testutil.NoiseBlock(6, 0.5, 2, 128)

	want := core.NewBlock(2, 128)
	a.Process(p, r, want)

	got := testutil.CloneBlock(p)
	b.Process(got, r, got)

	assert.Equal(t, want, got)
}

func TestLargerBlockThanConfigured(t *testing.T) {
	m := newTestMatcher(t, WithBlockSize(16))
	out := runDC(m, 2, 1, 1, 512, 1)
	assert.Len(t, m.LastBlockGains(), 512)
	testutil.RequireBlockFinite(t, out)
}

func TestHostResetRestoresInitialState(t *testing.T) {
	m := newTestMatcher(t)
	runDC(m, 2, 1, 2, 128, 10)
	require.NotEqual(t, 1.0, m.CurrentGain())

	require.NoError(t, m.Port().SetTargetRatio(0.7))
	m.Reset()

	assert.Equal(t, 1.0, m.CurrentGain())
	p, r := m.SmoothedPowers()
	assert.Zero(t, p)
	assert.Zero(t, r)
	assert.Empty(t, m.LastBlockGains())
	assert.Equal(t, 0.7, m.TargetRatio(), "port settings survive a host reset")
}

func TestProcessDoesNotAllocate(t *testing.T) {
	m := newTestMatcher(t)
	p := testutil.NoiseBlock(1, 0.5, 2, 128)
	r := testutil.NoiseBlock(2, 0.5, 2, 128)
	out := core.NewBlock(2, 128)
	inputs := []core.Block{p, r}

	allocs := testing.AllocsPerRun(100, func() {
		m.Port().RequestReset()
		m.ProcessBlock(inputs, out, nil)
	})
	assert.Zero(t, allocs)
}

func BenchmarkMatcher128(b *testing.B) {
	m, _ := NewMatcher()
	p := testutil.NoiseBlock(1, 0.5, 2, 128)
	r := testutil.NoiseBlock(2, 0.5, 2, 128)
	out := core.NewBlock(2, 128)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Process(p, r, out)
	}
}
