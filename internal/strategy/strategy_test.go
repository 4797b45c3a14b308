package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/recallbot/internal/domain"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeAssets []domain.Asset

func (f fakeAssets) NonStablecoin() []domain.Asset { return f }

func (f fakeAssets) Get(key string) (domain.Asset, bool) {
	for _, a := range f {
		if a.Key == key {
			return a, true
		}
	}
	return domain.Asset{}, false
}

// seqPrices returns the next scripted price per asset on every call; an
// exhausted or missing script means the price is absent.
type seqPrices map[string][]float64

func (s seqPrices) Price(_ context.Context, a domain.Asset) (float64, bool) {
	q := s[a.Key]
	if len(q) == 0 {
		return 0, false
	}
	s[a.Key] = q[1:]
	return q[0], true
}

func ticking() func() time.Time {
	t := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

var (
	weth = domain.Asset{Key: "WETH", Symbol: "WETH", Chain: "ethereum", Category: domain.CategoryMajor, Volatility: domain.VolatilityMedium, Enabled: true}
	pepe = domain.Asset{Key: "PEPE", Symbol: "PEPE", Chain: "ethereum", Category: domain.CategoryMeme, Volatility: domain.VolatilityVeryHigh, Enabled: true}
)

func runCycles(t *testing.T, s Strategy, n int) []domain.Signal {
	t.Helper()
	var last []domain.Signal
	for i := 0; i < n; i++ {
		sigs, err := s.GenerateSignals(context.Background())
		require.NoError(t, err)
		last = sigs
	}
	return last
}

func newMomentum(cfg Config, prices seqPrices, assets ...domain.Asset) *Momentum {
	m := NewMomentum(cfg, fakeAssets(assets), prices, testLogger())
	m.now = ticking()
	return m
}

func TestMomentum(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		asset        domain.Asset
		prices       []float64
		wantAction   domain.Action
		wantStrength float64
		wantReason   string
	}{
		{
			name:       "flat series holds",
			asset:      weth,
			prices:     []float64{100, 100},
			wantAction: domain.ActionHold,
			wantReason: "No significant momentum",
		},
		{
			name:         "rise above threshold buys at full strength",
			cfg:          Config{MomentumThresholds: map[string]float64{"default": 0.05}},
			asset:        weth,
			prices:       []float64{100, 106},
			wantAction:   domain.ActionBuy,
			wantStrength: 1.0,
			wantReason:   "Positive momentum: 6.00%",
		},
		{
			name:         "strength scales with threshold",
			cfg:          Config{MomentumThresholds: map[string]float64{"major": 0.02}},
			asset:        weth,
			prices:       []float64{100, 97.5},
			wantAction:   domain.ActionSell,
			wantStrength: 1.0,
		},
		{
			name:         "window return uses first and last sample",
			cfg:          Config{MomentumThresholds: map[string]float64{"default": 0.04}},
			asset:        weth,
			prices:       []float64{100, 98, 94},
			wantAction:   domain.ActionSell,
			wantStrength: 1.0,
		},
		{
			name:         "category threshold falls back to default then builtin",
			asset:        weth,
			prices:       []float64{200, 211},
			wantAction:   domain.ActionBuy,
			wantStrength: 1.0,
		},
		{
			name: "volatility multiplier widens threshold",
			cfg: Config{
				MomentumThresholds:    map[string]float64{"meme": 0.05},
				VolatilityMultipliers: map[string]float64{"very_high": 2.0},
			},
			asset:      pepe,
			prices:     []float64{100, 106},
			wantAction: domain.ActionHold,
		},
		{
			name:       "return exactly at threshold holds",
			cfg:        Config{MomentumThresholds: map[string]float64{"default": 0.5}},
			asset:      weth,
			prices:     []float64{100, 150},
			wantAction: domain.ActionHold,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMomentum(tt.cfg, seqPrices{tt.asset.Key: tt.prices}, tt.asset)
			sigs := runCycles(t, m, len(tt.prices))
			require.Len(t, sigs, 1)
			sig := sigs[0]
			assert.Equal(t, tt.wantAction, sig.Action)
			assert.InDelta(t, tt.wantStrength, sig.Strength, 1e-9)
			assert.Equal(t, "momentum", sig.Source)
			assert.Equal(t, tt.asset.Key, sig.Symbol)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, sig.Reason)
			}
		})
	}
}

func TestMomentumThresholdBoundary(t *testing.T) {
	cfg := Config{MomentumThresholds: map[string]float64{"default": 0.04}}

	below := runCycles(t, newMomentum(cfg, seqPrices{"WETH": {100, 103.9}}, weth), 2)
	require.Len(t, below, 1)
	assert.Equal(t, domain.ActionHold, below[0].Action)
	assert.Zero(t, below[0].Strength)

	above := runCycles(t, newMomentum(cfg, seqPrices{"WETH": {100, 104.1}}, weth), 2)
	require.Len(t, above, 1)
	assert.Equal(t, domain.ActionBuy, above[0].Action)
	assert.InDelta(t, 1.0, above[0].Strength, 1e-9, "any move past the threshold saturates")
}

func TestMomentumNeedsTwoSamples(t *testing.T) {
	m := newMomentum(Config{}, seqPrices{"WETH": {100}}, weth)
	sigs, err := m.GenerateSignals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sigs)
	assert.Equal(t, 1, m.Windows().Len("WETH"))
}

func TestMomentumSkipsAbsentPrices(t *testing.T) {
	m := newMomentum(Config{}, seqPrices{"WETH": {100, 110}}, weth, pepe)
	sigs := runCycles(t, m, 2)
	require.Len(t, sigs, 1)
	assert.Equal(t, "WETH", sigs[0].Symbol)
	assert.Equal(t, 0, m.Windows().Len("PEPE"))
}

func TestMomentumLookbackEvictsOldSamples(t *testing.T) {
	m := newMomentum(Config{MomentumLookback: 90 * time.Second}, seqPrices{"WETH": {50, 100, 100}}, weth)
	sigs := runCycles(t, m, 3)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionHold, sigs[0].Action, "the 50 sample fell out of the window")
}

func TestMomentumPositionSize(t *testing.T) {
	cfg := Config{
		PositionSizing:  map[string]float64{"default": 0.10, "meme": 0.5},
		MaxPositionSize: 0.3,
	}
	m := newMomentum(cfg, seqPrices{}, weth, pepe)

	assert.InDelta(t, 50, m.PositionSize(domain.Signal{Symbol: "WETH", Strength: 0.5}, 1000), 1e-9)
	assert.InDelta(t, 300, m.PositionSize(domain.Signal{Symbol: "PEPE", Strength: 1}, 1000), 1e-9, "capped at max position size")
	assert.InDelta(t, 100, m.PositionSize(domain.Signal{Symbol: "UNKNOWN", Strength: 1}, 1000), 1e-9)
}

func newMeanReversion(cfg Config, prices seqPrices, assets ...domain.Asset) *MeanReversion {
	mr := NewMeanReversion(cfg, fakeAssets(assets), prices, testLogger())
	mr.now = ticking()
	return mr
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestMeanReversion(t *testing.T) {
	tests := []struct {
		name         string
		prices       []float64
		wantAction   domain.Action
		wantStrength float64
		wantReason   string
	}{
		{
			name:         "spike above mean sells",
			prices:       append(repeat(100, 9), 130),
			wantAction:   domain.ActionSell,
			wantStrength: 1.0,
			wantReason:   "Price too high (Z-score: 3.00)",
		},
		{
			name:         "drop below mean buys",
			prices:       append(repeat(100, 9), 70),
			wantAction:   domain.ActionBuy,
			wantStrength: 1.0,
			wantReason:   "Price too low (Z-score: -3.00)",
		},
		{
			name:       "inside band holds",
			prices:     []float64{99, 101, 99, 101, 99, 101, 99, 101, 99, 101},
			wantAction: domain.ActionHold,
			wantReason: "Price normal (Z-score: 1.00)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := newMeanReversion(Config{}, seqPrices{"WETH": tt.prices}, weth)
			sigs := runCycles(t, mr, len(tt.prices))
			require.Len(t, sigs, 1)
			assert.Equal(t, tt.wantAction, sigs[0].Action)
			assert.InDelta(t, tt.wantStrength, sigs[0].Strength, 1e-9)
			assert.Equal(t, tt.wantReason, sigs[0].Reason)
			assert.Equal(t, "mean_reversion", sigs[0].Source)
		})
	}
}

func TestMeanReversionCategoryThreshold(t *testing.T) {
	// 9 x 100 then 130 gives z = 3.
	mr := newMeanReversion(Config{ZScoreThresholds: map[string]float64{"major": 2.5, "default": 4}}, seqPrices{"PEPE": append(repeat(100, 9), 130)}, pepe)
	sigs := runCycles(t, mr, 10)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionHold, sigs[0].Action, "3 < 4")

	mr = newMeanReversion(Config{ZScoreThresholds: map[string]float64{"meme": 2.5}}, seqPrices{"PEPE": append(repeat(100, 9), 130)}, pepe)
	sigs = runCycles(t, mr, 10)
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionSell, sigs[0].Action)
	assert.InDelta(t, 1.0, sigs[0].Strength, 1e-9)
}

func TestMeanReversionNeedsTenSamples(t *testing.T) {
	for _, cfg := range []Config{{}, {MeanReversionMinSamples: 3}} {
		mr := newMeanReversion(cfg, seqPrices{"WETH": append(repeat(100, 8), 200)}, weth)
		for i := 0; i < 9; i++ {
			sigs, err := mr.GenerateSignals(context.Background())
			require.NoError(t, err)
			assert.Empty(t, sigs, "no signal before ten samples")
		}
	}
}

func TestMeanReversionFlatWindowHasNoSignal(t *testing.T) {
	mr := newMeanReversion(Config{}, seqPrices{"WETH": repeat(100, 12)}, weth)
	sigs := runCycles(t, mr, 12)
	assert.Empty(t, sigs)

	tight := Config{ZScoreThresholds: map[string]float64{"default": 0.5}}
	mr = newMeanReversion(tight, seqPrices{"WETH": repeat(0.1, 10)}, weth)
	assert.Empty(t, runCycles(t, mr, 10), "inexact flat prices stay flat")
}

func TestMeanReversionPositionSizeIsHalf(t *testing.T) {
	cfg := Config{PositionSizing: map[string]float64{"default": 0.10}}
	mr := newMeanReversion(cfg, seqPrices{}, weth)
	mom := newMomentum(cfg, seqPrices{}, weth)
	sig := domain.Signal{Symbol: "WETH", Strength: 0.8}

	assert.InDelta(t, 40, mr.PositionSize(sig, 1000), 1e-9)
	assert.InDelta(t, mom.PositionSize(sig, 1000)/2, mr.PositionSize(sig, 1000), 1e-9)
}

func sig(symbol string, action domain.Action, strength float64) domain.Signal {
	return domain.Signal{Symbol: symbol, Action: action, Strength: strength, Source: "test", Reason: "r"}
}

func TestCombine(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("equal buy and sell is a conflict", func(t *testing.T) {
		out := Combine([]domain.Signal{sig("WETH", domain.ActionBuy, 0.3), sig("WETH", domain.ActionSell, 0.3)}, now)
		require.Len(t, out, 1)
		assert.Equal(t, domain.ActionHold, out[0].Action)
		assert.Zero(t, out[0].Strength)
		assert.Equal(t, "conflicting signals", out[0].Reason)
		assert.Equal(t, CombinedSource, out[0].Source)
	})

	t.Run("buys add up", func(t *testing.T) {
		out := Combine([]domain.Signal{sig("WETH", domain.ActionBuy, 0.5), sig("WETH", domain.ActionBuy, 0.2)}, now)
		require.Len(t, out, 1)
		assert.Equal(t, domain.ActionBuy, out[0].Action)
		assert.InDelta(t, 0.7, out[0].Strength, 1e-9)
		assert.Equal(t, now, out[0].Timestamp)
	})

	t.Run("net sell", func(t *testing.T) {
		out := Combine([]domain.Signal{sig("WETH", domain.ActionBuy, 0.2), sig("WETH", domain.ActionSell, 0.9), sig("WETH", domain.ActionHold, 0)}, now)
		require.Len(t, out, 1)
		assert.Equal(t, domain.ActionSell, out[0].Action)
		assert.InDelta(t, 0.7, out[0].Strength, 1e-9)
		assert.Equal(t, "Combined sell signals: 1 sell, 1 buy", out[0].Reason)
	})

	t.Run("net strength is not clamped", func(t *testing.T) {
		out := Combine([]domain.Signal{sig("WETH", domain.ActionBuy, 1.0), sig("WETH", domain.ActionBuy, 0.9)}, now)
		require.Len(t, out, 1)
		assert.Equal(t, domain.ActionBuy, out[0].Action)
		assert.InDelta(t, 1.9, out[0].Strength, 1e-9)
	})

	t.Run("two holds are a conflict", func(t *testing.T) {
		out := Combine([]domain.Signal{sig("WETH", domain.ActionHold, 0), sig("WETH", domain.ActionHold, 0)}, now)
		assert.Equal(t, domain.ActionHold, out[0].Action)
		assert.Equal(t, "conflicting signals", out[0].Reason)
	})

	t.Run("single signal passes through and order is first seen", func(t *testing.T) {
		in := []domain.Signal{
			sig("SOL", domain.ActionSell, 0.4),
			sig("WETH", domain.ActionBuy, 0.5),
			sig("WETH", domain.ActionBuy, 0.1),
		}
		out := Combine(in, now)
		require.Len(t, out, 2)
		assert.Equal(t, in[0], out[0])
		assert.Equal(t, "WETH", out[1].Symbol)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, Combine(nil, now))
	})
}

func TestActionable(t *testing.T) {
	in := []domain.Signal{
		sig("A", domain.ActionBuy, 0.5),
		sig("B", domain.ActionHold, 0.9),
		sig("C", domain.ActionSell, 0.1),
		sig("D", domain.ActionSell, 0.11),
	}
	out := Actionable(in, 0.1)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Symbol)
	assert.Equal(t, "D", out[1].Symbol)
}

type stubStrategy struct {
	name    string
	signals []domain.Signal
	err     error
}

func (s stubStrategy) Name() string { return s.name }

func (s stubStrategy) GenerateSignals(context.Context) ([]domain.Signal, error) {
	return s.signals, s.err
}

func (s stubStrategy) PositionSize(_ domain.Signal, capital float64) float64 { return capital }

func TestManagerSkipsFailingStrategy(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubStrategy{name: "a", signals: []domain.Signal{sig("WETH", domain.ActionBuy, 0.4)}})
	reg.Register(stubStrategy{name: "broken", err: errors.New("boom")})
	reg.Register(stubStrategy{name: "b", signals: []domain.Signal{sig("WETH", domain.ActionSell, 0.1), sig("SOL", domain.ActionSell, 0.6)}})

	m := NewManager(reg, testLogger())
	out := m.GenerateCombinedSignals(context.Background())
	require.Len(t, out, 2)
	assert.Equal(t, "WETH", out[0].Symbol)
	assert.Equal(t, domain.ActionBuy, out[0].Action)
	assert.InDelta(t, 0.3, out[0].Strength, 1e-9)
	assert.Equal(t, "SOL", out[1].Symbol)

	recent := m.RecentSignals(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "SOL", recent[0].Symbol, "newest first")
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubStrategy{name: "momentum"})
	reg.Register(stubStrategy{name: "mean_reversion"})
	reg.Register(stubStrategy{name: "momentum", err: errors.New("replaced")})

	assert.Equal(t, []string{"momentum", "mean_reversion"}, reg.List())
	s, err := reg.Get("momentum")
	require.NoError(t, err)
	_, genErr := s.GenerateSignals(context.Background())
	assert.EqualError(t, genErr, "replaced")

	_, err = reg.Get("nope")
	assert.Error(t, err)
	assert.Len(t, reg.All(), 2)
}
