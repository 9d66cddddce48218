package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/volbreak/volbreak/core"
	zlog "github.com/volbreak/volbreak/logger/zerolog"
)

func testLogger(t *testing.T) core.Logger {
	t.Helper()
	log, err := zlog.New(zlog.Config{Level: "disabled"})
	require.NoError(t, err)
	return log
}

func testConfig() BreakoutConfig {
	return BreakoutConfig{
		VolumeFactor:      2.5,
		ResistancePeriods: 24,
		VolumeLookback:    24,
		RiskReward:        3.0,
		StopOffsetPct:     1.0,
		PositionSizeUSD:   100,
	}
}

func view(price, resistance, avgVolume, currentVolume float64) core.MarketView {
	return core.MarketView{
		Instrument:      "ETH-USD",
		LatestPrice:     price,
		ResistanceLevel: resistance,
		AverageVolume:   avgVolume,
		CurrentVolume:   currentVolume,
		At:              time.Now(),
	}
}

func TestBreakout_Evaluate_HappyPath(t *testing.T) {
	breakout := NewBreakout(testConfig(), testLogger(t))

	entry := breakout.Evaluate(view(101, 100, 1000, 2600))
	require.NotNil(t, entry)
	require.InDelta(t, 101, entry.EntryPrice, 1e-9)
	require.InDelta(t, 99, entry.StopLoss, 1e-9)
	require.InDelta(t, 107, entry.TakeProfit, 1e-9)
	require.InDelta(t, 100, entry.SizeUSD, 1e-9)
	require.NotEmpty(t, entry.Reasoning)
}

func TestBreakout_Evaluate_NoVolumeConfirmation(t *testing.T) {
	breakout := NewBreakout(testConfig(), testLogger(t))
	require.Nil(t, breakout.Evaluate(view(101, 100, 1000, 1500)))
}

func TestBreakout_Evaluate_ExactlyAtResistance(t *testing.T) {
	breakout := NewBreakout(testConfig(), testLogger(t))
	require.Nil(t, breakout.Evaluate(view(100, 100, 1000, 2600)))
}

func TestBreakout_Evaluate_ZeroAverageVolume(t *testing.T) {
	breakout := NewBreakout(testConfig(), testLogger(t))
	require.Nil(t, breakout.Evaluate(view(101, 100, 0, 2600)))
}

func TestBreakout_Evaluate_NotReady(t *testing.T) {
	breakout := NewBreakout(testConfig(), testLogger(t))
	require.Nil(t, breakout.Evaluate(view(101, math.Inf(1), 0, 2600)))
}

func TestBreakout_Evaluate_VolumeAtExactFactor(t *testing.T) {
	// volume == factor * average counts as confirmed
	breakout := NewBreakout(testConfig(), testLogger(t))
	require.NotNil(t, breakout.Evaluate(view(101, 100, 1000, 2500)))
}

func TestBreakout_Evaluate_RiskRewardInvariant(t *testing.T) {
	cfg := testConfig()
	breakout := NewBreakout(cfg, testLogger(t))

	for _, price := range []float64{100.5, 101, 105, 250, 3999.9} {
		entry := breakout.Evaluate(view(price, 100, 1000, 5000))
		if entry == nil {
			continue
		}
		require.Less(t, entry.StopLoss, entry.EntryPrice)
		require.Greater(t, entry.TakeProfit, entry.EntryPrice)
		require.InDelta(t,
			cfg.RiskReward*(entry.EntryPrice-entry.StopLoss),
			entry.TakeProfit-entry.EntryPrice,
			1e-9)
	}
}

func TestBreakout_Evaluate_PriceBelowStopSuppressed(t *testing.T) {
	// A thin break over a resistance far above the price band would put
	// the stop above the entry; such entries are suppressed.
	cfg := testConfig()
	cfg.StopOffsetPct = 0.0001
	breakout := NewBreakout(cfg, testLogger(t))

	entry := breakout.Evaluate(view(100.00001, 100, 1000, 5000))
	if entry != nil {
		require.Less(t, entry.StopLoss, entry.EntryPrice)
	}
}
