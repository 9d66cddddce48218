// Package strategy implements the entry signal logic.
package strategy

import (
	"fmt"
	"math"

	"github.com/volbreak/volbreak/core"
)

// BreakoutConfig parameterizes the resistance breakout rule.
type BreakoutConfig struct {
	VolumeFactor      float64
	ResistancePeriods int
	VolumeLookback    int
	RiskReward        float64
	StopOffsetPct     float64
	PositionSizeUSD   float64
}

// Breakout emits a long entry when price crosses above the resistance
// of the last closed candles and the forming candle carries abnormal
// volume. Resistance is computed over closed candles only, so the
// breakout is a distinct crossing event rather than self-referential;
// volume uses the forming candle because that is the earliest moment
// the confirmation is knowable.
type Breakout struct {
	cfg BreakoutConfig
	log core.Logger
}

func NewBreakout(cfg BreakoutConfig, log core.Logger) *Breakout {
	return &Breakout{cfg: cfg, log: log.WithField("strategy", "breakout")}
}

// Evaluate implements core.Strategy. Returns nil when no entry fires.
func (b *Breakout) Evaluate(view core.MarketView) *core.EnterLong {
	price := view.LatestPrice
	resistance := view.ResistanceLevel
	avgVolume := view.AverageVolume

	// +Inf resistance or zero average volume means "not ready".
	if math.IsInf(resistance, 1) || avgVolume <= 0 || price <= 0 {
		return nil
	}

	// A tie with resistance does not trigger.
	if price <= resistance {
		return nil
	}
	if view.CurrentVolume < b.cfg.VolumeFactor*avgVolume {
		b.log.Debugf("breakout without volume confirmation: vol %.2f < %.2f×%.2f",
			view.CurrentVolume, b.cfg.VolumeFactor, avgVolume)
		return nil
	}

	stopLoss := resistance * (1 - b.cfg.StopOffsetPct/100)
	if price <= stopLoss {
		// Extreme stop offsets can invert the bracket; suppress.
		return nil
	}
	takeProfit := price + b.cfg.RiskReward*(price-stopLoss)

	return &core.EnterLong{
		EntryPrice: price,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		SizeUSD:    b.cfg.PositionSizeUSD,
		Reasoning: fmt.Sprintf("price %.4f broke resistance %.4f with volume %.2f (%.2fx avg %.2f)",
			price, resistance, view.CurrentVolume, view.CurrentVolume/avgVolume, avgVolume),
	}
}
