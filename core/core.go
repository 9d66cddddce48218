package core

import (
	"context"
	"time"
)

// TradeTick is a single trade printed by the venue's public feed.
type TradeTick struct {
	Price float64
	Size  float64
	At    time.Time
}

// Fill is the result of a market order submission.
type Fill struct {
	Price float64
	Size  float64
}

type Feeder interface {
	Candles(ctx context.Context, instrument string, timeframe Timeframe, limit int) ([]Candle, error)
	// SubscribeTrades opens a single subscription to the venue trade feed.
	// Reconnection is the caller's responsibility: when the error channel
	// yields, both channels are dead and a new subscription must be opened.
	SubscribeTrades(ctx context.Context, instrument string) (chan TradeTick, chan error)
}

type Broker interface {
	Account(ctx context.Context) (AccountSnapshot, error)
	// PlaceMarketOrder blocks until the order is filled or ctx expires.
	// clientID is the idempotency key: retries must reuse the same id.
	PlaceMarketOrder(ctx context.Context, instrument string, side SideType, sizeBase float64, clientID string) (Fill, error)
	// CancelOrder is best-effort.
	CancelOrder(ctx context.Context, clientID string) error
}

// VenueClient is the full capability consumed by the trading core.
type VenueClient interface {
	Feeder
	Broker
}

// Clock is injected everywhere a timestamp or day boundary is taken,
// so that strategy, risk and order flows are deterministic under test.
type Clock interface {
	Now() time.Time
	// TodayUTC returns midnight UTC of the current day.
	TodayUTC() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) TodayUTC() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}

// NewClock returns the wall clock.
func NewClock() Clock { return realClock{} }

// Strategy evaluates a market view and proposes an entry, or nil.
type Strategy interface {
	Evaluate(view MarketView) *EnterLong
}

type Notifier interface {
	Notify(message string)
	OnTrade(trade Trade)
	OnError(err error)
}
