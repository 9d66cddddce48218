package core

import (
	"fmt"
	"time"
)

// Timeframe is a discrete candle granularity.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// ParseTimeframe validates a timeframe string against the supported set.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
	}
	return tf, nil
}

// Duration returns the bar length. Unknown timeframes return zero.
func (t Timeframe) Duration() time.Duration { return timeframeDurations[t] }

// Truncate aligns ts down to the timeframe grid.
func (t Timeframe) Truncate(ts time.Time) time.Time {
	return ts.UTC().Truncate(t.Duration())
}

// Candle is one OHLCV bar for a single instrument and timeframe.
// While Complete is false the bar is still forming and High, Low, Close
// and Volume remain mutable.
type Candle struct {
	Instrument string    `json:"instrument"`
	Timeframe  Timeframe `json:"timeframe"`
	Time       time.Time `json:"time"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	Complete   bool      `json:"complete"`
}

// End returns the first instant past the bar.
func (c Candle) End() time.Time { return c.Time.Add(c.Timeframe.Duration()) }

// Contains reports whether ts falls inside the bar interval.
func (c Candle) Contains(ts time.Time) bool {
	return !ts.Before(c.Time) && ts.Before(c.End())
}

func (c Candle) String() string {
	return fmt.Sprintf("%s %s O:%.4f H:%.4f L:%.4f C:%.4f V:%.2f",
		c.Instrument, c.Time.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume)
}

// MarketView is an immutable snapshot of price and derived statistics.
// ResistanceLevel is +Inf and AverageVolume is 0 until enough closed
// candles exist; the strategy treats that as "not ready".
type MarketView struct {
	Instrument      string
	LatestPrice     float64
	ResistanceLevel float64
	AverageVolume   float64
	CurrentVolume   float64
	At              time.Time
}
