// Package market assembles the candle history and live price view that
// the strategy consumes.
package market

import (
	"fmt"
	"sync"
	"time"

	"github.com/volbreak/volbreak/core"
)

const defaultMaxCandles = 500

// CandleStore is a bounded, time-ordered buffer of candles for one
// (instrument, timeframe). All closed candles are immutable; the open
// candle mutates until its timeframe boundary passes.
type CandleStore struct {
	mu          sync.Mutex
	instrument  string
	timeframe   core.Timeframe
	max         int
	closed      []core.Candle
	open        *core.Candle
	latestPrice float64
}

func NewCandleStore(instrument string, timeframe core.Timeframe, max int) *CandleStore {
	if max <= 0 {
		max = defaultMaxCandles
	}
	return &CandleStore{
		instrument: instrument,
		timeframe:  timeframe,
		max:        max,
	}
}

// LoadSnapshot atomically replaces the buffer contents. The snapshot is
// rejected when timeframes differ or timestamps are not strictly
// increasing. A trailing incomplete candle becomes the open candle.
func (s *CandleStore) LoadSnapshot(candles []core.Candle) error {
	for i, c := range candles {
		if c.Timeframe != s.timeframe {
			return fmt.Errorf("%w: candle %d has timeframe %s, want %s",
				core.ErrInvalidSnapshot, i, c.Timeframe, s.timeframe)
		}
		if i > 0 && !candles[i-1].Time.Before(c.Time) {
			return fmt.Errorf("%w: timestamps not strictly increasing at index %d",
				core.ErrInvalidSnapshot, i)
		}
	}

	closed := make([]core.Candle, 0, len(candles))
	var open *core.Candle
	for i, c := range candles {
		c.Complete = c.Complete || i < len(candles)-1
		if c.Complete {
			closed = append(closed, c)
			continue
		}
		cc := c
		open = &cc
	}
	if len(closed) > s.max {
		closed = closed[len(closed)-s.max:]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = closed
	s.open = open
	if len(candles) > 0 {
		s.latestPrice = candles[len(candles)-1].Close
	}
	return nil
}

// ApplyTrade folds a single trade into the open candle, sealing it and
// starting a new bar when the trade falls past the boundary. Trades
// older than the open candle are rejected.
func (s *CandleStore) ApplyTrade(price, size float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open == nil {
		s.open = s.newOpenCandle(price, size, at)
		s.latestPrice = price
		return nil
	}

	if at.Before(s.open.Time) {
		return fmt.Errorf("%w: trade at %s before open candle at %s",
			core.ErrOutOfOrderTrade, at.Format(time.RFC3339), s.open.Time.Format(time.RFC3339))
	}
	s.latestPrice = price

	if !at.Before(s.open.End()) {
		s.sealOpenLocked()
		s.open = s.newOpenCandle(price, size, at)
		return nil
	}

	s.open.Close = price
	if price > s.open.High {
		s.open.High = price
	}
	if price < s.open.Low {
		s.open.Low = price
	}
	s.open.Volume += size
	return nil
}

// Tail returns copies of the last k closed candles, oldest first. The
// open candle is never included.
func (s *CandleStore) Tail(k int) []core.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k > len(s.closed) {
		k = len(s.closed)
	}
	out := make([]core.Candle, k)
	copy(out, s.closed[len(s.closed)-k:])
	return out
}

// snapshotView returns the latest traded price, the forming candle's
// volume and copies of the last k closed candles in one lock
// acquisition, so a concurrent seal cannot split the read.
func (s *CandleStore) snapshotView(k int) (latestPrice, openVolume float64, closed []core.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open != nil {
		openVolume = s.open.Volume
	}
	if k > len(s.closed) {
		k = len(s.closed)
	}
	closed = make([]core.Candle, k)
	copy(closed, s.closed[len(s.closed)-k:])
	return s.latestPrice, openVolume, closed
}

// ClosedCount returns the number of closed candles currently held.
func (s *CandleStore) ClosedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.closed)
}

// Open returns a copy of the currently forming candle, if any.
func (s *CandleStore) Open() (core.Candle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return core.Candle{}, false
	}
	return *s.open, true
}

func (s *CandleStore) newOpenCandle(price, size float64, at time.Time) *core.Candle {
	return &core.Candle{
		Instrument: s.instrument,
		Timeframe:  s.timeframe,
		Time:       s.timeframe.Truncate(at),
		Open:       price,
		High:       price,
		Low:        price,
		Close:      price,
		Volume:     size,
	}
}

func (s *CandleStore) sealOpenLocked() {
	s.open.Complete = true
	s.closed = append(s.closed, *s.open)
	if len(s.closed) > s.max {
		s.closed = s.closed[len(s.closed)-s.max:]
	}
	s.open = nil
}
