// Package position owns the single open position and its exit rules.
package position

import (
	"sync"
	"time"

	"github.com/volbreak/volbreak/core"
)

// Manager holds at most one open position per bot instance. The held
// position is never mutated between Open and Close.
type Manager struct {
	mu  sync.Mutex
	pos *core.Position
	log core.Logger
}

func NewManager(log core.Logger) *Manager {
	return &Manager{log: log.WithField("component", "position")}
}

// Open installs a new position. Fails if one is already open.
func (m *Manager) Open(pos core.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pos != nil {
		return core.ErrPositionExists
	}
	p := pos
	m.pos = &p
	m.log.Infof("position opened: %s", p)
	return nil
}

// Current returns a copy of the open position, if any.
func (m *Manager) Current() (core.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pos == nil {
		return core.Position{}, false
	}
	return *m.pos, true
}

// CheckExit returns the exit reason reached at the given price, if any.
// Touching the stop exactly counts as a stop-loss exit.
func (m *Manager) CheckExit(price float64) (core.ExitReason, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pos == nil {
		return "", false
	}
	if price <= m.pos.StopLoss {
		return core.ExitReasonStopLoss, true
	}
	if price >= m.pos.TakeProfit {
		return core.ExitReasonTakeProfit, true
	}
	return "", false
}

// Close converts the open position into a Trade at the given fill price
// and clears it.
func (m *Manager) Close(price float64, reason core.ExitReason, at time.Time) (core.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pos == nil {
		return core.Trade{}, core.ErrNoPosition
	}

	p := *m.pos
	trade := core.Trade{
		Instrument: p.Instrument,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		ExitPrice:  price,
		SizeBase:   p.SizeBase,
		SizeUSD:    p.SizeUSD,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   at,
		ExitReason: reason,
		PnLUSD:     (price - p.EntryPrice) * p.SizeBase,
	}
	m.pos = nil
	m.log.Infof("position closed: %s", trade)
	return trade, nil
}
