// Package risk implements the pre-trade gate and the daily circuit
// breaker.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/volbreak/volbreak/core"
)

// RejectionCode identifies why the gate refused an entry.
type RejectionCode string

const (
	RejectPositionTooLarge       RejectionCode = "POSITION_TOO_LARGE"
	RejectInsufficientCollateral RejectionCode = "INSUFFICIENT_COLLATERAL"
	RejectCircuitBroken          RejectionCode = "CIRCUIT_BROKEN"
)

// Rejection is the typed result of a denied entry. The gate is
// all-or-nothing: the first failed check wins.
type Rejection struct {
	Code   RejectionCode
	Reason string
}

func (r Rejection) Error() string { return r.Reason }

// Config holds the risk limits.
type Config struct {
	MaxPositionSizeUSD float64
	MaxDailyLossUSD    float64
	MaxDrawdownPct     float64
	MaxLeverage        float64
}

// Manager tracks daily PnL and drawdown against the configured limits.
// State is process-scoped; same-day trades can be replayed into it on
// start-up. Days roll at UTC midnight.
type Manager struct {
	mu             sync.Mutex
	cfg            Config
	clock          core.Clock
	log            core.Logger
	initialEquity  float64
	equityCaptured bool
	dailyPnL       float64
	lastResetDay   time.Time
	tripped        bool
}

func NewManager(cfg Config, clock core.Clock, log core.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		clock:        clock,
		log:          log.WithField("component", "risk"),
		lastResetDay: clock.TodayUTC(),
	}
}

// AllowEntry runs the pre-trade gate against a proposed entry and the
// latest account snapshot. A nil return means the entry may proceed.
func (m *Manager) AllowEntry(entry *core.EnterLong, account core.AccountSnapshot) *Rejection {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDayLocked()
	m.captureEquityLocked(account)

	if entry.SizeUSD > m.cfg.MaxPositionSizeUSD {
		return &Rejection{
			Code: RejectPositionTooLarge,
			Reason: fmt.Sprintf("position size %.2f USD exceeds maximum %.2f USD",
				entry.SizeUSD, m.cfg.MaxPositionSizeUSD),
		}
	}

	required := entry.SizeUSD / m.cfg.MaxLeverage
	if account.FreeCollateralUSD < required {
		return &Rejection{
			Code: RejectInsufficientCollateral,
			Reason: fmt.Sprintf("free collateral %.2f USD below required %.2f USD (%.0fx leverage)",
				account.FreeCollateralUSD, required, m.cfg.MaxLeverage),
		}
	}

	if m.breakerTrippedLocked(account) {
		return &Rejection{
			Code: RejectCircuitBroken,
			Reason: fmt.Sprintf("circuit breaker tripped: daily pnl %.2f USD, limit %.2f USD",
				m.dailyPnL, m.cfg.MaxDailyLossUSD),
		}
	}

	return nil
}

// UpdateDailyPnL accumulates closed-trade PnL into the daily total.
func (m *Manager) UpdateDailyPnL(delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDayLocked()
	m.dailyPnL += delta
	m.log.Infof("daily pnl now %.2f USD", m.dailyPnL)
}

// DailyPnL returns the accumulated PnL for the current UTC day.
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()
	return m.dailyPnL
}

// Tripped reports whether the daily-loss leg of the breaker is engaged.
// The drawdown leg needs an account snapshot and is only evaluated
// inside AllowEntry.
func (m *Manager) Tripped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()
	return m.tripped || m.dailyLossExceededLocked()
}

// Rehydrate replays persisted trades that closed on the current UTC day
// back into the daily PnL, so a restart cannot dodge the breaker.
func (m *Manager) Rehydrate(trades []core.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollDayLocked()
	today := m.clock.TodayUTC()
	for _, t := range trades {
		if t.ClosedAt.UTC().Truncate(24 * time.Hour).Equal(today) {
			m.dailyPnL += t.PnLUSD
		}
	}
	if m.dailyLossExceededLocked() {
		m.tripped = true
		m.log.Warnf("circuit breaker tripped on rehydrate: daily pnl %.2f USD", m.dailyPnL)
	}
}

func (m *Manager) breakerTrippedLocked(account core.AccountSnapshot) bool {
	if m.tripped {
		return true
	}
	if m.dailyLossExceededLocked() {
		m.tripped = true
		m.log.Warnf("circuit breaker tripped: daily pnl %.2f USD", m.dailyPnL)
		return true
	}
	// Drawdown uses equity snapshots, not marked-to-market open
	// positions, to avoid flapping.
	if m.equityCaptured && m.initialEquity > 0 {
		drawdown := (m.initialEquity - account.EquityUSD) / m.initialEquity * 100
		if drawdown > m.cfg.MaxDrawdownPct {
			m.tripped = true
			m.log.Warnf("circuit breaker tripped: drawdown %.2f%% exceeds %.2f%%",
				drawdown, m.cfg.MaxDrawdownPct)
			return true
		}
	}
	return false
}

func (m *Manager) dailyLossExceededLocked() bool {
	if m.cfg.MaxDailyLossUSD <= 0 {
		return false
	}
	return m.dailyPnL <= -m.cfg.MaxDailyLossUSD || m.dailyPnL >= m.cfg.MaxDailyLossUSD
}

func (m *Manager) captureEquityLocked(account core.AccountSnapshot) {
	if !m.equityCaptured && account.EquityUSD > 0 {
		m.initialEquity = account.EquityUSD
		m.equityCaptured = true
	}
}

// rollDayLocked resets the daily PnL and un-trips the breaker when the
// UTC day changed. The drawdown leg re-trips on the next AllowEntry if
// equity has not recovered.
func (m *Manager) rollDayLocked() {
	today := m.clock.TodayUTC()
	if today.After(m.lastResetDay) {
		m.log.Infof("new trading day %s, daily pnl reset (was %.2f USD)",
			today.Format("2006-01-02"), m.dailyPnL)
		m.dailyPnL = 0
		m.tripped = false
		m.lastResetDay = today
	}
}
