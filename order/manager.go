// Package order places entry and exit orders and keeps the position,
// trade log and risk state consistent around every fill.
package order

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/volbreak/volbreak/core"
	"github.com/volbreak/volbreak/position"
	"github.com/volbreak/volbreak/risk"
	"github.com/volbreak/volbreak/storage"
)

const (
	defaultOrderTimeout = 10 * time.Second
	accountTimeout      = 5 * time.Second
)

// SimAccount is implemented by the simulation venue so synthesized
// fills still move the simulated equity that the risk gate reads.
type SimAccount interface {
	LockMargin(usd float64)
	ReleaseMargin(usd float64, pnl float64)
}

// Config holds order execution parameters.
type Config struct {
	Instrument   string
	LotSize      float64
	Simulation   bool
	MaxLeverage  float64
	OrderTimeout time.Duration
}

// Manager executes entries and exits. In simulation mode fills are
// synthesized and the venue is never asked to place an order; the call
// surface is identical either way.
type Manager struct {
	mu        sync.Mutex
	cfg       Config
	venue     core.VenueClient
	positions *position.Manager
	risk      *risk.Manager
	trades    *storage.TradeLog
	orders    core.OrderStore
	sim       SimAccount
	notifier  core.Notifier
	clock     core.Clock
	log       core.Logger
}

// Option configures optional manager collaborators.
type Option func(*Manager)

func WithNotifier(n core.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithSimAccount wires the simulated account bookkeeping. Only
// meaningful in simulation mode.
func WithSimAccount(sim SimAccount) Option {
	return func(m *Manager) { m.sim = sim }
}

func NewManager(
	cfg Config,
	venue core.VenueClient,
	positions *position.Manager,
	riskManager *risk.Manager,
	trades *storage.TradeLog,
	orders core.OrderStore,
	clock core.Clock,
	log core.Logger,
	options ...Option,
) *Manager {
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = defaultOrderTimeout
	}
	m := &Manager{
		cfg:       cfg,
		venue:     venue,
		positions: positions,
		risk:      riskManager,
		trades:    trades,
		orders:    orders,
		clock:     clock,
		log:       log.WithField("component", "order"),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// OpenLong runs the risk gate and, if approved, fills a market buy and
// installs the position. A risk denial wraps core.ErrEntryRejected and
// has no side effect beyond an audit record.
func (m *Manager) OpenLong(ctx context.Context, entry *core.EnterLong) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, err := m.account(ctx)
	if err != nil {
		return fmt.Errorf("fetch account for risk gate: %w", err)
	}

	if rejection := m.risk.AllowEntry(entry, account); rejection != nil {
		m.log.Infof("entry rejected (%s): %s", rejection.Code, rejection.Reason)
		return fmt.Errorf("%w: %s", core.ErrEntryRejected, rejection.Reason)
	}

	sizeBase := m.roundLot(entry.SizeUSD / entry.EntryPrice)
	if sizeBase <= 0 {
		return fmt.Errorf("size %.2f USD rounds to zero base units at price %.4f",
			entry.SizeUSD, entry.EntryPrice)
	}

	record := m.newRecord(core.SideTypeBuy, entry.EntryPrice, sizeBase)
	if err := m.orders.CreateOrder(ctx, record); err != nil {
		m.log.WithError(err).Error("audit record for entry order failed")
	}

	fill, err := m.fill(ctx, core.SideTypeBuy, sizeBase, entry.EntryPrice, record.ClientID)
	if err != nil {
		m.markRecord(ctx, record, core.OrderStatusTypeRejected, 0)
		return fmt.Errorf("entry order failed: %w", err)
	}
	m.markRecord(ctx, record, core.OrderStatusTypeFilled, fill.Price)

	pos := core.Position{
		Instrument: m.cfg.Instrument,
		Side:       core.SideTypeBuy,
		EntryPrice: fill.Price,
		SizeBase:   fill.Size,
		SizeUSD:    entry.SizeUSD,
		StopLoss:   entry.StopLoss,
		TakeProfit: entry.TakeProfit,
		OpenedAt:   m.clock.Now(),
	}
	if err := m.positions.Open(pos); err != nil {
		return err
	}
	if m.sim != nil && m.cfg.MaxLeverage > 0 {
		m.sim.LockMargin(entry.SizeUSD / m.cfg.MaxLeverage)
	}

	m.notify(fmt.Sprintf("opened %s: %s", pos, entry.Reasoning))
	return nil
}

// Adopt installs a position persisted by a previous run without placing
// an order. The margin it consumed is re-locked on the simulated
// account so free collateral stays truthful across a restart.
func (m *Manager) Adopt(pos core.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.positions.Open(pos); err != nil {
		return err
	}
	if m.sim != nil && m.cfg.MaxLeverage > 0 {
		m.sim.LockMargin(pos.SizeUSD / m.cfg.MaxLeverage)
	}
	return nil
}

// ClosePosition fills a market sell for the full size and converts the
// position into a trade. The close, the trade-log append and the risk
// update form one logical step: an append failure is logged but the
// position is still closed, since financial truth lives on the venue.
func (m *Manager) ClosePosition(ctx context.Context, price float64, reason core.ExitReason) (core.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions.Current()
	if !ok {
		return core.Trade{}, core.ErrNoPosition
	}

	record := m.newRecord(core.SideTypeSell, price, pos.SizeBase)
	if err := m.orders.CreateOrder(ctx, record); err != nil {
		m.log.WithError(err).Error("audit record for exit order failed")
	}

	fill, err := m.fill(ctx, core.SideTypeSell, pos.SizeBase, price, record.ClientID)
	if err != nil {
		// The position stays open; the next tick retries the exit.
		m.markRecord(ctx, record, core.OrderStatusTypeRejected, 0)
		return core.Trade{}, fmt.Errorf("exit order failed: %w", err)
	}
	m.markRecord(ctx, record, core.OrderStatusTypeFilled, fill.Price)

	trade, err := m.positions.Close(fill.Price, reason, m.clock.Now())
	if err != nil {
		return core.Trade{}, err
	}

	if err := m.trades.Append(trade); err != nil {
		m.log.WithError(err).Error("trade log append failed; position is still closed")
	}
	m.risk.UpdateDailyPnL(trade.PnLUSD)
	if m.sim != nil && m.cfg.MaxLeverage > 0 {
		m.sim.ReleaseMargin(trade.SizeUSD/m.cfg.MaxLeverage, trade.PnLUSD)
	}

	m.notifyTrade(trade)
	return trade, nil
}

func (m *Manager) account(ctx context.Context) (core.AccountSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, accountTimeout)
	defer cancel()
	return m.venue.Account(ctx)
}

// fill obtains a fill for the given side: synthesized in simulation,
// a market order awaited up to OrderTimeout in live mode.
func (m *Manager) fill(ctx context.Context, side core.SideType, sizeBase, price float64, clientID string) (core.Fill, error) {
	if m.cfg.Simulation {
		return core.Fill{Price: price, Size: sizeBase}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.OrderTimeout)
	defer cancel()

	fill, err := m.venue.PlaceMarketOrder(ctx, m.cfg.Instrument, side, sizeBase, clientID)
	if err != nil {
		if ctx.Err() != nil {
			return core.Fill{}, fmt.Errorf("%w: %s", core.ErrOrderTimeout, clientID)
		}
		return core.Fill{}, err
	}
	return fill, nil
}

func (m *Manager) newRecord(side core.SideType, price, quantity float64) *core.OrderRecord {
	now := m.clock.Now()
	return &core.OrderRecord{
		ClientID:   uuid.NewString(),
		Instrument: m.cfg.Instrument,
		Side:       side,
		Status:     core.OrderStatusTypeNew,
		Price:      price,
		Quantity:   quantity,
		Simulated:  m.cfg.Simulation,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (m *Manager) markRecord(ctx context.Context, record *core.OrderRecord, status core.OrderStatusType, fillPrice float64) {
	record.Status = status
	record.UpdatedAt = m.clock.Now()
	if fillPrice > 0 {
		record.Price = fillPrice
	}
	if err := m.orders.UpdateOrder(ctx, record); err != nil {
		m.log.WithError(err).Error("audit record update failed")
	}
}

func (m *Manager) roundLot(size float64) float64 {
	if m.cfg.LotSize <= 0 {
		return size
	}
	return math.Floor(size/m.cfg.LotSize) * m.cfg.LotSize
}

func (m *Manager) notify(message string) {
	m.log.Info(message)
	if m.notifier != nil {
		m.notifier.Notify(message)
	}
}

func (m *Manager) notifyTrade(trade core.Trade) {
	m.log.Infof("trade closed: %s", trade)
	if m.notifier != nil {
		m.notifier.OnTrade(trade)
	}
}
