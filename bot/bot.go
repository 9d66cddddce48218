// Package bot runs the trading control loop: one tick per update
// interval, exits checked before entries, shutdown handled gracefully.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/volbreak/volbreak/core"
	"github.com/volbreak/volbreak/market"
	"github.com/volbreak/volbreak/order"
	"github.com/volbreak/volbreak/position"
	"github.com/volbreak/volbreak/risk"
	"github.com/volbreak/volbreak/storage"
)

// ErrVenueInit marks a venue connectivity failure during start-up.
var ErrVenueInit = errors.New("venue connectivity failed to initialise")

const defaultShutdownGrace = 15 * time.Second

// State is the coarse lifecycle of the bot, exposed for logs and the
// operator.
type State string

const (
	StateInitialising  State = "Initialising"
	StateRunning       State = "Running"
	StateReconnecting  State = "Reconnecting"
	StateCircuitBroken State = "CircuitBroken"
	StateStopping      State = "Stopping"
	StateStopped       State = "Stopped"
)

// Config holds the control loop parameters.
type Config struct {
	DataDir        string
	UpdateInterval time.Duration
	ShutdownGrace  time.Duration

	// KeepPosition leaves an open position on the venue at shutdown
	// and persists it for the next run instead of closing it.
	KeepPosition bool
}

// Bot wires the components together and supervises the tick loop. No
// error escapes Run unhandled; the loop is the top-level supervisor.
type Bot struct {
	cfg       Config
	market    *market.MarketData
	strategy  core.Strategy
	positions *position.Manager
	orders    *order.Manager
	risk      *risk.Manager
	trades    *storage.TradeLog
	notifier  core.Notifier
	clock     core.Clock
	log       core.Logger

	mu    sync.Mutex
	state State
}

// Option configures optional bot collaborators.
type Option func(*Bot)

func WithNotifier(n core.Notifier) Option {
	return func(b *Bot) { b.notifier = n }
}

func NewBot(
	cfg Config,
	marketData *market.MarketData,
	strategy core.Strategy,
	positions *position.Manager,
	orders *order.Manager,
	riskManager *risk.Manager,
	trades *storage.TradeLog,
	clock core.Clock,
	log core.Logger,
	options ...Option,
) *Bot {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	b := &Bot{
		cfg:       cfg,
		market:    marketData,
		strategy:  strategy,
		positions: positions,
		orders:    orders,
		risk:      riskManager,
		trades:    trades,
		clock:     clock,
		log:       log.WithField("component", "bot"),
		state:     StateInitialising,
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// State returns the current lifecycle state.
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bot) setState(state State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == state {
		return
	}
	b.log.Infof("state %s -> %s", b.state, state)
	b.state = state
}

// Run executes the control loop until ctx is cancelled. It returns
// core.ErrCircuitBrokenAtStart when replayed same-day PnL already
// exceeds the daily loss limit, and wraps ErrVenueInit when the initial
// market data snapshot fails.
func (b *Bot) Run(ctx context.Context) error {
	b.setState(StateInitialising)

	b.risk.Rehydrate(b.trades.All())
	if b.risk.Tripped() {
		return fmt.Errorf("%w: replayed daily pnl %.2f USD",
			core.ErrCircuitBrokenAtStart, b.risk.DailyPnL())
	}

	if err := b.restorePosition(); err != nil {
		b.log.WithError(err).Warn("saved position not restored")
	}

	if err := b.market.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrVenueInit, err)
	}
	b.setState(StateRunning)
	b.log.Infof("control loop started, ticking every %s", b.cfg.UpdateInterval)

	ticker := time.NewTicker(b.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return nil
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick runs one control-loop iteration. Exits are checked before
// entries: a stop hit and a new entry never happen in the same tick.
func (b *Bot) tick(ctx context.Context) {
	view := b.market.View()
	if view.LatestPrice <= 0 {
		b.log.Debug("no market price yet, skipping tick")
		return
	}

	if _, open := b.positions.Current(); open {
		b.checkExit(ctx, view)
		b.refreshState()
		return
	}
	b.refreshState()

	if b.risk.Tripped() {
		return
	}
	entry := b.strategy.Evaluate(view)
	if entry == nil {
		return
	}

	if err := b.orders.OpenLong(ctx, entry); err != nil {
		if errors.Is(err, core.ErrEntryRejected) {
			// Already logged with its reason by the order manager.
			return
		}
		b.log.WithError(err).Error("entry failed")
		b.notifyError(err)
	}
}

func (b *Bot) checkExit(ctx context.Context, view core.MarketView) {
	reason, hit := b.positions.CheckExit(view.LatestPrice)
	if !hit {
		return
	}
	if _, err := b.orders.ClosePosition(ctx, view.LatestPrice, reason); err != nil {
		// The position stays open; the next tick retries.
		b.log.WithError(err).Error("exit failed")
		b.notifyError(err)
	}
}

// refreshState reflects the stream and breaker condition into the
// lifecycle state. CircuitBroken still manages an open position; it
// only stops new entries.
func (b *Bot) refreshState() {
	switch {
	case b.risk.Tripped():
		if b.State() != StateCircuitBroken && b.notifier != nil {
			b.notifier.Notify(fmt.Sprintf(
				"circuit breaker tripped: daily pnl %.2f USD, no new entries today", b.risk.DailyPnL()))
		}
		b.setState(StateCircuitBroken)
	case !b.market.Connected():
		b.setState(StateReconnecting)
	default:
		b.setState(StateRunning)
	}
}

// restorePosition re-adopts a position persisted by a previous
// keep-position shutdown.
func (b *Bot) restorePosition() error {
	state, err := storage.LoadBotState(b.cfg.DataDir)
	if err != nil {
		return err
	}
	if state.Position == nil {
		return nil
	}

	if err := b.orders.Adopt(*state.Position); err != nil {
		return err
	}
	b.log.Infof("restored position from %s: %s",
		state.SavedAt.Format(time.RFC3339), state.Position)
	return storage.ClearBotState(b.cfg.DataDir)
}

// shutdown closes or persists the open position, flushes the trade log
// and prints the performance summary. In-flight orders get a bounded
// grace period since the run context is already cancelled.
func (b *Bot) shutdown() {
	b.setState(StateStopping)
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.ShutdownGrace)
	defer cancel()

	if pos, open := b.positions.Current(); open {
		if b.cfg.KeepPosition {
			b.persistPosition(pos)
		} else {
			b.closeAtShutdown(ctx)
		}
	}

	if err := b.trades.Close(); err != nil {
		b.log.WithError(err).Error("trade log close failed")
	}

	metrics := b.trades.Metrics()
	if metrics.TotalTrades > 0 {
		fmt.Println(metrics)
	}
	b.setState(StateStopped)
}

func (b *Bot) persistPosition(pos core.Position) {
	state := storage.BotState{Position: &pos, SavedAt: b.clock.Now()}
	if err := storage.SaveBotState(b.cfg.DataDir, state); err != nil {
		b.log.WithError(err).Error("persist open position failed")
		return
	}
	b.log.Infof("open position persisted for next run: %s", pos)
}

func (b *Bot) closeAtShutdown(ctx context.Context) {
	price := b.market.View().LatestPrice
	if price <= 0 {
		b.log.Error("no market price at shutdown, position left open")
		return
	}
	if _, err := b.orders.ClosePosition(ctx, price, core.ExitReasonShutdown); err != nil {
		b.log.WithError(err).Error("close at shutdown failed")
	}
}

func (b *Bot) notifyError(err error) {
	if b.notifier != nil {
		b.notifier.OnError(err)
	}
}
