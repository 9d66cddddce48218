package market

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/markcheno/go-talib"
	"github.com/volbreak/volbreak/core"
)

const (
	defaultSnapshotInterval = time.Minute
	// The dYdX indexer caps candle requests at 100 bars.
	defaultSnapshotLimit = 100
	queryTimeout         = 5 * time.Second

	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// Config holds the market data assembly parameters.
type Config struct {
	Instrument        string
	Timeframe         core.Timeframe
	SnapshotLimit     int
	SnapshotInterval  time.Duration
	ResistancePeriods int
	VolumeLookback    int
}

// MarketData keeps the candle store fresh from two paths: a periodic
// REST snapshot and a streaming trade feed. It publishes point-in-time
// MarketView copies; callers never hold its lock.
type MarketData struct {
	cfg       Config
	feeder    core.Feeder
	store     *CandleStore
	clock     core.Clock
	log       core.Logger
	connected atomic.Bool
}

func NewMarketData(cfg Config, feeder core.Feeder, clock core.Clock, log core.Logger) *MarketData {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = defaultSnapshotInterval
	}
	if cfg.SnapshotLimit <= 0 {
		cfg.SnapshotLimit = defaultSnapshotLimit
	}
	return &MarketData{
		cfg:    cfg,
		feeder: feeder,
		store:  NewCandleStore(cfg.Instrument, cfg.Timeframe, defaultMaxCandles),
		clock:  clock,
		log:    log.WithField("component", "market"),
	}
}

// Start performs the initial snapshot and launches the stream reader
// and the periodic snapshot safety net. A failed initial snapshot is
// returned to the caller; later failures are retried.
func (m *MarketData) Start(ctx context.Context) error {
	if err := m.snapshot(ctx); err != nil {
		return err
	}

	go m.streamLoop(ctx)
	go m.snapshotLoop(ctx)
	return nil
}

// Connected reports whether the trade stream is currently attached.
func (m *MarketData) Connected() bool { return m.connected.Load() }

// View returns the instantaneous market view. Until ResistancePeriods
// and VolumeLookback closed candles exist, ResistanceLevel is +Inf and
// AverageVolume is 0.
func (m *MarketData) View() core.MarketView {
	view := core.MarketView{
		Instrument:      m.cfg.Instrument,
		ResistanceLevel: math.Inf(1),
		At:              m.clock.Now(),
	}

	window := m.cfg.ResistancePeriods
	if m.cfg.VolumeLookback > window {
		window = m.cfg.VolumeLookback
	}

	// One lock acquisition: the price, the forming candle and the
	// closed tail never straddle a seal event within a single view.
	latest, currentVolume, closed := m.store.snapshotView(window)
	view.LatestPrice = latest
	view.CurrentVolume = currentVolume
	if len(closed) < m.cfg.ResistancePeriods || len(closed) < m.cfg.VolumeLookback {
		return view
	}

	highs := make(core.Series[float64], len(closed))
	volumes := make(core.Series[float64], len(closed))
	for i, c := range closed {
		highs[i] = c.High
		volumes[i] = c.Volume
	}

	view.ResistanceLevel = core.Series[float64](talib.Max(highs, m.cfg.ResistancePeriods)).Last(0)
	view.AverageVolume = core.Series[float64](talib.Sma(volumes, m.cfg.VolumeLookback)).Last(0)
	return view
}

// Store exposes the underlying candle store, read-only by convention.
func (m *MarketData) Store() *CandleStore { return m.store }

func (m *MarketData) snapshot(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	candles, err := m.feeder.Candles(ctx, m.cfg.Instrument, m.cfg.Timeframe, m.cfg.SnapshotLimit)
	if err != nil {
		return err
	}
	return m.store.LoadSnapshot(candles)
}

// snapshotLoop refreshes the candle store over REST as a safety net for
// gaps the stream may have missed.
func (m *MarketData) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.snapshot(ctx); err != nil {
				m.log.WithError(err).Warn("periodic snapshot failed")
			}
		}
	}
}

// streamLoop keeps a trade subscription alive, reconnecting with
// exponential backoff and re-snapshotting after every reconnect to
// close the gap. Trades buffered while the snapshot runs are discarded;
// the snapshot already accounts for them.
func (m *MarketData) streamLoop(ctx context.Context) {
	retry := &backoff.Backoff{Min: reconnectMin, Max: reconnectMax}

	for {
		if ctx.Err() != nil {
			return
		}

		ticks, errs := m.feeder.SubscribeTrades(ctx, m.cfg.Instrument)
		if err := m.snapshot(ctx); err != nil {
			m.log.WithError(err).Warn("post-reconnect snapshot failed")
		}
		m.drainPreSnapshot(ticks)
		m.connected.Store(true)

		if m.consume(ctx, ticks, errs) {
			return
		}

		m.connected.Store(false)
		wait := retry.Duration()
		m.log.Warnf("trade stream disconnected, reconnecting in %s", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drainPreSnapshot discards trades buffered in the subscription channel
// while the snapshot ran. The snapshot already includes their volume;
// applying them again would double-count the forming candle.
func (m *MarketData) drainPreSnapshot(ticks chan core.TradeTick) {
	for {
		select {
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			m.log.Debugf("dropped pre-snapshot trade at %.4f", tick.Price)
		default:
			return
		}
	}
}

// consume drains one subscription until it dies. Returns true when the
// context was cancelled.
func (m *MarketData) consume(ctx context.Context, ticks chan core.TradeTick, errs chan error) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case tick, ok := <-ticks:
			if !ok {
				return false
			}
			m.onTrade(tick)
		case err, ok := <-errs:
			if !ok {
				return false
			}
			if err != nil {
				m.log.WithError(err).Warn("trade stream error")
			}
			return false
		}
	}
}

func (m *MarketData) onTrade(tick core.TradeTick) {
	if err := m.store.ApplyTrade(tick.Price, tick.Size, tick.At); err != nil {
		m.log.WithError(err).Debug("dropped trade")
	}
}
