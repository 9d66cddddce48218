package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/volbreak/volbreak/core"
	zlog "github.com/volbreak/volbreak/logger/zerolog"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) TodayUTC() time.Time {
	return c.now.UTC().Truncate(24 * time.Hour)
}

func testLogger(t *testing.T) core.Logger {
	t.Helper()
	log, err := zlog.New(zlog.Config{Level: "disabled"})
	require.NoError(t, err)
	return log
}

func testManager(t *testing.T, clock core.Clock) *Manager {
	return NewManager(Config{
		MaxPositionSizeUSD: 500,
		MaxDailyLossUSD:    50,
		MaxDrawdownPct:     10,
		MaxLeverage:        5,
	}, clock, testLogger(t))
}

func entry(sizeUSD float64) *core.EnterLong {
	return &core.EnterLong{EntryPrice: 100, StopLoss: 99, TakeProfit: 103, SizeUSD: sizeUSD}
}

func account(equity, free float64) core.AccountSnapshot {
	return core.AccountSnapshot{EquityUSD: equity, FreeCollateralUSD: free}
}

func TestManager_AllowEntry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := testManager(t, clock)

	require.Nil(t, m.AllowEntry(entry(100), account(1000, 1000)))
}

func TestManager_AllowEntry_PositionTooLarge(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := testManager(t, clock)

	rejection := m.AllowEntry(entry(501), account(10000, 10000))
	require.NotNil(t, rejection)
	require.Equal(t, RejectPositionTooLarge, rejection.Code)
}

func TestManager_AllowEntry_InsufficientCollateral(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := testManager(t, clock)

	// 100 USD at 5x leverage needs 20 USD free collateral.
	rejection := m.AllowEntry(entry(100), account(1000, 19))
	require.NotNil(t, rejection)
	require.Equal(t, RejectInsufficientCollateral, rejection.Code)

	require.Nil(t, m.AllowEntry(entry(100), account(1000, 20)))
}

func TestManager_CircuitBreaker_DailyLoss(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := testManager(t, clock)

	m.UpdateDailyPnL(-30)
	require.Nil(t, m.AllowEntry(entry(100), account(1000, 1000)))
	require.False(t, m.Tripped())

	m.UpdateDailyPnL(-25)
	rejection := m.AllowEntry(entry(100), account(1000, 1000))
	require.NotNil(t, rejection)
	require.Equal(t, RejectCircuitBroken, rejection.Code)
	require.True(t, m.Tripped())
}

func TestManager_CircuitBreaker_Drawdown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := testManager(t, clock)

	// First read captures initial equity.
	require.Nil(t, m.AllowEntry(entry(100), account(1000, 1000)))

	// 11% below initial equity exceeds the 10% limit.
	rejection := m.AllowEntry(entry(100), account(890, 890))
	require.NotNil(t, rejection)
	require.Equal(t, RejectCircuitBroken, rejection.Code)
}

func TestManager_CircuitBreaker_LatchedUntilDayRoll(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := testManager(t, clock)

	m.UpdateDailyPnL(-55)
	require.NotNil(t, m.AllowEntry(entry(100), account(1000, 1000)))

	// A winning trade later the same day does not un-trip the breaker.
	m.UpdateDailyPnL(30)
	require.NotNil(t, m.AllowEntry(entry(100), account(1000, 1000)))

	// UTC midnight resets the day and the breaker.
	clock.now = clock.now.Add(24 * time.Hour)
	require.Zero(t, m.DailyPnL())
	require.Nil(t, m.AllowEntry(entry(100), account(1000, 1000)))
}

func TestManager_Rehydrate_SameDayTradesTripBreaker(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := testManager(t, clock)

	closedAt := clock.now.Add(-2 * time.Hour)
	m.Rehydrate([]core.Trade{
		{PnLUSD: -20, ClosedAt: closedAt},
		{PnLUSD: -15, ClosedAt: closedAt.Add(time.Minute)},
		{PnLUSD: -20, ClosedAt: closedAt.Add(2 * time.Minute)},
	})

	require.InDelta(t, -55, m.DailyPnL(), 1e-9)
	require.True(t, m.Tripped())
}

func TestManager_Rehydrate_IgnoresPriorDays(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := testManager(t, clock)

	m.Rehydrate([]core.Trade{
		{PnLUSD: -200, ClosedAt: clock.now.Add(-36 * time.Hour)},
		{PnLUSD: -10, ClosedAt: clock.now.Add(-time.Hour)},
	})

	require.InDelta(t, -10, m.DailyPnL(), 1e-9)
	require.False(t, m.Tripped())
}

func TestManager_DailyPnLMatchesTradeSum(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	m := testManager(t, clock)

	deltas := []float64{12.5, -7.25, 3, -1.1}
	sum := 0.0
	for _, d := range deltas {
		m.UpdateDailyPnL(d)
		sum += d
	}
	require.InDelta(t, sum, m.DailyPnL(), 1e-9)
}
