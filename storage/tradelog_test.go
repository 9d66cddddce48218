package storage

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/volbreak/volbreak/core"
	zlog "github.com/volbreak/volbreak/logger/zerolog"
)

func testLogger(t *testing.T) core.Logger {
	t.Helper()
	log, err := zlog.New(zlog.Config{Level: "disabled"})
	require.NoError(t, err)
	return log
}

func sampleTrade(pnl float64, closedAt time.Time) core.Trade {
	return core.Trade{
		Instrument: "ETH-USD",
		Side:       core.SideTypeBuy,
		EntryPrice: 101,
		ExitPrice:  101 + pnl,
		SizeBase:   1,
		SizeUSD:    101,
		StopLoss:   99,
		TakeProfit: 107,
		OpenedAt:   closedAt.Add(-time.Hour),
		ClosedAt:   closedAt,
		ExitReason: core.ExitReasonTakeProfit,
		PnLUSD:     pnl,
	}
}

func TestTradeLog_AppendAndReload(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	log, err := NewTradeLog(dir, testLogger(t))
	require.NoError(t, err)
	require.NoError(t, log.Append(sampleTrade(5, now)))
	require.NoError(t, log.Append(sampleTrade(-2, now.Add(time.Hour))))
	require.NoError(t, log.Close())

	reloaded, err := NewTradeLog(dir, testLogger(t))
	require.NoError(t, err)
	defer reloaded.Close()

	trades := reloaded.All()
	require.Len(t, trades, 2)
	require.InDelta(t, 5, trades[0].PnLUSD, 1e-9)
	require.InDelta(t, -2, trades[1].PnLUSD, 1e-9)
}

func TestTradeLog_ToleratesTruncatedLastLine(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	log, err := NewTradeLog(dir, testLogger(t))
	require.NoError(t, err)
	require.NoError(t, log.Append(sampleTrade(5, now)))
	require.NoError(t, log.Close())

	// Simulate a crash mid-append.
	path := filepath.Join(dir, "trades.jsonl")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString(`{"instrument":"ETH-USD","pnl_us`)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	reloaded, err := NewTradeLog(dir, testLogger(t))
	require.NoError(t, err)
	defer reloaded.Close()
	require.Len(t, reloaded.All(), 1)
}

func TestTradeLog_WritesPerformanceSnapshot(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	log, err := NewTradeLog(dir, testLogger(t))
	require.NoError(t, err)
	defer log.Close()
	require.NoError(t, log.Append(sampleTrade(5, now)))

	content, err := os.ReadFile(filepath.Join(dir, "performance.json"))
	require.NoError(t, err)
	require.Contains(t, string(content), `"total_trades": 1`)
	// All-winning history has an infinite profit factor.
	require.Contains(t, string(content), `"profit_factor": "inf"`)
}

func TestTradeLog_ReplayYieldsIdenticalMetrics(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	log, err := NewTradeLog(dir, testLogger(t))
	require.NoError(t, err)
	for i, pnl := range []float64{5, -2, 3.5, -1, 8} {
		require.NoError(t, log.Append(sampleTrade(pnl, now.Add(time.Duration(i)*time.Hour))))
	}
	before := log.Metrics()
	require.NoError(t, log.Close())

	reloaded, err := NewTradeLog(dir, testLogger(t))
	require.NoError(t, err)
	defer reloaded.Close()
	require.Equal(t, before, reloaded.Metrics())
}

func TestComputeMetrics(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	trades := []core.Trade{
		sampleTrade(10, now),
		sampleTrade(-4, now.Add(time.Hour)),
		sampleTrade(6, now.Add(2*time.Hour)),
		sampleTrade(-2, now.Add(3*time.Hour)),
	}

	m := computeMetrics(trades)
	require.Equal(t, 4, m.TotalTrades)
	require.InDelta(t, 10, m.TotalPnL, 1e-9)
	require.InDelta(t, 0.5, m.WinRate, 1e-9)
	require.InDelta(t, 8, m.AvgWin, 1e-9)
	require.InDelta(t, -3, m.AvgLoss, 1e-9)
	require.InDelta(t, 16.0/6.0, m.ProfitFactor, 1e-9)
	// Cumulative series 10, 6, 12, 10: worst decline is 10 -> 6.
	require.InDelta(t, 4, m.MaxDrawdown, 1e-9)
}

func TestComputeMetrics_Conventions(t *testing.T) {
	require.Equal(t, Metrics{}, computeMetrics(nil))

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	onlyWins := computeMetrics([]core.Trade{sampleTrade(5, now)})
	require.True(t, math.IsInf(onlyWins.ProfitFactor, 1))

	flat := computeMetrics([]core.Trade{sampleTrade(0, now)})
	require.Zero(t, flat.ProfitFactor)
}

func TestMetrics_String(t *testing.T) {
	m := computeMetrics([]core.Trade{
		sampleTrade(5, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)),
	})
	out := m.String()
	require.Contains(t, out, "Trades")
	require.Contains(t, out, "Total PnL")
	require.Contains(t, out, "n/a")
}
