package storage

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/volbreak/volbreak/core"
	"gonum.org/v1/gonum/stat"
)

// Metrics is the performance snapshot written to performance.json.
// ProfitFactor follows the usual conventions: +Inf when there are
// profits and no losses, 0 when there are neither.
type Metrics struct {
	TotalTrades  int     `json:"total_trades"`
	TotalPnL     float64 `json:"total_pnl"`
	WinRate      float64 `json:"win_rate"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	PnLMean      float64 `json:"pnl_mean"`
	PnLStdDev    float64 `json:"pnl_std_dev"`
}

// MarshalJSON renders an infinite profit factor as the string "inf",
// which encoding/json cannot represent as a number.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type alias Metrics
	out := struct {
		alias
		ProfitFactor any `json:"profit_factor"`
	}{alias: alias(m), ProfitFactor: m.ProfitFactor}
	if math.IsInf(m.ProfitFactor, 1) {
		out.ProfitFactor = "inf"
	}
	return json.Marshal(out)
}

func computeMetrics(trades []core.Trade) Metrics {
	m := Metrics{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return m
	}

	pnls := lo.Map(trades, func(t core.Trade, _ int) float64 { return t.PnLUSD })
	wins := lo.Filter(pnls, func(p float64, _ int) bool { return p > 0 })
	losses := lo.Filter(pnls, func(p float64, _ int) bool { return p < 0 })

	grossProfit := lo.Sum(wins)
	grossLoss := lo.Sum(losses)

	m.TotalPnL = lo.Sum(pnls)
	m.WinRate = float64(len(wins)) / float64(len(trades))
	if len(wins) > 0 {
		m.AvgWin = grossProfit / float64(len(wins))
	}
	if len(losses) > 0 {
		m.AvgLoss = grossLoss / float64(len(losses))
	}

	switch {
	case grossLoss != 0:
		m.ProfitFactor = grossProfit / math.Abs(grossLoss)
	case grossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	}

	m.MaxDrawdown = maxDrawdown(pnls)
	m.PnLMean = stat.Mean(pnls, nil)
	if len(pnls) > 1 {
		m.PnLStdDev = stat.StdDev(pnls, nil)
	}
	return m
}

// maxDrawdown is the largest peak-to-trough decline of the cumulative
// PnL series, in USD.
func maxDrawdown(pnls []float64) float64 {
	var cumulative, peak, worst float64
	for _, p := range pnls {
		cumulative += p
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > worst {
			worst = dd
		}
	}
	return worst
}

// String renders the metrics as a table for the status command and the
// shutdown report.
func (m Metrics) String() string {
	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	profitFactor := "n/a"
	if !math.IsInf(m.ProfitFactor, 1) {
		profitFactor = strconv.FormatFloat(m.ProfitFactor, 'f', 2, 64)
	}

	table.AppendBulk([][]string{
		{"Trades", strconv.Itoa(m.TotalTrades)},
		{"Total PnL (USD)", strconv.FormatFloat(m.TotalPnL, 'f', 2, 64)},
		{"Win Rate", strconv.FormatFloat(m.WinRate*100, 'f', 1, 64) + " %"},
		{"Avg Win (USD)", strconv.FormatFloat(m.AvgWin, 'f', 2, 64)},
		{"Avg Loss (USD)", strconv.FormatFloat(m.AvgLoss, 'f', 2, 64)},
		{"Profit Factor", profitFactor},
		{"Max Drawdown (USD)", strconv.FormatFloat(m.MaxDrawdown, 'f', 2, 64)},
		{"PnL Mean (USD)", strconv.FormatFloat(m.PnLMean, 'f', 2, 64)},
		{"PnL StdDev (USD)", strconv.FormatFloat(m.PnLStdDev, 'f', 2, 64)},
	})
	table.Render()
	return sb.String()
}
