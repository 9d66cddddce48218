package core

import (
	"fmt"
	"time"
)

// SideType represents the direction of an order.
type SideType string

const (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"
)

// ExitReason states why a position was closed.
type ExitReason string

const (
	ExitReasonStopLoss    ExitReason = "STOP_LOSS"
	ExitReasonTakeProfit  ExitReason = "TAKE_PROFIT"
	ExitReasonManualClose ExitReason = "MANUAL_CLOSE"
	ExitReasonShutdown    ExitReason = "SHUTDOWN"
)

// EnterLong describes a candidate long entry proposed by the strategy.
type EnterLong struct {
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	SizeUSD    float64
	Reasoning  string
}

// Position is the single open long position tracked by the bot.
// Invariant: StopLoss < EntryPrice < TakeProfit and
// SizeBase = SizeUSD / EntryPrice (before lot rounding).
type Position struct {
	Instrument string    `json:"instrument"`
	Side       SideType  `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	SizeBase   float64   `json:"size_base"`
	SizeUSD    float64   `json:"size_usd"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	OpenedAt   time.Time `json:"opened_at"`
}

func (p Position) String() string {
	return fmt.Sprintf("%s LONG %.6f @ %.4f (sl %.4f, tp %.4f)",
		p.Instrument, p.SizeBase, p.EntryPrice, p.StopLoss, p.TakeProfit)
}

// Trade is a closed position record. Immutable once written.
type Trade struct {
	Instrument string     `json:"instrument"`
	Side       SideType   `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	SizeBase   float64    `json:"size_base"`
	SizeUSD    float64    `json:"size_usd"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   time.Time  `json:"closed_at"`
	ExitReason ExitReason `json:"exit_reason"`
	PnLUSD     float64    `json:"pnl_usd"`
}

func (t Trade) String() string {
	return fmt.Sprintf("%s LONG %.6f in %.4f out %.4f (%s) pnl %.2f USD",
		t.Instrument, t.SizeBase, t.EntryPrice, t.ExitPrice, t.ExitReason, t.PnLUSD)
}

// AccountSnapshot is the venue account state; may be stale up to one tick.
type AccountSnapshot struct {
	EquityUSD         float64
	FreeCollateralUSD float64
}
