package core

import "errors"

var (
	ErrNoPosition           = errors.New("no open position")
	ErrPositionExists       = errors.New("position already open")
	ErrInsufficientHistory  = errors.New("insufficient candle history")
	ErrEntryRejected        = errors.New("entry rejected by risk gate")
	ErrOrderTimeout         = errors.New("order fill confirmation timed out")
	ErrInvalidSnapshot      = errors.New("invalid candle snapshot")
	ErrInvalidTimeframe     = errors.New("invalid timeframe")
	ErrOutOfOrderTrade      = errors.New("trade timestamp out of order")
	ErrSimulatedSubmission  = errors.New("order submission disabled in simulation")
	ErrCircuitBrokenAtStart = errors.New("circuit breaker tripped at start")
)
