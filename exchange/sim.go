// Package exchange provides venue client implementations: the dYdX
// indexer client in the dydx subpackage and a simulated venue for
// paper trading.
package exchange

import (
	"context"
	"sync"

	"github.com/volbreak/volbreak/core"
)

// SimVenue is the simulation VenueClient. Market data is delegated to a
// real feeder so the strategy sees live candles; the account is
// simulated from a configured initial equity and moves with realized
// PnL, so the risk gate behaves as it would in live mode. Order
// submission is refused: in simulation, fills are synthesized by the
// order manager and never reach a venue.
type SimVenue struct {
	core.Feeder

	mu           sync.Mutex
	equity       float64
	lockedMargin float64
	log          core.Logger
}

func NewSimVenue(feeder core.Feeder, initialEquityUSD float64, log core.Logger) *SimVenue {
	log.Infof("simulation venue: initial equity %.2f USD", initialEquityUSD)
	return &SimVenue{
		Feeder: feeder,
		equity: initialEquityUSD,
		log:    log.WithField("component", "sim"),
	}
}

// Account implements core.Broker with the simulated balances.
func (s *SimVenue) Account(ctx context.Context) (core.AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.AccountSnapshot{
		EquityUSD:         s.equity,
		FreeCollateralUSD: s.equity - s.lockedMargin,
	}, nil
}

// PlaceMarketOrder always fails: simulation never submits.
func (s *SimVenue) PlaceMarketOrder(ctx context.Context, instrument string, side core.SideType, sizeBase float64, clientID string) (core.Fill, error) {
	return core.Fill{}, core.ErrSimulatedSubmission
}

// CancelOrder always fails: simulation never submits.
func (s *SimVenue) CancelOrder(ctx context.Context, clientID string) error {
	return core.ErrSimulatedSubmission
}

// LockMargin reserves collateral for an opened position.
func (s *SimVenue) LockMargin(usd float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockedMargin += usd
}

// ReleaseMargin frees collateral and applies the realized PnL of a
// closed position.
func (s *SimVenue) ReleaseMargin(usd float64, pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockedMargin -= usd
	if s.lockedMargin < 0 {
		s.lockedMargin = 0
	}
	s.equity += pnl
	s.log.Debugf("simulated equity %.2f USD (locked %.2f USD)", s.equity, s.lockedMargin)
}
