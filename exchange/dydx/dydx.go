// Package dydx implements the venue client against the dYdX v4
// indexer (testnet). Market data and account state come from the
// indexer REST and WebSocket APIs; order submission goes through a
// local trading gateway that owns the cosmos signing keys.
package dydx

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"github.com/volbreak/volbreak/core"
)

const (
	defaultRESTTimeout = 5 * time.Second

	// The indexer rejects candle requests for more than 100 bars.
	maxCandleLimit = 100

	DefaultTestnetREST = "https://indexer.v4testnet.dydx.exchange"
	DefaultTestnetWS   = "wss://indexer.v4testnet.dydx.exchange/v4/ws"
)

// resolutions translates the configuration timeframe vocabulary into
// the indexer's. Translation happens only at this boundary.
var resolutions = map[core.Timeframe]string{
	core.Timeframe1m:  "1MIN",
	core.Timeframe5m:  "5MINS",
	core.Timeframe15m: "15MINS",
	core.Timeframe30m: "30MINS",
	core.Timeframe1h:  "1HOUR",
	core.Timeframe4h:  "4HOURS",
	core.Timeframe1d:  "1DAY",
}

// Config holds the endpoints and subaccount identity.
type Config struct {
	RESTURL          string
	WSURL            string
	GatewayURL       string
	Address          string
	SubaccountNumber int
	RequestTimeout   time.Duration
}

// Client implements core.VenueClient against the dYdX v4 indexer.
// REST calls run behind a circuit breaker so a flapping indexer
// degrades to fast failures instead of stacking timeouts.
type Client struct {
	cfg     Config
	http    *resty.Client
	gateway *resty.Client
	breaker *gobreaker.CircuitBreaker
	log     core.Logger
}

func NewClient(cfg Config, log core.Logger) *Client {
	if cfg.RESTURL == "" {
		cfg.RESTURL = DefaultTestnetREST
	}
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultTestnetWS
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRESTTimeout
	}

	logger := log.WithField("component", "dydx")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dydx-indexer",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	client := &Client{
		cfg:     cfg,
		http:    resty.New().SetBaseURL(cfg.RESTURL).SetTimeout(cfg.RequestTimeout),
		breaker: breaker,
		log:     logger,
	}
	if cfg.GatewayURL != "" {
		client.gateway = resty.New().SetBaseURL(cfg.GatewayURL)
	}
	return client
}

type candleResponse struct {
	Candles []struct {
		StartedAt       time.Time `json:"startedAt"`
		Open            string    `json:"open"`
		High            string    `json:"high"`
		Low             string    `json:"low"`
		Close           string    `json:"close"`
		BaseTokenVolume string    `json:"baseTokenVolume"`
	} `json:"candles"`
}

// Candles fetches the most recent bars, oldest first. The last bar is
// the currently forming one and is marked incomplete.
func (c *Client) Candles(ctx context.Context, instrument string, timeframe core.Timeframe, limit int) ([]core.Candle, error) {
	resolution, ok := resolutions[timeframe]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidTimeframe, timeframe)
	}
	if limit <= 0 || limit > maxCandleLimit {
		limit = maxCandleLimit
	}

	var payload candleResponse
	err := c.execute(func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&payload).
			SetQueryParams(map[string]string{
				"resolution": resolution,
				"limit":      strconv.Itoa(limit),
			}).
			Get("/v4/candles/perpetualMarkets/" + instrument)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("candles request: %s", resp.Status())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]core.Candle, 0, len(payload.Candles))
	for _, raw := range payload.Candles {
		candle, err := parseCandle(instrument, timeframe, raw.StartedAt,
			raw.Open, raw.High, raw.Low, raw.Close, raw.BaseTokenVolume)
		if err != nil {
			c.log.WithError(err).Debug("dropped malformed candle")
			continue
		}
		candles = append(candles, candle)
	}

	// The indexer returns newest first.
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})
	for i := range candles {
		candles[i].Complete = i < len(candles)-1
	}
	return candles, nil
}

type subaccountResponse struct {
	Subaccount struct {
		Equity         string `json:"equity"`
		FreeCollateral string `json:"freeCollateral"`
	} `json:"subaccount"`
}

// Account fetches the subaccount equity and free collateral.
func (c *Client) Account(ctx context.Context) (core.AccountSnapshot, error) {
	var payload subaccountResponse
	err := c.execute(func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetResult(&payload).
			Get(fmt.Sprintf("/v4/addresses/%s/subaccountNumber/%d",
				c.cfg.Address, c.cfg.SubaccountNumber))
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("subaccount request: %s", resp.Status())
		}
		return nil
	})
	if err != nil {
		return core.AccountSnapshot{}, err
	}

	equity, err := strconv.ParseFloat(payload.Subaccount.Equity, 64)
	if err != nil {
		return core.AccountSnapshot{}, fmt.Errorf("parse equity: %w", err)
	}
	free, err := strconv.ParseFloat(payload.Subaccount.FreeCollateral, 64)
	if err != nil {
		return core.AccountSnapshot{}, fmt.Errorf("parse free collateral: %w", err)
	}
	return core.AccountSnapshot{EquityUSD: equity, FreeCollateralUSD: free}, nil
}

type gatewayOrderRequest struct {
	ClientID string  `json:"clientId"`
	Ticker   string  `json:"ticker"`
	Side     string  `json:"side"`
	Size     float64 `json:"size"`
}

type gatewayOrderResponse struct {
	FilledPrice float64 `json:"filledPrice"`
	FilledSize  float64 `json:"filledSize"`
}

// PlaceMarketOrder submits through the trading gateway and blocks until
// the gateway confirms the fill or ctx expires. The clientID is the
// idempotency key: the gateway must suppress duplicates.
func (c *Client) PlaceMarketOrder(ctx context.Context, instrument string, side core.SideType, sizeBase float64, clientID string) (core.Fill, error) {
	if c.gateway == nil {
		return core.Fill{}, fmt.Errorf("no trading gateway configured; live mode unavailable")
	}

	var payload gatewayOrderResponse
	resp, err := c.gateway.R().
		SetContext(ctx).
		SetBody(gatewayOrderRequest{
			ClientID: clientID,
			Ticker:   instrument,
			Side:     string(side),
			Size:     sizeBase,
		}).
		SetResult(&payload).
		Post("/orders")
	if err != nil {
		return core.Fill{}, err
	}
	if resp.IsError() {
		return core.Fill{}, fmt.Errorf("order submission: %s", resp.Status())
	}
	return core.Fill{Price: payload.FilledPrice, Size: payload.FilledSize}, nil
}

// CancelOrder is best-effort.
func (c *Client) CancelOrder(ctx context.Context, clientID string) error {
	if c.gateway == nil {
		return fmt.Errorf("no trading gateway configured")
	}
	resp, err := c.gateway.R().
		SetContext(ctx).
		Delete("/orders/" + clientID)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("order cancel: %s", resp.Status())
	}
	return nil
}

func (c *Client) execute(fn func() error) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

func parseCandle(instrument string, timeframe core.Timeframe, startedAt time.Time, open, high, low, closePrice, volume string) (core.Candle, error) {
	values := make([]float64, 5)
	for i, raw := range []string{open, high, low, closePrice, volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return core.Candle{}, fmt.Errorf("parse candle field %q: %w", raw, err)
		}
		values[i] = v
	}
	return core.Candle{
		Instrument: instrument,
		Timeframe:  timeframe,
		Time:       startedAt.UTC(),
		Open:       values[0],
		High:       values[1],
		Low:        values[2],
		Close:      values[3],
		Volume:     values[4],
	}, nil
}
