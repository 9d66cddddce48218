package dydx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

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

func TestResolutions_CoverEveryTimeframe(t *testing.T) {
	want := map[core.Timeframe]string{
		core.Timeframe1m:  "1MIN",
		core.Timeframe5m:  "5MINS",
		core.Timeframe15m: "15MINS",
		core.Timeframe30m: "30MINS",
		core.Timeframe1h:  "1HOUR",
		core.Timeframe4h:  "4HOURS",
		core.Timeframe1d:  "1DAY",
	}
	require.Equal(t, want, resolutions)
}

func TestClient_Candles(t *testing.T) {
	var gotPath, gotResolution, gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotResolution = r.URL.Query().Get("resolution")
		gotLimit = r.URL.Query().Get("limit")

		// The indexer returns newest first, string-typed fields.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candles":[
			{"startedAt":"2026-03-10T12:10:00Z","open":"101","high":"102","low":"100","close":"101.5","baseTokenVolume":"900"},
			{"startedAt":"2026-03-10T12:05:00Z","open":"100","high":"101","low":"99","close":"101","baseTokenVolume":"1200"},
			{"startedAt":"2026-03-10T12:00:00Z","open":"99","high":"100","low":"98","close":"100","baseTokenVolume":"1000"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(Config{RESTURL: server.URL}, testLogger(t))
	candles, err := client.Candles(context.Background(), "ETH-USD", core.Timeframe5m, 3)
	require.NoError(t, err)

	require.Equal(t, "/v4/candles/perpetualMarkets/ETH-USD", gotPath)
	require.Equal(t, "5MINS", gotResolution)
	require.Equal(t, "3", gotLimit)

	require.Len(t, candles, 3)
	for i := 1; i < len(candles); i++ {
		require.True(t, candles[i-1].Time.Before(candles[i].Time))
	}
	require.True(t, candles[0].Complete)
	require.True(t, candles[1].Complete)
	require.False(t, candles[2].Complete)

	require.Equal(t, 99.0, candles[0].Open)
	require.Equal(t, 1000.0, candles[0].Volume)
	require.Equal(t, core.Timeframe5m, candles[0].Timeframe)
}

func TestClient_Candles_ClampsLimitToIndexerCap(t *testing.T) {
	var gotLimit string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candles":[]}`))
	}))
	defer server.Close()

	client := NewClient(Config{RESTURL: server.URL}, testLogger(t))
	_, err := client.Candles(context.Background(), "ETH-USD", core.Timeframe5m, 500)
	require.NoError(t, err)
	require.Equal(t, "100", gotLimit)
}

func TestClient_Candles_DropsMalformedEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candles":[
			{"startedAt":"2026-03-10T12:05:00Z","open":"not-a-number","high":"101","low":"99","close":"101","baseTokenVolume":"1200"},
			{"startedAt":"2026-03-10T12:00:00Z","open":"99","high":"100","low":"98","close":"100","baseTokenVolume":"1000"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(Config{RESTURL: server.URL}, testLogger(t))
	candles, err := client.Candles(context.Background(), "ETH-USD", core.Timeframe5m, 2)
	require.NoError(t, err)
	require.Len(t, candles, 1)
}

func TestClient_Candles_InvalidTimeframe(t *testing.T) {
	client := NewClient(Config{RESTURL: "http://127.0.0.1:0"}, testLogger(t))
	_, err := client.Candles(context.Background(), "ETH-USD", core.Timeframe("7m"), 10)
	require.ErrorIs(t, err, core.ErrInvalidTimeframe)
}

func TestClient_Account(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v4/addresses/dydx1abc/subaccountNumber/0", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"subaccount":{"equity":"1234.56","freeCollateral":"1000.10"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{RESTURL: server.URL, Address: "dydx1abc"}, testLogger(t))
	account, err := client.Account(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 1234.56, account.EquityUSD, 1e-9)
	require.InDelta(t, 1000.10, account.FreeCollateralUSD, 1e-9)
}

func TestClient_Account_BadPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"subaccount":{"equity":"oops","freeCollateral":"1"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{RESTURL: server.URL, Address: "dydx1abc"}, testLogger(t))
	_, err := client.Account(context.Background())
	require.Error(t, err)
}

func TestClient_PlaceMarketOrder_ThroughGateway(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/orders", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"filledPrice":101.05,"filledSize":0.99}`))
	}))
	defer gateway.Close()

	client := NewClient(Config{GatewayURL: gateway.URL}, testLogger(t))
	fill, err := client.PlaceMarketOrder(context.Background(), "ETH-USD", core.SideTypeBuy, 0.99, "client-1")
	require.NoError(t, err)
	require.InDelta(t, 101.05, fill.Price, 1e-9)
	require.InDelta(t, 0.99, fill.Size, 1e-9)
}

func TestClient_PlaceMarketOrder_NoGateway(t *testing.T) {
	client := NewClient(Config{}, testLogger(t))
	_, err := client.PlaceMarketOrder(context.Background(), "ETH-USD", core.SideTypeBuy, 1, "client-1")
	require.Error(t, err)
	require.Error(t, client.CancelOrder(context.Background(), "client-1"))
}
