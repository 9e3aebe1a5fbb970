package binance

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"ohlcvsync/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const klinePayload = `[
  [1704067200000,"42283.58","44184.10","42180.77","44179.55","27174.29903",1704153599999,"1169995137.47",1210658,"14331.53","617030000.15","0"],
  [1704153600000,"44179.55","45879.63","44148.34","44946.91","65146.40661",1704239999999,"2920023001.10",2063232,"33350.02","1494987264.51","0"]
]`

func newKlineServer(t *testing.T, seen *http.Request) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/klines":
			*seen = *r
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(klinePayload))
		case "/api/v3/exchangeInfo":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"timezone":"UTC","serverTime":1704153600000,"symbols":[
				{"symbol":"ETHUSDT","status":"TRADING","baseAsset":"ETH","quoteAsset":"USDT","isSpotTradingAllowed":true},
				{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","isSpotTradingAllowed":true},
				{"symbol":"LUNAUSDT","status":"BREAK","baseAsset":"LUNA","quoteAsset":"USDT","isSpotTradingAllowed":true},
				{"symbol":"ETHBTC","status":"TRADING","baseAsset":"ETH","quoteAsset":"BTC","isSpotTradingAllowed":true}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
		}
	}))
}

func TestSourceFetchParsesKlines(t *testing.T) {
	var seen http.Request
	srv := newKlineServer(t, &seen)
	defer srv.Close()

	src, err := New(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)

	out, err := src.Fetch(context.Background(), market.FetchRequest{
		Symbol:   "BTC/USDT",
		Interval: "1d",
		Start:    1704067200000,
		Limit:    500,
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1704067200000), out[0].Timestamp)
	assert.InDelta(t, 42283.58, out[0].Open, 1e-9)
	assert.InDelta(t, 44946.91, out[1].Close, 1e-9)
	assert.InDelta(t, 65146.40661, out[1].Volume, 1e-9)

	assert.Equal(t, "BTCUSDT", seen.URL.Query().Get("symbol"))
	assert.Equal(t, "1d", seen.URL.Query().Get("interval"))
	assert.Equal(t, "500", seen.URL.Query().Get("limit"))
	assert.Equal(t, "1704067200000", seen.URL.Query().Get("startTime"))
}

func TestSourceListSpotSymbolsFiltersQuoteAndStatus(t *testing.T) {
	var seen http.Request
	srv := newKlineServer(t, &seen)
	defer srv.Close()

	src, err := New(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)

	out, err := src.ListSpotSymbols(context.Background(), "usdt")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, out)
}

func TestRESTSourceFetch(t *testing.T) {
	var seen http.Request
	srv := newKlineServer(t, &seen)
	defer srv.Close()

	src, err := NewRESTSource(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)

	out, err := src.Fetch(context.Background(), market.FetchRequest{Symbol: "ETHUSDT", Interval: "1d", Limit: 5000})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.InDelta(t, 44179.55, out[0].Close, 1e-9)
	assert.Equal(t, "ETHUSDT", seen.URL.Query().Get("symbol"))
	assert.Equal(t, "1000", seen.URL.Query().Get("limit"))
	assert.Empty(t, seen.URL.Query().Get("startTime"))
}

func TestRESTSourceSurfacesExchangeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	src, err := NewRESTSource(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)

	_, err = src.Fetch(context.Background(), market.FetchRequest{Symbol: "NOPE/USDT", Interval: "1d", Limit: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol.")
}

func TestParseKlinesRejectsObjectPayload(t *testing.T) {
	_, err := parseKlines([]byte(`{"code":0}`))
	assert.Error(t, err)

	out, err := parseKlines([]byte(`[[1,"1","2","0.5","1.5"],[2,"1","2","0.5","1.5","10"]]`))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].Timestamp)
}

func TestParseKlinesKeepsUnparsableFieldAsNaN(t *testing.T) {
	out, err := parseKlines([]byte(`[[1704067200000,"1","2","0.5","n/a","10"],[1704153600000,"1.5","2","1","1.8",""]]`))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, math.IsNaN(out[0].Close))
	assert.InDelta(t, 2.0, out[0].High, 1e-9)
	assert.True(t, math.IsNaN(out[1].Volume))
	assert.InDelta(t, 1.8, out[1].Close, 1e-9)
}
