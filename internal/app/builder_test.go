package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ohlcvsync/internal/coins"
	"ohlcvsync/internal/config"
	"ohlcvsync/internal/market"
	"ohlcvsync/internal/store/analytics"
	"ohlcvsync/internal/store/candles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seriesSource struct{ candles []market.Candle }

func (s seriesSource) Name() string { return "fixture" }

func (s seriesSource) Fetch(_ context.Context, req market.FetchRequest) ([]market.Candle, error) {
	var out []market.Candle
	for _, c := range s.candles {
		if c.Timestamp < req.Start {
			continue
		}
		out = append(out, c)
		if len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func TestBuildSymbolProvider(t *testing.T) {
	p, err := buildSymbolProvider(config.SymbolsConfig{List: []string{"btc"}, Quote: "USDT"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "static", p.Name())

	watch := filepath.Join(t.TempDir(), "symbols.yaml")
	require.NoError(t, os.WriteFile(watch, []byte("symbols: [BTC]\n"), 0o644))
	p, err = buildSymbolProvider(config.SymbolsConfig{Provider: "file", File: watch, Quote: "USDT"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &coins.Watchlist{}, p)

	_, err = buildSymbolProvider(config.SymbolsConfig{Provider: "file", File: filepath.Join(t.TempDir(), "none.yaml")}, nil)
	assert.Error(t, err)

	p, err = buildSymbolProvider(config.SymbolsConfig{Provider: "HTTP", URL: "http://127.0.0.1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http", p.Name())

	_, err = buildSymbolProvider(config.SymbolsConfig{Provider: "exchange"}, nil)
	assert.Error(t, err)

	_, err = buildSymbolProvider(config.SymbolsConfig{Provider: "ftp"}, nil)
	assert.Error(t, err)
}

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		App:        config.AppConfig{Mode: mode, LogLevel: "info"},
		Exchange:   config.ExchangeConfig{Name: "binance"},
		Sync:       config.SyncConfig{Timeframe: "1d", PageLimit: 2, Concurrency: 1},
		Storage:    config.StorageConfig{DataRoot: filepath.Join(dir, "ohlcv")},
		Indicators: config.IndicatorConfig{Enabled: true},
		Analytics:  config.AnalyticsConfig{Enabled: true, Path: filepath.Join(dir, "analytics.db")},
		Symbols:    config.SymbolsConfig{Provider: "static", List: []string{"BTC", "ETH/USDT"}, Quote: "USDT"},
	}
}

func fixtureCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		px := 100 + float64(i)
		out[i] = market.Candle{Timestamp: 1704067200000 + int64(i)*86_400_000, Open: px, High: px + 1, Low: px - 1, Close: px, Volume: 10}
	}
	return out
}

func TestAppOnceEndToEnd(t *testing.T) {
	cfg := testConfig(t, ModeOnce)
	src := seriesSource{candles: fixtureCandles(5)}

	app, err := NewAppBuilder(cfg, WithCandleSource(src, nil)).Build(context.Background())
	require.NoError(t, err)
	assert.Nil(t, app.server)
	require.NoError(t, app.Run(context.Background()))

	sum := app.pipeline.Last()
	require.NotNil(t, sum)
	assert.Equal(t, 10, sum.Inserted())
	assert.Empty(t, sum.Failed())
	assert.Equal(t, 10, sum.Merged)

	store, err := candles.NewStore(cfg.Storage.DataRoot)
	require.NoError(t, err)
	defer store.Close()
	ts, ok, err := store.LatestTimestamp(context.Background(), "ETH/USDT", "1d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1704067200000+4*86_400_000), ts)

	an, err := analytics.NewStore(cfg.Analytics.Path)
	require.NoError(t, err)
	defer an.Close()
	count, err := an.CountMerged(context.Background(), "1d")
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)
	merged, err := an.MergedSymbols(context.Background(), "1d")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, merged)
	runs, err := an.ListSyncRuns(context.Background(), "BTC/USDT", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestAppSecondRunInsertsNothing(t *testing.T) {
	cfg := testConfig(t, ModeSync)
	cfg.Analytics.Enabled = false
	src := seriesSource{candles: fixtureCandles(3)}

	first, err := NewAppBuilder(cfg, WithCandleSource(src, nil)).Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, first.Run(context.Background()))
	assert.Equal(t, 6, first.pipeline.Last().Inserted())

	second, err := NewAppBuilder(cfg, WithCandleSource(src, nil)).Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, second.Run(context.Background()))
	assert.Zero(t, second.pipeline.Last().Inserted())
	assert.Nil(t, second.pipeline.Last().Indicators)
}

func TestServeModeBuildsAPIServer(t *testing.T) {
	cfg := testConfig(t, ModeServe)
	cfg.HTTP = config.HTTPConfig{Enabled: true, Addr: "127.0.0.1:0"}

	app, err := NewAppBuilder(cfg, WithCandleSource(seriesSource{}, nil)).Build(context.Background())
	require.NoError(t, err)
	defer app.Close()
	require.NotNil(t, app.server)
	assert.Equal(t, "127.0.0.1:0", app.Summary.HTTPAddr)
	assert.Contains(t, app.Summary.Schedule, "aligned 1d")
}
