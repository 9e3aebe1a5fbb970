package candles

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"ohlcvsync/internal/indicator"
	"ohlcvsync/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = int64(86400 * 1000)

func dailyCandles(start int64, closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{Timestamp: start + int64(i)*day, Open: c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 10 + float64(i)}
	}
	return out
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertCandlesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	batch := dailyCandles(1704067200000, 100, 102, 101)

	n, err := s.UpsertCandles(ctx, "BTC/USDT", "1d", batch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.UpsertCandles(ctx, "BTC/USDT", "1d", batch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, err := s.ListCandles(ctx, "BTC/USDT", "1d")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestUpsertCandlesDedupesOverlappingBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := int64(1704067200000)
	first := dailyCandles(base, 100, 102)
	// 同一时刻的毫秒抖动与重复页
	batch := append([]market.Candle{}, first...)
	batch = append(batch, market.Candle{Timestamp: base + 250, Close: 999})
	batch = append(batch, dailyCandles(base+day, 102, 105)...)

	n, err := s.UpsertCandles(ctx, "ETHUSDT", "1d", batch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	list, err := s.ListCandles(ctx, "ETH/USDT", "1d")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.Greater(t, list[i].Timestamp, list[i-1].Timestamp)
	}
	assert.Equal(t, 100.0, list[0].Close)
}

func TestUpsertSkipsRowsAlreadyStored(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := int64(1704067200000)
	_, err := s.UpsertCandles(ctx, "SOL/USDT", "1d", dailyCandles(base, 10))
	require.NoError(t, err)

	changed := dailyCandles(base, 55, 11)
	n, err := s.UpsertCandles(ctx, "SOL/USDT", "1d", changed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.ListCandles(ctx, "SOL/USDT", "1d")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 10.0, list[0].Close)
}

func TestUpsertKeepsGarbageRowsAsIs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := int64(1704067200000)
	batch := []market.Candle{
		{Timestamp: base, Open: 10, High: 9, Low: 12, Close: 11, Volume: 1},
		{Timestamp: base + day, Open: 11, High: 13, Low: 10, Close: math.NaN(), Volume: math.Inf(1)},
		{Timestamp: base + 2*day, Open: 12, High: 14, Low: 11, Close: 13, Volume: 3},
	}

	n, err := s.UpsertCandles(ctx, "BTC/USDT", "1d", batch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.ListCandles(ctx, "BTC/USDT", "1d")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 9.0, got[0].High)
	assert.Equal(t, 12.0, got[0].Low)
	assert.True(t, math.IsNaN(got[1].Close))
	assert.True(t, math.IsNaN(got[1].Volume))
	assert.Equal(t, 13.0, got[1].High)
	assert.Equal(t, 13.0, got[2].Close)

	latest, ok, err := s.LatestTimestamp(ctx, "BTC/USDT", "1d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base+2*day, latest)

	rows, err := indicator.Compute("BTC/USDT", got)
	require.NoError(t, err)
	_, err = s.ReplaceIndicators(ctx, "BTC/USDT", "1d", rows)
	require.NoError(t, err)
	loaded, err := s.LoadIndicators(ctx, "BTC/USDT", "1d", 0)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.True(t, math.IsNaN(loaded[1].Close))
	assert.Equal(t, 13.0, loaded[2].Close)
}

func TestLatestTimestampAndManifest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.LatestTimestamp(ctx, "BTC/USDT", "1d")
	require.NoError(t, err)
	assert.False(t, ok)

	base := int64(1704067200000)
	_, err = s.UpsertCandles(ctx, "BTC/USDT", "1d", dailyCandles(base, 1, 2, 3))
	require.NoError(t, err)

	ts, ok, err := s.LatestTimestamp(ctx, "BTC/USDT", "1d")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, base+2*day, ts)

	m, err := s.Manifest(ctx, "BTCUSDT", "1d")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", m.Symbol)
	assert.Equal(t, int64(3), m.Rows)
	assert.Equal(t, base, m.MinTime)
	assert.Equal(t, base+2*day, m.MaxTime)
	assert.Equal(t, filepath.Join(s.Root(), "BTCUSDT", "1d.db"), m.Path)
	assert.NotZero(t, m.LastSyncAt)
}

func TestQueryCandlesWindows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := int64(1704067200000)
	_, err := s.UpsertCandles(ctx, "BTC/USDT", "1d", dailyCandles(base, 1, 2, 3, 4, 5))
	require.NoError(t, err)

	latest, err := s.QueryCandles(ctx, "BTC/USDT", "1d", 0, 0, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, 4.0, latest[0].Close)
	assert.Equal(t, 5.0, latest[1].Close)

	window, err := s.QueryCandles(ctx, "BTC/USDT", "1d", base+3*day, base+day, 10)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, 2.0, window[0].Close)
}

func TestReplaceIndicatorsSwapsTable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := int64(1704067200000)
	series := dailyCandles(base, 100, 102, 101, 105, 107)
	_, err := s.UpsertCandles(ctx, "BTC/USDT", "1d", series)
	require.NoError(t, err)

	empty, err := s.LoadIndicators(ctx, "BTC/USDT", "1d", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	rows, err := indicator.Compute("btc", series)
	require.NoError(t, err)
	n, err := s.ReplaceIndicators(ctx, "BTC/USDT", "1d", rows)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// 第二次替换为更短的结果，旧行不能残留
	n, err = s.ReplaceIndicators(ctx, "BTC/USDT", "1d", rows[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	loaded, err := s.LoadIndicators(ctx, "BTC/USDT", "1d", 0)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "btc", loaded[0].Symbol)
	assert.False(t, loaded[0].DailyReturn.Valid)
	require.True(t, loaded[1].DailyReturn.Valid)
	assert.InDelta(t, 2.0, loaded[1].DailyReturn.Float64, 1e-9)
	assert.True(t, loaded[1].EMA10.Valid)
	assert.False(t, loaded[1].SMA10.Valid)

	_, err = s.ReplaceIndicators(ctx, "BTC/USDT", "1d", rows)
	require.NoError(t, err)
	tail, err := s.LoadIndicators(ctx, "BTC/USDT", "1d", 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, 105.0, tail[0].Close)
	assert.Equal(t, 107.0, tail[1].Close)
}

func TestSeriesListsDatabaseFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.UpsertCandles(ctx, "ETH/USDT", "1d", dailyCandles(1704067200000, 1))
	require.NoError(t, err)
	_, err = s.UpsertCandles(ctx, "BTC/USDT", "4h", dailyCandles(1704067200000, 1))
	require.NoError(t, err)
	_, err = s.UpsertCandles(ctx, "BTC/USDT", "1d", dailyCandles(1704067200000, 1))
	require.NoError(t, err)

	refs, err := s.Series()
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, SeriesRef{Key: "BTCUSDT", Timeframe: "1d", Path: filepath.Join(s.Root(), "BTCUSDT", "1d.db")}, refs[0])
	assert.Equal(t, "4h", refs[1].Timeframe)
	assert.Equal(t, "ETHUSDT", refs[2].Key)
}
