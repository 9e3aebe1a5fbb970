package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimestamp(t *testing.T) {
	assert.Equal(t, int64(1704067200000), NormalizeTimestamp(1704067200999))
	assert.Equal(t, int64(1704067200000), NormalizeTimestamp(1704067200000))
	assert.Equal(t, int64(-1000), NormalizeTimestamp(-1))
}

func TestFormatAndParseTimestamp(t *testing.T) {
	ms := int64(1704153600000)
	assert.Equal(t, "2024-01-02 00:00:00", FormatTimestamp(ms))

	got, err := ParseTimestamp("2024-01-02 00:00:00")
	require.NoError(t, err)
	assert.Equal(t, ms, got)

	got, err = ParseTimestamp("2024-01-02T08:00:00+08:00")
	require.NoError(t, err)
	assert.Equal(t, ms, got)

	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 7D ")
	require.NoError(t, err)
	assert.Equal(t, "1w", tf.Key)
	assert.Equal(t, int64(7*86_400_000), tf.Millis())

	_, err = ParseTimeframe("2h")
	assert.Error(t, err)
	assert.Contains(t, SupportedTimeframes(), "1d")
}

func TestBarClosed(t *testing.T) {
	tf, _ := ParseTimeframe("1h")
	open := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.False(t, tf.BarClosed(open.UnixMilli(), open.Add(59*time.Minute), 0))
	assert.True(t, tf.BarClosed(open.UnixMilli(), open.Add(time.Hour), 0))
	assert.False(t, tf.BarClosed(open.UnixMilli(), open.Add(time.Hour), 5*time.Second))
}

func TestCandlesHelpers(t *testing.T) {
	cs := Candles{{Timestamp: 1, Close: 10, Volume: 1}, {Timestamp: 2, Close: 11, Volume: 2}}
	assert.True(t, cs.Sorted())
	assert.Equal(t, []float64{10, 11}, cs.Closes())
	assert.Equal(t, []float64{1, 2}, cs.Volumes())

	cs = append(cs, Candle{Timestamp: 2})
	assert.False(t, cs.Sorted())
	assert.Equal(t, "-", Candle{}.TimeString())
	assert.Equal(t, "2024-01-01 00:00Z", Candle{Timestamp: 1704067200000}.TimeString())
}
