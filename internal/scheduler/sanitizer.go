package scheduler

import (
	"time"

	"ohlcvsync/internal/market"
)

const DefaultKlineGrace = 10 * time.Second

// DropUnclosedKline drops the last element if its bar is still in progress.
// Binance returns the current, not-yet-closed candle as the last kline; storing it would
// move the cursor past a bar that is never refreshed.
func DropUnclosedKline(klines []market.Candle, tf market.Timeframe) []market.Candle {
	return dropUnclosedKlineAt(klines, tf, time.Now().UTC(), DefaultKlineGrace)
}

func dropUnclosedKlineAt(klines []market.Candle, tf market.Timeframe, now time.Time, grace time.Duration) []market.Candle {
	if len(klines) == 0 || tf.Duration <= 0 {
		return klines
	}
	last := klines[len(klines)-1]
	if last.Timestamp <= 0 {
		return klines
	}
	if !tf.BarClosed(last.Timestamp, now, grace) {
		return klines[:len(klines)-1]
	}
	return klines
}
