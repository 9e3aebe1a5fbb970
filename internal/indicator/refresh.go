package indicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ohlcvsync/internal/logger"
	"ohlcvsync/internal/market"
)

// SeriesStore 提供指标计算所需的读写能力。
type SeriesStore interface {
	ListCandles(ctx context.Context, symbol, timeframe string) ([]market.Candle, error)
	ReplaceIndicators(ctx context.Context, symbol, timeframe string, rows []Row) (int, error)
}

// Result 是单个 symbol 的指标刷新结果。
type Result struct {
	Symbol   string
	Rows     int
	Err      error
	Duration time.Duration
}

// Refresher 逐个 symbol 读取全量 K 线、计算指标并整表替换。
type Refresher struct {
	store     SeriesStore
	timeframe string
}

func NewRefresher(store SeriesStore, timeframe string) *Refresher {
	return &Refresher{store: store, timeframe: timeframe}
}

// Refresh 刷新单个 symbol；空序列返回 ErrNoCandles。
func (r *Refresher) Refresh(ctx context.Context, symbol string) (res Result) {
	start := time.Now()
	res = Result{Symbol: symbol}
	defer func() { res.Duration = time.Since(start) }()

	candles, err := r.store.ListCandles(ctx, symbol, r.timeframe)
	if err != nil {
		res.Err = fmt.Errorf("读取 K 线失败: %w", err)
		return res
	}
	if !market.Candles(candles).Sorted() {
		res.Err = fmt.Errorf("%s %s K 线未按时间升序", symbol, r.timeframe)
		return res
	}
	rows, err := Compute(symbol, candles)
	if err != nil {
		res.Err = err
		return res
	}
	n, err := r.store.ReplaceIndicators(ctx, symbol, r.timeframe, rows)
	if err != nil {
		res.Err = fmt.Errorf("写入指标失败: %w", err)
		return res
	}
	res.Rows = n
	return res
}

// RefreshAll 依次刷新所有 symbol；单个失败只记录日志。ctx 取消时提前返回。
func (r *Refresher) RefreshAll(ctx context.Context, symbols []string) ([]Result, error) {
	out := make([]Result, 0, len(symbols))
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res := r.Refresh(ctx, sym)
		switch {
		case errors.Is(res.Err, ErrNoCandles):
			logger.Warnw("indicator skipped: no candles", "symbol", sym, "timeframe", r.timeframe)
		case res.Err != nil:
			logger.Errorw("indicator refresh failed", "symbol", sym, "timeframe", r.timeframe, "error", res.Err)
		default:
			logger.Infow("indicator refreshed", "symbol", sym, "timeframe", r.timeframe, "rows", res.Rows)
		}
		out = append(out, res)
	}
	return out, nil
}
