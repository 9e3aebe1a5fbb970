package ingest

import (
	"context"
	"fmt"

	"ohlcvsync/internal/logger"
	"ohlcvsync/internal/market"

	"golang.org/x/time/rate"
)

// MaxPageLimit 是单页请求上限（与 Binance klines 接口一致）。
const MaxPageLimit = 1000

// StopReason 记录分页循环结束的原因。
type StopReason string

const (
	StopSourceError StopReason = "source_error"
	StopEmptyPage   StopReason = "empty_page"
	StopOverlap     StopReason = "overlap"
	StopShortPage   StopReason = "short_page"
	StopMaxPages    StopReason = "max_pages"
)

// FetchLoop 从游标开始分页拉取，过滤重叠数据并累积结果。
type FetchLoop struct {
	Source   market.CandleSource
	Limit    int
	MaxPages int
	Limiter  *rate.Limiter
}

// FetchResult 是一次分页拉取的结果；Err 非空时 Candles 仍保留出错前已拉取的页。
type FetchResult struct {
	Candles []market.Candle
	Pages   int
	Since   int64
	Next    int64
	Stop    StopReason
	Err     error
}

func (l FetchLoop) limit() int {
	if l.Limit <= 0 || l.Limit > MaxPageLimit {
		return MaxPageLimit
	}
	return l.Limit
}

// Run 从 since 开始向前拉取 symbol 的新 K 线。
func (l FetchLoop) Run(ctx context.Context, symbol, interval string, since int64) FetchResult {
	res := FetchResult{Since: since, Next: since}
	if l.Source == nil {
		res.Stop = StopSourceError
		res.Err = fmt.Errorf("candle source 未配置")
		return res
	}
	limit := l.limit()
	for {
		if l.Limiter != nil {
			if err := l.Limiter.Wait(ctx); err != nil {
				res.Stop = StopSourceError
				res.Err = err
				return res
			}
		}
		page, err := l.Source.Fetch(ctx, market.FetchRequest{
			Symbol:   symbol,
			Interval: interval,
			Start:    res.Next,
			Limit:    limit,
		})
		if err != nil {
			res.Stop = StopSourceError
			res.Err = fmt.Errorf("%s 第 %d 页拉取失败: %w", l.Source.Name(), res.Pages+1, err)
			return res
		}
		res.Pages++
		if len(page) == 0 {
			res.Stop = StopEmptyPage
			return res
		}
		fresh := make([]market.Candle, 0, len(page))
		for _, c := range page {
			if c.Timestamp > res.Next {
				fresh = append(fresh, c)
			}
		}
		if len(fresh) == 0 {
			res.Stop = StopOverlap
			return res
		}
		res.Candles = append(res.Candles, fresh...)
		res.Next = fresh[len(fresh)-1].Timestamp + 1
		if len(page) < limit {
			res.Stop = StopShortPage
			return res
		}
		if l.MaxPages > 0 && res.Pages >= l.MaxPages {
			logger.Warnf("[sync] %s %s 达到 max_pages=%d，剩余数据留待下次同步", symbol, interval, l.MaxPages)
			res.Stop = StopMaxPages
			return res
		}
	}
}
