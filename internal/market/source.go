package market

import "context"

// FetchRequest 描述一次远端 K 线请求。
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    int64 // Unix ms，数据源按 >= Start 返回（也可能包含 Start 本身）
	Limit    int
}

// CandleSource 统一不同交易所/数据源的拉取行为，返回按时间升序的 K 线。
type CandleSource interface {
	Fetch(ctx context.Context, req FetchRequest) ([]Candle, error)
	Name() string
}
