package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"ohlcvsync/internal/logger"
	"ohlcvsync/internal/market"
	"ohlcvsync/internal/pkg/circuit"
	symbolpkg "ohlcvsync/internal/pkg/symbol"
	"ohlcvsync/internal/scheduler"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

// Source 基于 go-binance SDK 的现货 K 线数据源，实现 market.CandleSource。
type Source struct {
	cfg     Config
	client  *binance.Client
	breaker *circuit.CircuitBreaker
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	httpClient, err := final.httpClient()
	if err != nil {
		return nil, err
	}
	client := binance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = httpClient
	return &Source{
		cfg:     final,
		client:  client,
		breaker: circuit.NewCircuitBreaker("binance-spot", final.BreakerThreshold, final.BreakerTimeout),
	}, nil
}

func (s *Source) Name() string { return "binance" }

func (s *Source) Fetch(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	symbol := symbolpkg.Binance.ToExchange(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	tf, err := market.ParseTimeframe(req.Interval)
	if err != nil {
		return nil, err
	}
	svc := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(tf.SourceInterval).
		Limit(clampLimit(req.Limit))
	if req.Start > 0 {
		svc = svc.StartTime(req.Start)
	}

	var kls []*binance.Kline
	err = s.breaker.Do(func() error {
		var callErr error
		kls, callErr = svc.Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, describeError(symbol, err)
	}

	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			Timestamp: kl.OpenTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
		})
	}
	if s.cfg.DropUnclosed {
		out = scheduler.DropUnclosedKline(out, tf)
	}
	return out, nil
}

// ListSpotSymbols 返回以 quote 计价、状态为 TRADING 的现货交易对（BTC/USDT 形式，已排序）。
func (s *Source) ListSpotSymbols(ctx context.Context, quote string) ([]string, error) {
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if quote == "" {
		quote = "USDT"
	}
	var info *binance.ExchangeInfo
	err := s.breaker.Do(func() error {
		var callErr error
		info, callErr = s.client.NewExchangeInfoService().Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, describeError("exchangeInfo", err)
	}
	out := make([]string, 0, len(info.Symbols))
	for _, sym := range info.Symbols {
		if !strings.EqualFold(sym.QuoteAsset, quote) {
			continue
		}
		if !sym.IsSpotTradingAllowed || !strings.EqualFold(sym.Status, "TRADING") {
			continue
		}
		out = append(out, symbolpkg.Symbol{Base: strings.ToUpper(sym.BaseAsset), Quote: quote}.Internal())
	}
	sort.Strings(out)
	logger.Debugf("binance exchangeInfo: %d spot symbols quoted in %s", len(out), quote)
	return out, nil
}

func describeError(target string, err error) error {
	if errors.Is(err, circuit.ErrOpen) {
		return fmt.Errorf("binance %s: %w", target, err)
	}
	if common.IsAPIError(err) {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("binance %s: api error code=%d msg=%s: %w", target, apiErr.Code, apiErr.Message, err)
		}
	}
	return fmt.Errorf("binance %s: %w", target, err)
}

// parseFloat 无法解析的字段记为 NaN（落库为 NULL），不用 0 冒充。
func parseFloat(v string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		logger.Warnf("binance kline 字段无法解析: %q", v)
		return math.NaN()
	}
	return d.InexactFloat64()
}
