package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"ohlcvsync/internal/market"
	"ohlcvsync/internal/pkg/circuit"
	symbolpkg "ohlcvsync/internal/pkg/symbol"
	"ohlcvsync/internal/scheduler"

	"github.com/tidwall/gjson"
)

// RESTSource 直接请求 /api/v3/klines，适用于自建镜像或代理网关（响应格式与 Binance 一致）。
type RESTSource struct {
	cfg     Config
	client  *http.Client
	breaker *circuit.CircuitBreaker
}

func NewRESTSource(cfg Config) (*RESTSource, error) {
	final := cfg.withDefaults()
	httpClient, err := final.httpClient()
	if err != nil {
		return nil, err
	}
	return &RESTSource{
		cfg:     final,
		client:  httpClient,
		breaker: circuit.NewCircuitBreaker("binance-rest", final.BreakerThreshold, final.BreakerTimeout),
	}, nil
}

func (r *RESTSource) Name() string { return "binance-rest" }

func (r *RESTSource) Fetch(ctx context.Context, req market.FetchRequest) ([]market.Candle, error) {
	symbol := symbolpkg.Binance.ToExchange(req.Symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	tf, err := market.ParseTimeframe(req.Interval)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(r.cfg.RESTBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid rest base url: %w", err)
	}
	u.Path = "/api/v3/klines"
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("interval", tf.SourceInterval)
	q.Set("limit", strconv.Itoa(clampLimit(req.Limit)))
	if req.Start > 0 {
		q.Set("startTime", strconv.FormatInt(req.Start, 10))
	}
	u.RawQuery = q.Encode()

	var body []byte
	err = r.breaker.Do(func() error {
		var callErr error
		body, callErr = r.get(ctx, u.String())
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("binance-rest %s: %w", symbol, err)
	}
	out, err := parseKlines(body)
	if err != nil {
		return nil, fmt.Errorf("binance-rest %s: %w", symbol, err)
	}
	if r.cfg.DropUnclosed {
		out = scheduler.DropUnclosedKline(out, tf)
	}
	return out, nil
}

func (r *RESTSource) get(ctx context.Context, rawURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		if msg := gjson.GetBytes(body, "msg").String(); msg != "" {
			return nil, fmt.Errorf("status %d code=%d msg=%s", resp.StatusCode, gjson.GetBytes(body, "code").Int(), msg)
		}
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}

// parseKlines 解析 [[openTime,"open","high","low","close","volume",closeTime,...], ...]。
func parseKlines(body []byte) ([]market.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid kline payload")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, fmt.Errorf("unexpected kline payload: %s", truncate(root.Raw, 120))
	}
	rows := root.Array()
	out := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		cols := row.Array()
		if len(cols) < 6 {
			continue
		}
		out = append(out, market.Candle{
			Timestamp: cols[0].Int(),
			Open:      parseFloat(cols[1].String()),
			High:      parseFloat(cols[2].String()),
			Low:       parseFloat(cols[3].String()),
			Close:     parseFloat(cols[4].String()),
			Volume:    parseFloat(cols[5].String()),
		})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
