package coins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	symbolpkg "ohlcvsync/internal/pkg/symbol"
)

// SymbolProvider 币种来源接口，返回 BASE/QUOTE 形式的交易对。
type SymbolProvider interface {
	List(ctx context.Context) ([]string, error)
	Name() string
}

// NormalizeSymbols 标准化币种列表：去重、转大写；裸 base（如 BTC）补上 defaultQuote。
func NormalizeSymbols(symbols []string, defaultQuote string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, errors.New("symbol list is empty")
	}
	defaultQuote = strings.ToUpper(strings.TrimSpace(defaultQuote))
	if defaultQuote == "" {
		defaultQuote = "USDT"
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		norm := symbolpkg.Normalize(s)
		if norm == "" {
			norm = symbolpkg.Symbol{Base: s, Quote: defaultQuote}.Internal()
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	if len(out) == 0 {
		return nil, errors.New("symbol list is empty after normalization")
	}
	return out, nil
}

// DefaultSymbolProvider 默认实现：静态列表
type DefaultSymbolProvider struct {
	symbols []string
	quote   string
}

func NewDefaultProvider(symbols []string, quote string) *DefaultSymbolProvider {
	return &DefaultSymbolProvider{symbols: symbols, quote: quote}
}

func (p *DefaultSymbolProvider) Name() string { return "static" }

func (p *DefaultSymbolProvider) List(_ context.Context) ([]string, error) {
	return NormalizeSymbols(p.symbols, p.quote)
}

// SpotLister 由交易所数据源实现，用于按 quote 过滤全部现货交易对。
type SpotLister interface {
	ListSpotSymbols(ctx context.Context, quote string) ([]string, error)
}

// ExchangeProvider 从交易所的市场目录中筛选现货交易对，可选截断前 Max 个。
type ExchangeProvider struct {
	Lister  SpotLister
	Quote   string
	Max     int
	Exclude []string
}

func (p *ExchangeProvider) Name() string { return "exchange" }

func (p *ExchangeProvider) List(ctx context.Context) ([]string, error) {
	if p.Lister == nil {
		return nil, errors.New("exchange lister not configured")
	}
	all, err := p.Lister.ListSpotSymbols(ctx, p.Quote)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]struct{}, len(p.Exclude))
	for _, s := range p.Exclude {
		if norm := symbolpkg.Normalize(s); norm != "" {
			skip[norm] = struct{}{}
		}
	}
	out := make([]string, 0, len(all))
	for _, s := range all {
		if _, ok := skip[s]; ok {
			continue
		}
		out = append(out, s)
		if p.Max > 0 && len(out) >= p.Max {
			break
		}
	}
	return NormalizeSymbols(out, p.Quote)
}

// HTTPSymbolProvider 从自定义 API 拉取币种列表
type HTTPSymbolProvider struct {
	URL    string
	Quote  string
	Client *http.Client
}

func NewHTTPSymbolProvider(url, quote string) *HTTPSymbolProvider {
	return &HTTPSymbolProvider{URL: url, Quote: quote, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *HTTPSymbolProvider) Name() string { return "http" }

func (p *HTTPSymbolProvider) List(ctx context.Context) ([]string, error) {
	if p.URL == "" {
		return nil, errors.New("symbol API URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching symbols: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	doc, err := decodeWatchlist(body)
	if err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return filterSymbols(doc, p.Quote)
}
