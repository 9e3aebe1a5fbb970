package binance

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultSpotREST = "https://api.binance.com"
	maxKlineLimit   = 1000
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration

	ProxyEnabled bool
	RESTProxyURL string

	// DropUnclosed 丢弃最后一根尚未收盘的 K 线。
	DropUnclosed bool

	BreakerThreshold int
	BreakerTimeout   time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = defaultSpotREST
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	if out.BreakerThreshold <= 0 {
		out.BreakerThreshold = 5
	}
	if out.BreakerTimeout <= 0 {
		out.BreakerTimeout = 30 * time.Second
	}
	return out
}

func (c Config) httpClient() (*http.Client, error) {
	httpClient := &http.Client{Timeout: c.HTTPTimeout}
	if !c.ProxyEnabled || c.RESTProxyURL == "" {
		return httpClient, nil
	}
	proxyURL, err := url.Parse(c.RESTProxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REST proxy url: %w", err)
	}
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok || baseTransport == nil {
		return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
	}
	transport := baseTransport.Clone()
	transport.Proxy = http.ProxyURL(proxyURL)
	httpClient.Transport = transport
	return httpClient, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxKlineLimit {
		return maxKlineLimit
	}
	return limit
}
