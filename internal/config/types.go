package config

import (
	"strings"
	"time"
)

// Config 是 ohlcvsync 的主配置载体。
type Config struct {
	App        AppConfig       `toml:"app"`
	Exchange   ExchangeConfig  `toml:"exchange"`
	Sync       SyncConfig      `toml:"sync"`
	Storage    StorageConfig   `toml:"storage"`
	Indicators IndicatorConfig `toml:"indicators"`
	Analytics  AnalyticsConfig `toml:"analytics"`
	PowerBI    PowerBIConfig   `toml:"powerbi"`
	Schedule   ScheduleConfig  `toml:"schedule"`
	HTTP       HTTPConfig      `toml:"http"`
	Symbols    SymbolsConfig   `toml:"symbols"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	// Mode: once | sync | indicators | serve
	Mode string `toml:"mode"`
}

type ExchangeConfig struct {
	Name string `toml:"name"`
	// Client: sdk 使用 go-binance；rest 直接请求 /api/v3/klines
	Client                string      `toml:"client"`
	RESTBaseURL           string      `toml:"rest_base_url"`
	TimeoutSeconds        int         `toml:"timeout_seconds"`
	DropUnclosed          bool        `toml:"drop_unclosed"`
	BreakerThreshold      int         `toml:"breaker_threshold"`
	BreakerTimeoutSeconds int         `toml:"breaker_timeout_seconds"`
	Proxy                 ProxyConfig `toml:"proxy"`
}

func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e ExchangeConfig) BreakerTimeout() time.Duration {
	return time.Duration(e.BreakerTimeoutSeconds) * time.Second
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
}

type SyncConfig struct {
	Timeframe       string `toml:"timeframe"`
	PageLimit       int    `toml:"page_limit"`
	MaxPages        int    `toml:"max_pages"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
	Concurrency     int    `toml:"concurrency"`
}

type StorageConfig struct {
	DataRoot string `toml:"data_root"`
}

type IndicatorConfig struct {
	Enabled bool `toml:"enabled"`
}

type AnalyticsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// PowerBIConfig 数据集刷新所需的 Azure AD 应用凭证。
type PowerBIConfig struct {
	Enabled        bool   `toml:"enabled"`
	TenantID       string `toml:"tenant_id"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	GroupID        string `toml:"group_id"`
	DatasetID      string `toml:"dataset_id"`
	Authority      string `toml:"authority"`
	APIBase        string `toml:"api_base"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ScheduleConfig struct {
	// Cron 非空时按 cron 触发，否则按周期收盘 + OffsetSeconds 对齐。
	Cron           string `toml:"cron"`
	OffsetSeconds  int    `toml:"offset_seconds"`
	RunImmediately bool   `toml:"run_immediately"`
}

func (s ScheduleConfig) Offset() time.Duration {
	return time.Duration(s.OffsetSeconds) * time.Second
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`

	// ChartPNG 开启后 chart?format=png 通过本机 Chrome 截图
	ChartPNG bool `toml:"chart_png"`
}

// SymbolsConfig 决定同步哪些交易对。
type SymbolsConfig struct {
	// Provider: static | file | exchange | http
	Provider string   `toml:"provider"`
	List     []string `toml:"list"`
	File     string   `toml:"file"`
	URL      string   `toml:"url"`
	Quote    string   `toml:"quote"`
	Max      int      `toml:"max"`
	Exclude  []string `toml:"exclude"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
