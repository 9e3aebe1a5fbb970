package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogPath      = "data/logs/ohlcvsync.log"
	defaultAppMode         = "once"
	defaultExchangeName    = "binance"
	defaultExchangeClient  = "sdk"
	defaultExchangeREST    = "https://api.binance.com"
	defaultExchangeTimeout = 15
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30
	defaultSyncTimeframe   = "1d"
	defaultSyncPageLimit   = 1000
	defaultSyncRatePerMin  = 600
	defaultSyncConcurrency = 1
	defaultDataRoot        = "data/ohlcv"
	defaultAnalyticsPath   = "data/analytics.db"
	defaultScheduleOffset  = 60
	defaultHTTPAddr        = ":9991"
	defaultSymbolsProvider = "static"
	defaultSymbolsQuote    = "USDT"
	defaultPowerBITimeout  = 30
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Sync.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Indicators.applyDefaults(keys)
	c.Analytics.applyDefaults(keys)
	c.PowerBI.applyDefaults(keys)
	c.Schedule.applyDefaults(keys)
	c.HTTP.applyDefaults(keys)
	c.Symbols.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.mode", &a.Mode, defaultAppMode),
	)
	a.Mode = strings.ToLower(strings.TrimSpace(a.Mode))
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	e.Proxy.normalize()
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.name", &e.Name, defaultExchangeName),
		stringFieldDefault("exchange.client", &e.Client, defaultExchangeClient),
		stringFieldDefault("exchange.rest_base_url", &e.RESTBaseURL, defaultExchangeREST),
		intFieldDefault("exchange.timeout_seconds", &e.TimeoutSeconds, defaultExchangeTimeout),
		intFieldDefault("exchange.breaker_threshold", &e.BreakerThreshold, defaultBreakerFailures),
		intFieldDefault("exchange.breaker_timeout_seconds", &e.BreakerTimeoutSeconds, defaultBreakerTimeout),
		boolFieldDefault("exchange.drop_unclosed", &e.DropUnclosed, true),
	)
	e.Name = strings.ToLower(strings.TrimSpace(e.Name))
	e.Client = strings.ToLower(strings.TrimSpace(e.Client))
}

func (s *SyncConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("sync.timeframe", &s.Timeframe, defaultSyncTimeframe),
		intFieldDefault("sync.page_limit", &s.PageLimit, defaultSyncPageLimit),
		intFieldDefault("sync.rate_limit_per_min", &s.RateLimitPerMin, defaultSyncRatePerMin),
		intFieldDefault("sync.concurrency", &s.Concurrency, defaultSyncConcurrency),
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys, stringFieldDefault("storage.data_root", &s.DataRoot, defaultDataRoot))
}

func (i *IndicatorConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys, boolFieldDefault("indicators.enabled", &i.Enabled, true))
}

func (a *AnalyticsConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("analytics.enabled", &a.Enabled, true),
		stringFieldDefault("analytics.path", &a.Path, defaultAnalyticsPath),
	)
}

func (p *PowerBIConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys, intFieldDefault("powerbi.timeout_seconds", &p.TimeoutSeconds, defaultPowerBITimeout))
	p.TenantID = strings.TrimSpace(p.TenantID)
	p.ClientID = strings.TrimSpace(p.ClientID)
	p.GroupID = strings.TrimSpace(p.GroupID)
	p.DatasetID = strings.TrimSpace(p.DatasetID)
}

func (s *ScheduleConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "schedule.offset_seconds",
			need:  func() bool { return s.OffsetSeconds == 0 },
			apply: func() { s.OffsetSeconds = defaultScheduleOffset },
		},
		boolFieldDefault("schedule.run_immediately", &s.RunImmediately, true),
	)
	s.Cron = strings.TrimSpace(s.Cron)
}

func (h *HTTPConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("http.enabled", &h.Enabled, true),
		stringFieldDefault("http.addr", &h.Addr, defaultHTTPAddr),
	)
}

func (s *SymbolsConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("symbols.provider", &s.Provider, defaultSymbolsProvider),
		stringFieldDefault("symbols.quote", &s.Quote, defaultSymbolsQuote),
	)
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	s.Quote = strings.ToUpper(strings.TrimSpace(s.Quote))
	s.List = normalizeList(s.List)
	s.Exclude = normalizeList(s.Exclude)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func normalizeList(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, id := range items {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
