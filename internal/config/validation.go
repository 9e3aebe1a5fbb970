package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"ohlcvsync/internal/market"
	"ohlcvsync/internal/scheduler"
)

const maxPageLimit = 1000

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Sync.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Storage.DataRoot) == "" {
		return fmt.Errorf("storage.data_root is required")
	}
	if c.Analytics.Enabled && strings.TrimSpace(c.Analytics.Path) == "" {
		return fmt.Errorf("analytics.path is required when analytics.enabled=true")
	}
	if err := c.PowerBI.validate(c.Analytics.Enabled); err != nil {
		return err
	}
	if err := c.Schedule.validate(); err != nil {
		return err
	}
	if err := c.Symbols.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch a.Mode {
	case "once", "sync", "indicators", "serve":
		return nil
	default:
		return fmt.Errorf("app.mode must be one of once/sync/indicators/serve, got %q", a.Mode)
	}
}

func (e *ExchangeConfig) validate() error {
	if e.Name != "binance" {
		return fmt.Errorf("exchange.name only supports binance, got %q", e.Name)
	}
	switch e.Client {
	case "sdk", "rest":
	default:
		return fmt.Errorf("exchange.client must be sdk or rest, got %q", e.Client)
	}
	if _, err := url.ParseRequestURI(e.RESTBaseURL); err != nil {
		return fmt.Errorf("exchange.rest_base_url invalid: %w", err)
	}
	if e.Proxy.Enabled {
		if e.Proxy.RESTURL == "" {
			return fmt.Errorf("exchange.proxy.rest_url is required when proxy is enabled")
		}
		if _, err := url.Parse(e.Proxy.RESTURL); err != nil {
			return fmt.Errorf("exchange.proxy.rest_url invalid: %w", err)
		}
	}
	return nil
}

func (s *SyncConfig) validate() error {
	if _, err := market.ParseTimeframe(s.Timeframe); err != nil {
		return fmt.Errorf("sync.timeframe: %w", err)
	}
	if s.PageLimit <= 0 || s.PageLimit > maxPageLimit {
		return fmt.Errorf("sync.page_limit must be in (0, %d], got %d", maxPageLimit, s.PageLimit)
	}
	if s.MaxPages < 0 {
		return fmt.Errorf("sync.max_pages must be >= 0")
	}
	if s.RateLimitPerMin < 0 {
		return fmt.Errorf("sync.rate_limit_per_min must be >= 0")
	}
	if s.Concurrency <= 0 {
		return fmt.Errorf("sync.concurrency must be > 0")
	}
	return nil
}

func (p *PowerBIConfig) validate(analyticsEnabled bool) error {
	if !p.Enabled {
		return nil
	}
	if !analyticsEnabled {
		return fmt.Errorf("powerbi.enabled requires analytics.enabled")
	}
	missing := make([]string, 0, 5)
	for name, val := range map[string]string{
		"tenant_id":     p.TenantID,
		"client_id":     p.ClientID,
		"client_secret": p.ClientSecret,
		"group_id":      p.GroupID,
		"dataset_id":    p.DatasetID,
	} {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("powerbi.enabled=true but missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (s *ScheduleConfig) validate() error {
	if s.OffsetSeconds < 0 {
		return fmt.Errorf("schedule.offset_seconds must be >= 0")
	}
	if s.Cron != "" {
		return scheduler.ValidateCron(s.Cron)
	}
	return nil
}

func (s *SymbolsConfig) validate() error {
	switch s.Provider {
	case "static":
		if len(s.List) == 0 {
			return fmt.Errorf("symbols.list is required for provider=static")
		}
	case "file":
		if strings.TrimSpace(s.File) == "" {
			return fmt.Errorf("symbols.file is required for provider=file")
		}
	case "exchange":
	case "http":
		if _, err := url.ParseRequestURI(s.URL); err != nil {
			return fmt.Errorf("symbols.url invalid: %w", err)
		}
	default:
		return fmt.Errorf("symbols.provider must be static/file/exchange/http, got %q", s.Provider)
	}
	if s.Max < 0 {
		return fmt.Errorf("symbols.max must be >= 0")
	}
	return nil
}
