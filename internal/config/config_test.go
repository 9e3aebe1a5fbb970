package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaultsAndIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "symbols.yaml", `
symbols:
  provider: static
  list: [BTC/USDT, ETH/USDT, " ", BTC/USDT]
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - symbols.yaml
sync:
  timeframe: 4h
  page_limit: 500
analytics:
  enabled: false
schedule:
  offset_seconds: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "once", cfg.App.Mode)
	assert.Equal(t, "binance", cfg.Exchange.Name)
	assert.Equal(t, "sdk", cfg.Exchange.Client)
	assert.Equal(t, "https://api.binance.com", cfg.Exchange.RESTBaseURL)
	assert.True(t, cfg.Exchange.DropUnclosed)
	assert.Equal(t, "4h", cfg.Sync.Timeframe)
	assert.Equal(t, 500, cfg.Sync.PageLimit)
	assert.Equal(t, 1, cfg.Sync.Concurrency)
	assert.True(t, cfg.Indicators.Enabled)
	assert.False(t, cfg.Analytics.Enabled)
	assert.Equal(t, 0, cfg.Schedule.OffsetSeconds)
	assert.True(t, cfg.Schedule.RunImmediately)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, cfg.Symbols.List)
	assert.Equal(t, "USDT", cfg.Symbols.Quote)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"page limit over cap": "symbols: {list: [BTC]}\nsync: {page_limit: 5000}\n",
		"unknown timeframe":   "symbols: {list: [BTC]}\nsync: {timeframe: 2h}\n",
		"static without list": "symbols: {provider: static}\n",
		"bad cron":            "symbols: {list: [BTC]}\nschedule: {cron: 'every day'}\n",
		"bad mode":            "symbols: {list: [BTC]}\napp: {mode: backfill}\n",
		"powerbi incomplete":  "symbols: {list: [BTC]}\npowerbi: {enabled: true, tenant_id: t}\n",
		"unknown client":      "symbols: {list: [BTC]}\nexchange: {client: ws}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestResolvePath(t *testing.T) {
	t.Setenv(PathEnv, "")
	assert.Equal(t, DefaultPath, ResolvePath(""))
	t.Setenv(PathEnv, "/etc/ohlcvsync.yaml")
	assert.Equal(t, "/etc/ohlcvsync.yaml", ResolvePath(" "))
	assert.Equal(t, "local.yaml", ResolvePath("local.yaml"))
}

func TestCronScheduleAccepted(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "symbols: {list: [BTC]}\nschedule: {cron: '0 5 0 * * *'}\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0 5 0 * * *", cfg.Schedule.Cron)
}
