package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ohlcvsync/internal/coins"
	"ohlcvsync/internal/config"
	"ohlcvsync/internal/gateway/binance"
	"ohlcvsync/internal/gateway/powerbi"
	"ohlcvsync/internal/indicator"
	"ohlcvsync/internal/ingest"
	"ohlcvsync/internal/logger"
	"ohlcvsync/internal/market"
	"ohlcvsync/internal/store/analytics"
	"ohlcvsync/internal/store/candles"
	"ohlcvsync/internal/transport/http/api"
)

type AppBuilder struct {
	cfg *config.Config

	sourceFn  func(config.ExchangeConfig) (market.CandleSource, coins.SpotLister, error)
	symbolsFn func(config.SymbolsConfig, coins.SpotLister) (coins.SymbolProvider, error)
}

type AppBuilderOption func(*AppBuilder)

// WithCandleSource 替换数据源（测试或自定义镜像）。
func WithCandleSource(src market.CandleSource, lister coins.SpotLister) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(config.ExchangeConfig) (market.CandleSource, coins.SpotLister, error) {
			return src, lister, nil
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		sourceFn:  buildCandleSource,
		symbolsFn: buildSymbolProvider,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func (b *AppBuilder) Build(ctx context.Context) (_ *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	source, lister, err := b.sourceFn(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("初始化数据源失败: %w", err)
	}
	provider, err := b.symbolsFn(cfg.Symbols, lister)
	if err != nil {
		return nil, err
	}

	app := &App{cfg: cfg}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	store, err := candles.NewStore(cfg.Storage.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("初始化 K 线存储失败: %w", err)
	}
	app.closers = append(app.closers, store.Close)

	var (
		recorder ingest.RunRecorder
		runs     api.RunLister
		merged   mergedWriter
	)
	if cfg.Analytics.Enabled {
		an, err := analytics.NewStore(cfg.Analytics.Path)
		if err != nil {
			return nil, fmt.Errorf("初始化分析库失败: %w", err)
		}
		app.closers = append(app.closers, an.Close)
		recorder, runs, merged = an, an, an
	}

	svc, err := ingest.NewService(ingest.ServiceConfig{
		Store:           store,
		Source:          source,
		Recorder:        recorder,
		Timeframe:       cfg.Sync.Timeframe,
		PageLimit:       cfg.Sync.PageLimit,
		MaxPages:        cfg.Sync.MaxPages,
		RateLimitPerMin: cfg.Sync.RateLimitPerMin,
		Concurrency:     cfg.Sync.Concurrency,
	})
	if err != nil {
		return nil, err
	}
	tf := svc.Timeframe().Key

	deps := pipelineDeps{
		Timeframe: tf,
		Symbols:   provider,
		Syncer:    svc,
		Reader:    store,
	}
	if cfg.Indicators.Enabled {
		deps.Refresher = indicator.NewRefresher(store, tf)
		deps.Merged = merged
	}
	if cfg.PowerBI.Enabled {
		client, err := powerbi.New(powerbiConfig(cfg.PowerBI))
		if err != nil {
			return nil, err
		}
		deps.BI = client
	}
	pipeline, err := newPipeline(deps)
	if err != nil {
		return nil, err
	}
	app.pipeline = pipeline
	app.timeframe = svc.Timeframe()

	if cfg.App.Mode == ModeServe && cfg.HTTP.Enabled {
		apiCfg := api.Config{
			Addr:      cfg.HTTP.Addr,
			Timeframe: tf,
			Store:     store,
			Runs:      runs,
			Trigger:   pipeline,
		}
		if cfg.HTTP.ChartPNG {
			apiCfg.Snapshots = api.NewHeadlessSnapshotter()
		}
		server, err := api.NewServer(apiCfg)
		if err != nil {
			return nil, err
		}
		app.server = server
	}

	app.Summary = buildStartupSummary(cfg, source.Name(), provider.Name(), app.server)
	logger.Infof("✓ 应用组件初始化完成 mode=%s timeframe=%s", cfg.App.Mode, tf)
	return app, nil
}

func buildCandleSource(ex config.ExchangeConfig) (market.CandleSource, coins.SpotLister, error) {
	bcfg := binance.Config{
		RESTBaseURL:      ex.RESTBaseURL,
		HTTPTimeout:      ex.Timeout(),
		ProxyEnabled:     ex.Proxy.Enabled,
		RESTProxyURL:     ex.Proxy.RESTURL,
		DropUnclosed:     ex.DropUnclosed,
		BreakerThreshold: ex.BreakerThreshold,
		BreakerTimeout:   ex.BreakerTimeout(),
	}
	sdk, err := binance.New(bcfg)
	if err != nil {
		return nil, nil, err
	}
	if strings.EqualFold(ex.Client, "rest") {
		rest, err := binance.NewRESTSource(bcfg)
		if err != nil {
			return nil, nil, err
		}
		return rest, sdk, nil
	}
	return sdk, sdk, nil
}

func buildSymbolProvider(sc config.SymbolsConfig, lister coins.SpotLister) (coins.SymbolProvider, error) {
	switch strings.ToLower(strings.TrimSpace(sc.Provider)) {
	case "", "static":
		return coins.NewDefaultProvider(sc.List, sc.Quote), nil
	case "file":
		w, err := coins.NewWatchlist(sc.File, sc.Quote)
		if err != nil {
			return nil, err
		}
		return w, nil
	case "exchange":
		if lister == nil {
			return nil, fmt.Errorf("symbols.provider=exchange requires an exchange lister")
		}
		return &coins.ExchangeProvider{Lister: lister, Quote: sc.Quote, Max: sc.Max, Exclude: sc.Exclude}, nil
	case "http":
		return coins.NewHTTPSymbolProvider(sc.URL, sc.Quote), nil
	default:
		return nil, fmt.Errorf("unknown symbols.provider %q", sc.Provider)
	}
}

func powerbiConfig(pc config.PowerBIConfig) powerbi.Config {
	return powerbi.Config{
		TenantID:     pc.TenantID,
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		GroupID:      pc.GroupID,
		DatasetID:    pc.DatasetID,
		Authority:    pc.Authority,
		APIBase:      pc.APIBase,
		Timeout:      time.Duration(pc.TimeoutSeconds) * time.Second,
	}
}

func buildStartupSummary(cfg *config.Config, source, symbols string, server *api.Server) *StartupSummary {
	sum := &StartupSummary{
		Mode:      cfg.App.Mode,
		Exchange:  cfg.Exchange.Name,
		Source:    source,
		Timeframe: cfg.Sync.Timeframe,
		DataRoot:  cfg.Storage.DataRoot,
		Symbols:   symbols,
		HTTPAddr:  server.Addr(),
		PowerBI:   cfg.PowerBI.Enabled,
	}
	if cfg.Analytics.Enabled {
		sum.Analytics = cfg.Analytics.Path
	}
	if cfg.App.Mode == ModeServe {
		if cfg.Schedule.Cron != "" {
			sum.Schedule = "cron " + cfg.Schedule.Cron
		} else {
			sum.Schedule = fmt.Sprintf("aligned %s + %s", cfg.Sync.Timeframe, cfg.Schedule.Offset())
		}
	}
	return sum
}
