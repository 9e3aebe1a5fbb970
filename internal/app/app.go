package app

import (
	"context"
	"errors"
	"fmt"

	"ohlcvsync/internal/config"
	"ohlcvsync/internal/logger"
	"ohlcvsync/internal/market"
	"ohlcvsync/internal/scheduler"
	"ohlcvsync/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

const (
	ModeOnce       = "once"
	ModeSync       = "sync"
	ModeIndicators = "indicators"
	ModeServe      = "serve"
)

// App 负责应用级编排：加载配置→初始化依赖→按模式运行。
type App struct {
	cfg       *config.Config
	pipeline  *Pipeline
	server    *api.Server
	timeframe market.Timeframe
	closers   []func() error
	Summary   *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 按 app.mode 执行：once/sync/indicators 跑一轮后返回，serve 常驻直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.pipeline == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		a.Summary.Print()
	}

	switch a.cfg.App.Mode {
	case ModeOnce:
		return a.runStage(ctx, StageAll)
	case ModeSync:
		return a.runStage(ctx, StageSync)
	case ModeIndicators:
		return a.runStage(ctx, StageIndicators)
	case ModeServe:
		return a.serve(ctx)
	default:
		return fmt.Errorf("unknown mode %q", a.cfg.App.Mode)
	}
}

func (a *App) runStage(ctx context.Context, stage Stage) error {
	sum, err := a.pipeline.Run(ctx, stage)
	if sum != nil {
		sum.Print()
		if failed := sum.Failed(); len(failed) > 0 {
			logger.Warnf("%d 个币种处理失败: %v", len(failed), failed)
		}
	}
	return err
}

func (a *App) serve(ctx context.Context) error {
	a.pipeline.bind(ctx)
	group, gctx := errgroup.WithContext(ctx)

	if a.server != nil {
		group.Go(func() error {
			if err := a.server.Start(gctx); err != nil {
				return fmt.Errorf("api server error: %w", err)
			}
			return nil
		})
	}

	runner, err := a.newScheduler(gctx)
	if err != nil {
		return err
	}
	group.Go(func() error {
		runner.Start(func() { a.pipeline.RunScheduled(gctx) })
		return nil
	})

	err = group.Wait()
	a.pipeline.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) newScheduler(ctx context.Context) (scheduler.Runner, error) {
	sc := a.cfg.Schedule
	if sc.Cron != "" {
		cs, err := scheduler.NewCronScheduler(ctx, sc.Cron)
		if err != nil {
			return nil, err
		}
		cs.RunImmediately = sc.RunImmediately
		return cs, nil
	}
	as := scheduler.NewAlignedScheduler(ctx, a.timeframe.Duration, sc.Offset())
	as.RunImmediately = sc.RunImmediately
	return as, nil
}

// Close 释放存储句柄，可重复调用。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
