package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ohlcvsync/internal/logger"
	"ohlcvsync/internal/market"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// SeriesStore 是同步流程依赖的持久化能力（按 symbol+timeframe 分库）。
type SeriesStore interface {
	LatestTimestamp(ctx context.Context, symbol, timeframe string) (int64, bool, error)
	UpsertCandles(ctx context.Context, symbol, timeframe string, candles []market.Candle) (int, error)
}

// RunRecorder 记录每个 symbol 的同步结果，可为空。
type RunRecorder interface {
	RecordSyncRun(ctx context.Context, report SymbolReport) error
}

// ServiceConfig 配置同步服务。
type ServiceConfig struct {
	Store           SeriesStore
	Source          market.CandleSource
	Recorder        RunRecorder
	Timeframe       string
	PageLimit       int
	MaxPages        int
	RateLimitPerMin int
	Concurrency     int
}

// SymbolReport 汇总单个 symbol 的一次同步。
type SymbolReport struct {
	RunID      string
	Symbol     string
	Timeframe  string
	Source     string
	Since      int64
	Next       int64
	Pages      int
	Fetched    int
	Inserted   int
	Stop       StopReason
	FetchErr   error
	StoreErr   error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Err 返回本次同步遇到的第一个错误（写库错误优先）。
func (r SymbolReport) Err() error {
	if r.StoreErr != nil {
		return r.StoreErr
	}
	return r.FetchErr
}

func (r SymbolReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Service 负责按 symbol 执行 游标 -> 分页拉取 -> 幂等写入。
type Service struct {
	store       SeriesStore
	recorder    RunRecorder
	tf          market.Timeframe
	loop        FetchLoop
	concurrency int

	mu      sync.Mutex
	running bool
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store 不能为空")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("candle source 不能为空")
	}
	tf, err := market.ParseTimeframe(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	ratePerSec := rate.Limit(float64(cfg.RateLimitPerMin) / 60.0)
	if cfg.RateLimitPerMin <= 0 {
		ratePerSec = rate.Inf
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		store:    cfg.Store,
		recorder: cfg.Recorder,
		tf:       tf,
		loop: FetchLoop{
			Source:   cfg.Source,
			Limit:    cfg.PageLimit,
			MaxPages: cfg.MaxPages,
			Limiter:  rate.NewLimiter(ratePerSec, 1),
		},
		concurrency: concurrency,
	}, nil
}

func (s *Service) Timeframe() market.Timeframe { return s.tf }

// SyncSymbol 同步单个 symbol。拉取错误不会丢弃已拉取的页，累积数据仍会写库。
func (s *Service) SyncSymbol(ctx context.Context, symbol string) (report SymbolReport) {
	report = SymbolReport{
		RunID:     uuid.NewString(),
		Symbol:    symbol,
		Timeframe: s.tf.Key,
		Source:    s.loop.Source.Name(),
		StartedAt: time.Now(),
	}
	defer func() {
		report.FinishedAt = time.Now()
		if s.recorder == nil {
			return
		}
		if err := s.recorder.RecordSyncRun(context.WithoutCancel(ctx), report); err != nil {
			logger.Warnw("sync run 记录失败", "symbol", symbol, "run_id", report.RunID, "error", err)
		}
	}()

	maxTs, ok, err := s.store.LatestTimestamp(ctx, symbol, s.tf.Key)
	if err != nil {
		report.StoreErr = fmt.Errorf("读取游标失败: %w", err)
		logger.Errorw("sync cursor failed", "symbol", symbol, "timeframe", s.tf.Key, "error", err)
		return report
	}
	since := ResolveCursor(maxTs, ok)

	res := s.loop.Run(ctx, symbol, s.tf.SourceInterval, since)
	report.Since = res.Since
	report.Next = res.Next
	report.Pages = res.Pages
	report.Fetched = len(res.Candles)
	report.Stop = res.Stop
	report.FetchErr = res.Err
	if res.Err != nil {
		logger.Warnw("sync fetch stopped early", "symbol", symbol, "timeframe", s.tf.Key,
			"pages", res.Pages, "fetched", len(res.Candles), "error", res.Err)
	}
	if len(res.Candles) == 0 {
		logger.Debugf("[sync] %s %s 无新数据 (since=%d stop=%s)", symbol, s.tf.Key, since, res.Stop)
		return report
	}

	inserted, err := s.store.UpsertCandles(context.WithoutCancel(ctx), symbol, s.tf.Key, res.Candles)
	if err != nil {
		report.StoreErr = fmt.Errorf("写入失败: %w", err)
		logger.Errorw("sync store failed", "symbol", symbol, "timeframe", s.tf.Key, "candles", len(res.Candles), "error", err)
		return report
	}
	report.Inserted = inserted
	logger.Infow("sync symbol done", "symbol", symbol, "timeframe", s.tf.Key,
		"pages", res.Pages, "fetched", len(res.Candles), "inserted", inserted, "stop", string(res.Stop))
	return report
}

// ErrRunInProgress 表示已有同步批次在运行。
var ErrRunInProgress = errors.New("sync run already in progress")

// SyncAll 依次（或按 Concurrency 并行）同步全部 symbol，单个 symbol 失败不会中断批次。
// 只有 ctx 被取消或已有批次在运行时返回 error。
func (s *Service) SyncAll(ctx context.Context, symbols []string) ([]SymbolReport, error) {
	if !s.tryStart() {
		return nil, ErrRunInProgress
	}
	defer s.finish()

	reports := make([]SymbolReport, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, sym := range symbols {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = s.SyncSymbol(gctx, sym)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return compact(reports), err
	}
	if err := ctx.Err(); err != nil {
		return compact(reports), err
	}
	return reports, nil
}

// Running 返回当前是否有批次在执行。
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Service) finish() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func compact(reports []SymbolReport) []SymbolReport {
	out := make([]SymbolReport, 0, len(reports))
	for _, r := range reports {
		if r.Symbol != "" {
			out = append(out, r)
		}
	}
	return out
}
