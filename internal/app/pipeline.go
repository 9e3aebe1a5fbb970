package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ohlcvsync/internal/coins"
	"ohlcvsync/internal/indicator"
	"ohlcvsync/internal/ingest"
	"ohlcvsync/internal/logger"
	"ohlcvsync/internal/store/candles"
)

// Stage 决定一次运行执行到哪一步。
type Stage string

const (
	// StageAll: 同步 -> 指标 -> 合并视图 -> BI 刷新
	StageAll Stage = "all"
	// StageSync 只同步 K 线
	StageSync Stage = "sync"
	// StageIndicators 跳过同步，基于已有 K 线重算指标并合并
	StageIndicators Stage = "indicators"
)

type candleSyncer interface {
	SyncAll(ctx context.Context, symbols []string) ([]ingest.SymbolReport, error)
}

type indicatorRefresher interface {
	RefreshAll(ctx context.Context, symbols []string) ([]indicator.Result, error)
}

type indicatorReader interface {
	Series() ([]candles.SeriesRef, error)
	LoadIndicators(ctx context.Context, symbol, timeframe string, limit int) ([]indicator.Row, error)
}

type mergedWriter interface {
	RebuildMerged(ctx context.Context, timeframe string, rows []indicator.Row) (int, error)
}

type refreshTrigger interface {
	TriggerRefresh(ctx context.Context) error
}

// pipelineDeps 中 refresher / merged / bi 可为 nil，对应阶段会被跳过。
type pipelineDeps struct {
	Timeframe string
	Symbols   coins.SymbolProvider
	Syncer    candleSyncer
	Refresher indicatorRefresher
	Reader    indicatorReader
	Merged    mergedWriter
	BI        refreshTrigger
}

// Pipeline 串联一轮完整的处理流程，同一时刻只允许一轮在跑。
type Pipeline struct {
	deps pipelineDeps

	baseCtx context.Context
	running atomic.Bool
	wg      sync.WaitGroup

	mu   sync.Mutex
	last *RunSummary
}

func newPipeline(deps pipelineDeps) (*Pipeline, error) {
	if deps.Symbols == nil {
		return nil, fmt.Errorf("pipeline: symbol provider 不能为空")
	}
	if deps.Syncer == nil {
		return nil, fmt.Errorf("pipeline: syncer 不能为空")
	}
	if deps.Merged != nil && deps.Reader == nil {
		return nil, fmt.Errorf("pipeline: merged view requires an indicator reader")
	}
	return &Pipeline{deps: deps, baseCtx: context.Background()}, nil
}

// bind 设置异步触发使用的父 context（serve 模式下为进程 context）。
func (p *Pipeline) bind(ctx context.Context) {
	if ctx != nil {
		p.baseCtx = ctx
	}
}

// Run 同步执行一轮；已有一轮在跑时返回 ingest.ErrRunInProgress。
func (p *Pipeline) Run(ctx context.Context, stage Stage) (*RunSummary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ingest.ErrRunInProgress
	}
	defer p.running.Store(false)
	return p.run(ctx, stage)
}

// TriggerAsync 在后台启动一轮完整流程，供 HTTP 手动触发。
func (p *Pipeline) TriggerAsync() error {
	if !p.running.CompareAndSwap(false, true) {
		return ingest.ErrRunInProgress
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		sum, err := p.run(p.baseCtx, StageAll)
		report(sum, err)
	}()
	return nil
}

// RunScheduled 是调度器的回调：执行一轮并打印摘要，与手动触发重叠时跳过。
func (p *Pipeline) RunScheduled(ctx context.Context) {
	sum, err := p.Run(ctx, StageAll)
	if errors.Is(err, ingest.ErrRunInProgress) {
		logger.Warnf("scheduled run skipped: previous run still in progress")
		return
	}
	report(sum, err)
}

// Wait 等待后台触发的运行结束。
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Last 返回最近一次运行的摘要。
func (p *Pipeline) Last() *RunSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func report(sum *RunSummary, err error) {
	if sum != nil {
		sum.Print()
	}
	if err != nil {
		logger.Errorf("pipeline run failed: %v", err)
	}
}

func (p *Pipeline) run(ctx context.Context, stage Stage) (*RunSummary, error) {
	sum := &RunSummary{Stage: stage, Timeframe: p.deps.Timeframe, StartedAt: time.Now()}
	defer func() {
		sum.FinishedAt = time.Now()
		p.mu.Lock()
		p.last = sum
		p.mu.Unlock()
	}()

	symbols, err := p.deps.Symbols.List(ctx)
	if err != nil {
		return sum, fmt.Errorf("获取币种列表失败 (%s): %w", p.deps.Symbols.Name(), err)
	}
	sum.Symbols = symbols
	logger.Infow("pipeline run started", "stage", stage, "timeframe", p.deps.Timeframe, "symbols", len(symbols))

	if stage != StageIndicators {
		reports, err := p.deps.Syncer.SyncAll(ctx, symbols)
		sum.Sync = reports
		if err != nil {
			return sum, fmt.Errorf("sync: %w", err)
		}
	}
	if stage == StageSync {
		return sum, nil
	}

	if p.deps.Refresher == nil {
		logger.Infof("indicators disabled, skip derived stages")
		return sum, nil
	}
	results, err := p.deps.Refresher.RefreshAll(ctx, symbols)
	sum.Indicators = results
	if err != nil {
		return sum, fmt.Errorf("indicators: %w", err)
	}

	if p.deps.Merged == nil {
		return sum, nil
	}
	sum.MergeRan = true
	sum.Merged, sum.MergeErr = p.rebuildMerged(ctx)
	if sum.MergeErr != nil {
		logger.Errorw("merged view rebuild failed", "timeframe", p.deps.Timeframe, "error", sum.MergeErr)
		return sum, nil
	}
	logger.Infow("merged view rebuilt", "timeframe", p.deps.Timeframe, "rows", sum.Merged)

	if p.deps.BI == nil {
		return sum, nil
	}
	sum.BIRan = true
	sum.BIErr = p.deps.BI.TriggerRefresh(ctx)
	if sum.BIErr != nil {
		logger.Errorw("bi refresh failed", "error", sum.BIErr)
	} else {
		logger.Infof("bi dataset refresh accepted")
	}
	return sum, nil
}

// rebuildMerged 汇总当前周期下所有已落库 symbol 的指标表。
func (p *Pipeline) rebuildMerged(ctx context.Context) (int, error) {
	refs, err := p.deps.Reader.Series()
	if err != nil {
		return 0, fmt.Errorf("列出库文件失败: %w", err)
	}
	var rows []indicator.Row
	for _, ref := range refs {
		if ref.Timeframe != p.deps.Timeframe {
			continue
		}
		part, err := p.deps.Reader.LoadIndicators(ctx, ref.Key, ref.Timeframe, 0)
		if err != nil {
			return 0, fmt.Errorf("读取 %s 指标失败: %w", ref.Key, err)
		}
		rows = append(rows, part...)
	}
	return p.deps.Merged.RebuildMerged(ctx, p.deps.Timeframe, rows)
}
