package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ohlcvsync/internal/indicator"
	"ohlcvsync/internal/ingest"
	"ohlcvsync/internal/market"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const mergeBatchSize = 500

// Store 保存合并指标视图与同步审计记录（gorm + SQLite）。
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("analytics store: 数据库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&MergedIndicator{}, &SyncRun{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RebuildMerged 在一个事务内用 rows 整体替换 timeframe 对应的合并视图，返回写入行数。
func (s *Store) RebuildMerged(ctx context.Context, timeframe string, rows []indicator.Row) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("analytics store 未初始化")
	}
	models := make([]MergedIndicator, 0, len(rows))
	for i := range rows {
		models = append(models, newMergedIndicator(timeframe, &rows[i]))
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("timeframe = ?", timeframe).Delete(&MergedIndicator{}).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.CreateInBatches(&models, mergeBatchSize).Error
	})
	if err != nil {
		return 0, fmt.Errorf("重建 merged_indicators 失败: %w", err)
	}
	return len(models), nil
}

// CountMerged 返回合并视图中 timeframe 的行数。
func (s *Store) CountMerged(ctx context.Context, timeframe string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&MergedIndicator{}).Where("timeframe = ?", timeframe).Count(&n).Error
	return n, err
}

// MergedSymbols 返回合并视图中出现的 symbol 标签。
func (s *Store) MergedSymbols(ctx context.Context, timeframe string) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&MergedIndicator{}).
		Where("timeframe = ?", timeframe).
		Distinct().Order("symbol").Pluck("symbol", &out).Error
	return out, err
}

func newMergedIndicator(timeframe string, r *indicator.Row) MergedIndicator {
	return MergedIndicator{
		Symbol:    r.Symbol,
		Timeframe: timeframe,
		Timestamp: r.Timestamp,
		Datetime:  r.DateTime(),
		Open:      indicator.Finite(r.Open),
		High:      indicator.Finite(r.High),
		Low:       indicator.Finite(r.Low),
		Close:     indicator.Finite(r.Close),
		Volume:    indicator.Finite(r.Volume),

		SMA10: r.SMA10, SMA20: r.SMA20, SMA50: r.SMA50, SMA100: r.SMA100, SMA200: r.SMA200,
		EMA10: r.EMA10, EMA20: r.EMA20, EMA50: r.EMA50, EMA100: r.EMA100, EMA200: r.EMA200,
		RSI14: r.RSI14, RSI30: r.RSI30,

		DailyReturn:     r.DailyReturn,
		WeeklyReturn:    r.WeeklyReturn,
		MonthlyReturn:   r.MonthlyReturn,
		QuarterlyReturn: r.QuarterlyReturn,

		VolumePctChange:          r.VolumePctChange,
		RollingVolume30:          r.RollingVolume30,
		PctChangeVsRollingVolume: r.PctChangeVsRollingVolume,
	}
}

// RecordSyncRun 写入一条同步审计记录，实现 ingest.RunRecorder。
func (s *Store) RecordSyncRun(ctx context.Context, report ingest.SymbolReport) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("analytics store 未初始化")
	}
	details := map[string]any{
		"since":    market.FormatTimestamp(report.Since),
		"next":     market.FormatTimestamp(report.Next),
		"stop":     string(report.Stop),
		"fetch_ok": report.FetchErr == nil,
		"store_ok": report.StoreErr == nil,
	}
	if report.FetchErr != nil {
		details["fetch_error"] = report.FetchErr.Error()
	}
	if report.StoreErr != nil {
		details["store_error"] = report.StoreErr.Error()
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	run := SyncRun{
		ID:         report.RunID,
		Symbol:     report.Symbol,
		Timeframe:  report.Timeframe,
		Source:     report.Source,
		Since:      report.Since,
		Next:       report.Next,
		Pages:      report.Pages,
		Fetched:    report.Fetched,
		Inserted:   report.Inserted,
		Stop:       string(report.Stop),
		Details:    datatypes.JSON(raw),
		StartedAt:  report.StartedAt.UnixMilli(),
		FinishedAt: report.FinishedAt.UnixMilli(),
		DurationMs: report.Duration().Milliseconds(),
	}
	if err := report.Err(); err != nil {
		run.Error = err.Error()
	}
	return s.db.WithContext(ctx).Create(&run).Error
}

// ListSyncRuns 按开始时间倒序返回同步记录；symbol 为空时返回全部。
func (s *Store) ListSyncRuns(ctx context.Context, symbol string, limit int) ([]SyncRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var runs []SyncRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

var _ ingest.RunRecorder = (*Store)(nil)
