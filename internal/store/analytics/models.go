package analytics

import (
	"github.com/guregu/null/v6"
	"gorm.io/datatypes"
)

// MergedIndicator 是合并视图中的一行：所有 symbol 的指标表按 symbol 列拼接。
type MergedIndicator struct {
	ID        int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Symbol    string     `gorm:"column:symbol;index:idx_merged_symbol_ts,priority:1"`
	Timeframe string     `gorm:"column:timeframe;index"`
	Timestamp int64      `gorm:"column:timestamp;index:idx_merged_symbol_ts,priority:2"`
	Datetime  string     `gorm:"column:datetime"`
	Open      null.Float `gorm:"column:open;type:real"`
	High      null.Float `gorm:"column:high;type:real"`
	Low       null.Float `gorm:"column:low;type:real"`
	Close     null.Float `gorm:"column:close;type:real"`
	Volume    null.Float `gorm:"column:volume;type:real"`

	SMA10  null.Float `gorm:"column:sma_10;type:real"`
	SMA20  null.Float `gorm:"column:sma_20;type:real"`
	SMA50  null.Float `gorm:"column:sma_50;type:real"`
	SMA100 null.Float `gorm:"column:sma_100;type:real"`
	SMA200 null.Float `gorm:"column:sma_200;type:real"`

	EMA10  null.Float `gorm:"column:ema_10;type:real"`
	EMA20  null.Float `gorm:"column:ema_20;type:real"`
	EMA50  null.Float `gorm:"column:ema_50;type:real"`
	EMA100 null.Float `gorm:"column:ema_100;type:real"`
	EMA200 null.Float `gorm:"column:ema_200;type:real"`

	RSI14 null.Float `gorm:"column:rsi_14;type:real"`
	RSI30 null.Float `gorm:"column:rsi_30;type:real"`

	DailyReturn     null.Float `gorm:"column:daily_return;type:real"`
	WeeklyReturn    null.Float `gorm:"column:weekly_return;type:real"`
	MonthlyReturn   null.Float `gorm:"column:monthly_return;type:real"`
	QuarterlyReturn null.Float `gorm:"column:quarterly_return;type:real"`

	VolumePctChange          null.Float `gorm:"column:volume_pct_change;type:real"`
	RollingVolume30          null.Float `gorm:"column:rolling_volume_30;type:real"`
	PctChangeVsRollingVolume null.Float `gorm:"column:percent_change_vs_rolling_volume;type:real"`
}

func (MergedIndicator) TableName() string { return "merged_indicators" }

// SyncRun 记录一次 symbol 同步（审计用）。
type SyncRun struct {
	ID         string         `gorm:"column:id;primaryKey;size:36" json:"id"`
	Symbol     string         `gorm:"column:symbol;index:idx_sync_runs_symbol,priority:1" json:"symbol"`
	Timeframe  string         `gorm:"column:timeframe" json:"timeframe"`
	Source     string         `gorm:"column:source" json:"source"`
	Since      int64          `gorm:"column:since" json:"since"`
	Next       int64          `gorm:"column:next" json:"next"`
	Pages      int            `gorm:"column:pages" json:"pages"`
	Fetched    int            `gorm:"column:fetched" json:"fetched"`
	Inserted   int            `gorm:"column:inserted" json:"inserted"`
	Stop       string         `gorm:"column:stop" json:"stop"`
	Error      string         `gorm:"column:error" json:"error"`
	Details    datatypes.JSON `gorm:"column:details;type:TEXT" json:"details"`
	StartedAt  int64          `gorm:"column:started_at;index:idx_sync_runs_symbol,priority:2" json:"started_at"`
	FinishedAt int64          `gorm:"column:finished_at" json:"finished_at"`
	DurationMs int64          `gorm:"column:duration_ms" json:"duration_ms"`
}

func (SyncRun) TableName() string { return "sync_runs" }
