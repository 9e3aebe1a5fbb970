package indicator

import (
	"encoding/json"
	"errors"

	"ohlcvsync/internal/market"

	"github.com/guregu/null/v6"
)

// ErrNoCandles 空序列无法计算指标。
var ErrNoCandles = errors.New("indicator: no candles")

var (
	MAWindows     = []int{10, 20, 50, 100, 200}
	RSIPeriods    = []int{14, 30}
	ReturnLags    = map[string]int{"daily_return": 1, "weekly_return": 7, "monthly_return": 30, "quarterly_return": 91}
	VolumeWindow  = 30
	returnColumns = []string{"daily_return", "weekly_return", "monthly_return", "quarterly_return"}
)

// Row 是指标表的一行：K 线字段 + symbol + 各指标列。
type Row struct {
	market.Candle
	Symbol string `json:"symbol"`

	SMA10  null.Float `json:"sma_10"`
	SMA20  null.Float `json:"sma_20"`
	SMA50  null.Float `json:"sma_50"`
	SMA100 null.Float `json:"sma_100"`
	SMA200 null.Float `json:"sma_200"`

	EMA10  null.Float `json:"ema_10"`
	EMA20  null.Float `json:"ema_20"`
	EMA50  null.Float `json:"ema_50"`
	EMA100 null.Float `json:"ema_100"`
	EMA200 null.Float `json:"ema_200"`

	RSI14 null.Float `json:"rsi_14"`
	RSI30 null.Float `json:"rsi_30"`

	DailyReturn     null.Float `json:"daily_return"`
	WeeklyReturn    null.Float `json:"weekly_return"`
	MonthlyReturn   null.Float `json:"monthly_return"`
	QuarterlyReturn null.Float `json:"quarterly_return"`

	VolumePctChange          null.Float `json:"volume_pct_change"`
	RollingVolume30          null.Float `json:"rolling_volume_30"`
	PctChangeVsRollingVolume null.Float `json:"percent_change_vs_rolling_volume"`
}

var columnNames = []string{
	"sma_10", "sma_20", "sma_50", "sma_100", "sma_200",
	"ema_10", "ema_20", "ema_50", "ema_100", "ema_200",
	"rsi_14", "rsi_30",
	"daily_return", "weekly_return", "monthly_return", "quarterly_return",
	"volume_pct_change", "rolling_volume_30", "percent_change_vs_rolling_volume",
}

// Columns 返回指标列名，顺序与 Row.Fields 一致。
func Columns() []string {
	out := make([]string, len(columnNames))
	copy(out, columnNames)
	return out
}

// Fields 返回各指标列的指针，顺序与 Columns 一致，用于批量写入与扫描。
func (r *Row) Fields() []*null.Float {
	return []*null.Float{
		&r.SMA10, &r.SMA20, &r.SMA50, &r.SMA100, &r.SMA200,
		&r.EMA10, &r.EMA20, &r.EMA50, &r.EMA100, &r.EMA200,
		&r.RSI14, &r.RSI30,
		&r.DailyReturn, &r.WeeklyReturn, &r.MonthlyReturn, &r.QuarterlyReturn,
		&r.VolumePctChange, &r.RollingVolume30, &r.PctChangeVsRollingVolume,
	}
}

// Value 按列名取值，未知列返回 false。
func (r *Row) Value(column string) (null.Float, bool) {
	for i, name := range columnNames {
		if name == column {
			return *r.Fields()[i], true
		}
	}
	return null.Float{}, false
}

// MarshalJSON 输出时 OHLCV 中的 NaN 记为 null。
func (r Row) MarshalJSON() ([]byte, error) {
	type plain Row
	return json.Marshal(struct {
		plain
		Open   null.Float `json:"open"`
		High   null.Float `json:"high"`
		Low    null.Float `json:"low"`
		Close  null.Float `json:"close"`
		Volume null.Float `json:"volume"`
	}{plain(r), Finite(r.Open), Finite(r.High), Finite(r.Low), Finite(r.Close), Finite(r.Volume)})
}

// Compute 计算 symbol 全量序列的指标，candles 需按时间升序；输出与输入等长。
func Compute(symbol string, candles []market.Candle) ([]Row, error) {
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	closes := market.Candles(candles).Closes()
	volumes := market.Candles(candles).Volumes()

	cols := make([][]null.Float, 0, len(columnNames))
	for _, w := range MAWindows {
		cols = append(cols, SMA(closes, w))
	}
	for _, w := range MAWindows {
		cols = append(cols, EMA(closes, w))
	}
	for _, p := range RSIPeriods {
		cols = append(cols, RSI(closes, p))
	}
	for _, name := range returnColumns {
		cols = append(cols, PctChange(closes, ReturnLags[name]))
	}
	rolling := RollingSum(volumes, VolumeWindow)
	cols = append(cols, PctChange(volumes, 1), rolling, PctVsRolling(volumes, rolling))

	rows := make([]Row, len(candles))
	for t, c := range candles {
		rows[t].Candle = c
		rows[t].Symbol = symbol
		for i, field := range rows[t].Fields() {
			*field = cols[i][t]
		}
	}
	return rows, nil
}
