package market

import (
	"fmt"
	"strings"
	"time"
)

// DateTimeLayout 是落库时 datetime 列使用的规范文本格式（UTC）。
const DateTimeLayout = "2006-01-02 15:04:05"

// Candle 是某个 symbol 在周期边界上的一根 OHLCV，Timestamp 为 Unix 毫秒（UTC）。
// 各字段之间不做一致性校验，数据源给什么就存什么；缺失或无法解析的数值为 NaN。
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type Candles []Candle

// NormalizeTimestamp 把毫秒时间戳向下截断到整秒，作为比较与存储的统一键。
func NormalizeTimestamp(ms int64) int64 {
	rem := ms % 1000
	if rem < 0 {
		rem += 1000
	}
	return ms - rem
}

// FormatTimestamp 返回规范文本形式，例如 2024-01-02 00:00:00。
func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(DateTimeLayout)
}

// ParseTimestamp 解析 FormatTimestamp 的输出（也接受 RFC3339）。
func ParseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("timestamp is empty")
	}
	if t, err := time.ParseInLocation(DateTimeLayout, s, time.UTC); err == nil {
		return t.UnixMilli(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}

func (c Candle) DateTime() string {
	return FormatTimestamp(c.Timestamp)
}

func (c Candle) TimeString() string {
	if c.Timestamp <= 0 {
		return "-"
	}
	return time.UnixMilli(c.Timestamp).UTC().Format("2006-01-02 15:04") + "Z"
}

func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func (cs Candles) Volumes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Volume
	}
	return out
}

// Sorted 判断是否按时间戳严格递增。
func (cs Candles) Sorted() bool {
	for i := 1; i < len(cs); i++ {
		if cs[i].Timestamp <= cs[i-1].Timestamp {
			return false
		}
	}
	return true
}
