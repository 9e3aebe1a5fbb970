package indicator

import (
	"math"

	"github.com/guregu/null/v6"
	"github.com/markcheno/go-talib"
)

// SMA 简单移动平均；t < window-1 的位置为 null。
func SMA(values []float64, window int) []null.Float {
	out := make([]null.Float, len(values))
	if window <= 0 || len(values) < window {
		return out
	}
	// talib 在样本不足时会越界，上面已保证 len >= window。
	raw := talib.Sma(values, window)
	for t := window - 1; t < len(values); t++ {
		out[t] = Finite(raw[t])
	}
	return out
}

// RollingSum 滚动求和；t < window-1 的位置为 null。
func RollingSum(values []float64, window int) []null.Float {
	out := make([]null.Float, len(values))
	if window <= 0 || len(values) < window {
		return out
	}
	raw := talib.Sum(values, window)
	for t := window - 1; t < len(values); t++ {
		out[t] = Finite(raw[t])
	}
	return out
}

// EMA 指数移动平均：alpha = 2/(span+1)，以首个值为种子，不做偏差修正，从 t=0 起有值。
// talib.Ema 以 SMA 作种子，这里不能直接复用。
func EMA(values []float64, span int) []null.Float {
	out := make([]null.Float, len(values))
	if span <= 0 || len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(span+1)
	prev := values[0]
	out[0] = Finite(prev)
	for t := 1; t < len(values); t++ {
		prev = alpha*values[t] + (1-alpha)*prev
		out[t] = Finite(prev)
	}
	return out
}

// RSI 使用截至 t 的最近 period 个涨跌幅的简单均值：100 - 100/(1+RS)。
// t < period 为 null；平均跌幅为 0 时，有涨幅记为 100，无涨跌记为 null。
func RSI(values []float64, period int) []null.Float {
	out := make([]null.Float, len(values))
	if period <= 0 || len(values) <= period {
		return out
	}
	deltas := make([]float64, len(values))
	for t := 1; t < len(values); t++ {
		deltas[t] = values[t] - values[t-1]
	}
	for t := period; t < len(values); t++ {
		var gain, loss float64
		for _, d := range deltas[t-period+1 : t+1] {
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
		}
		avgGain := gain / float64(period)
		avgLoss := loss / float64(period)
		switch {
		case avgLoss == 0 && avgGain > 0:
			out[t] = null.FloatFrom(100)
		case avgLoss == 0:
			// 窗口内无涨跌
		default:
			out[t] = Finite(100 - 100/(1+avgGain/avgLoss))
		}
	}
	return out
}

// PctChange 百分比变化 (v[t]/v[t-lag] - 1) * 100；t < lag 或分母为 0 时为 null。
func PctChange(values []float64, lag int) []null.Float {
	out := make([]null.Float, len(values))
	if lag <= 0 {
		return out
	}
	for t := lag; t < len(values); t++ {
		out[t] = ratioPct(values[t], null.FloatFrom(values[t-lag]))
	}
	return out
}

// PctVsRolling 计算 (v[t]/rolling[t] - 1) * 100，rolling 为 null 的位置结果也为 null。
func PctVsRolling(values []float64, rolling []null.Float) []null.Float {
	out := make([]null.Float, len(values))
	for t := range values {
		if t < len(rolling) {
			out[t] = ratioPct(values[t], rolling[t])
		}
	}
	return out
}

func ratioPct(num float64, den null.Float) null.Float {
	if !den.Valid || den.Float64 == 0 {
		return null.Float{}
	}
	return Finite((num/den.Float64 - 1) * 100)
}

// Finite 把 NaN/Inf 转成 null。
func Finite(v float64) null.Float {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return null.Float{}
	}
	return null.FloatFrom(v)
}
