package api

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"ohlcvsync/internal/indicator"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/guregu/null/v6"
)

const (
	chartWidth  = "1200px"
	priceHeight = "520px"
	rsiHeight   = "220px"
	colorBull   = "#26a69a"
	colorBear   = "#ef5350"
)

var overlayColumns = []string{"sma_50", "sma_200", "ema_20"}

// renderChart 输出 K 线 + 均线叠加，以及 RSI 子图的 HTML 页面。
func renderChart(symbol, timeframe string, rows []indicator.Row) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no rows to render for %s", symbol)
	}
	xAxis := make([]string, len(rows))
	klineData := make([]opts.KlineData, len(rows))
	for i := range rows {
		xAxis[i] = rows[i].DateTime()
		klineData[i] = klineBar(rows[i])
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:     types.ThemeWesteros,
			PageTitle: fmt.Sprintf("%s %s", strings.ToUpper(symbol), timeframe),
			Width:     chartWidth,
			Height:    priceHeight,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %s", strings.ToUpper(symbol), timeframe),
			Subtitle: subtitle(rows[len(rows)-1]),
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	kline.SetSeriesOptions(charts.WithItemStyleOpts(opts.ItemStyle{
		Color:        colorBull,
		Color0:       colorBear,
		BorderColor:  colorBull,
		BorderColor0: colorBear,
	}))
	kline.SetXAxis(xAxis).AddSeries("Price", klineData)

	overlay := charts.NewLine()
	overlay.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	overlay.SetXAxis(xAxis)
	for _, col := range overlayColumns {
		overlay.AddSeries(strings.ToUpper(col), lineData(rows, col))
	}
	kline.Overlap(overlay)

	rsi := charts.NewLine()
	rsi.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: rsiHeight}),
		charts.WithTitleOpts(opts.Title{Title: "RSI"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100}),
	)
	rsi.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	rsi.SetXAxis(xAxis).
		AddSeries("RSI14", lineData(rows, "rsi_14")).
		AddSeries("RSI30", lineData(rows, "rsi_30"))

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(kline, rsi)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lineData(rows []indicator.Row, column string) []opts.LineData {
	out := make([]opts.LineData, len(rows))
	for i := range rows {
		v, _ := rows[i].Value(column)
		if v.Valid {
			out[i] = opts.LineData{Value: round(v.Float64, 4)}
		} else {
			out[i] = opts.LineData{Value: nil}
		}
	}
	return out
}

// klineBar 含 NaN 的 K 线留空，不进入图表数据。
func klineBar(r indicator.Row) opts.KlineData {
	v := [4]float64{r.Open, r.Close, r.Low, r.High}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return opts.KlineData{Value: "-"}
		}
	}
	return opts.KlineData{Value: v}
}

func subtitle(last indicator.Row) string {
	return fmt.Sprintf("close %.4f | RSI14 %s | daily %s%%", last.Close, fmtNull(last.RSI14), fmtNull(last.DailyReturn))
}

func fmtNull(v null.Float) string {
	if !v.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", v.Float64)
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
