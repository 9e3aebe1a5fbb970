package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ohlcvsync/internal/indicator"
	"ohlcvsync/internal/ingest"
	"ohlcvsync/internal/market"

	"github.com/gin-gonic/gin"
	"github.com/guregu/null/v6"
)

type symbolView struct {
	Key        string `json:"key"`
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	Rows       int64  `json:"rows"`
	First      string `json:"first,omitempty"`
	Last       string `json:"last,omitempty"`
	LastSyncAt int64  `json:"last_sync_at"`
}

type candleView struct {
	Timestamp int64      `json:"timestamp"`
	Datetime  string     `json:"datetime"`
	Open      null.Float `json:"open"`
	High      null.Float `json:"high"`
	Low       null.Float `json:"low"`
	Close     null.Float `json:"close"`
	Volume    null.Float `json:"volume"`
}

func newCandleViews(list []market.Candle) []candleView {
	out := make([]candleView, len(list))
	for i, c := range list {
		out[i] = candleView{
			Timestamp: c.Timestamp,
			Datetime:  c.DateTime(),
			Open:      indicator.Finite(c.Open),
			High:      indicator.Finite(c.High),
			Low:       indicator.Finite(c.Low),
			Close:     indicator.Finite(c.Close),
			Volume:    indicator.Finite(c.Volume),
		}
	}
	return out
}

func (s *Server) timeframeOf(c *gin.Context) (string, bool) {
	raw := strings.TrimSpace(c.Query("timeframe"))
	if raw == "" {
		return s.timeframe, true
	}
	tf, err := market.ParseTimeframe(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return tf.Key, true
}

// seriesOf 解析路径中的 symbol，库不存在时直接返回 404。
func (s *Server) seriesOf(c *gin.Context) (string, string, bool) {
	tf, ok := s.timeframeOf(c)
	if !ok {
		return "", "", false
	}
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" || !s.store.Has(symbol, tf) {
		c.JSON(http.StatusNotFound, gin.H{"error": "series not found", "symbol": symbol, "timeframe": tf})
		return "", "", false
	}
	return symbol, tf, true
}

func (s *Server) handleSymbols(c *gin.Context) {
	filter := strings.TrimSpace(c.Query("timeframe"))
	refs, err := s.store.Series()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]symbolView, 0, len(refs))
	for _, ref := range refs {
		if filter != "" && ref.Timeframe != filter {
			continue
		}
		m, err := s.store.Manifest(c.Request.Context(), ref.Key, ref.Timeframe)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "key": ref.Key})
			return
		}
		view := symbolView{
			Key:        ref.Key,
			Symbol:     m.Symbol,
			Timeframe:  ref.Timeframe,
			Rows:       m.Rows,
			LastSyncAt: m.LastSyncAt,
		}
		if m.Rows > 0 {
			view.First = market.FormatTimestamp(m.MinTime)
			view.Last = market.FormatTimestamp(m.MaxTime)
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"symbols": out})
}

func (s *Server) handleCandles(c *gin.Context) {
	symbol, tf, ok := s.seriesOf(c)
	if !ok {
		return
	}
	start, err := parseTimeParam(c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start: " + err.Error()})
		return
	}
	end, err := parseTimeParam(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end: " + err.Error()})
		return
	}
	list, err := s.store.QueryCandles(c.Request.Context(), symbol, tf, start, end, queryInt(c, "limit", 200))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "timeframe": tf, "candles": newCandleViews(list)})
}

func (s *Server) handleIndicators(c *gin.Context) {
	symbol, tf, ok := s.seriesOf(c)
	if !ok {
		return
	}
	rows, err := s.store.LoadIndicators(c.Request.Context(), symbol, tf, queryInt(c, "limit", 200))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []indicator.Row{}
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "timeframe": tf, "columns": indicator.Columns(), "rows": rows})
}

func (s *Server) handleChart(c *gin.Context) {
	symbol, tf, ok := s.seriesOf(c)
	if !ok {
		return
	}
	rows, err := s.store.LoadIndicators(c.Request.Context(), symbol, tf, queryInt(c, "limit", 365))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(rows) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "indicators not computed yet", "symbol": symbol})
		return
	}
	html, err := renderChart(symbol, tf, rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !strings.EqualFold(c.Query("format"), "png") {
		c.Data(http.StatusOK, "text/html; charset=utf-8", html)
		return
	}
	if s.snapshots == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "png snapshots disabled"})
		return
	}
	png, err := s.snapshots.Snapshot(c.Request.Context(), html)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run audit disabled"})
		return
	}
	runs, err := s.runs.ListSyncRuns(c.Request.Context(), c.Query("symbol"), queryInt(c, "limit", 50))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleSync(c *gin.Context) {
	if s.trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync trigger disabled"})
		return
	}
	if err := s.trigger.TriggerAsync(); err != nil {
		if errors.Is(err, ingest.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// parseTimeParam 接受毫秒时间戳或 "2006-01-02 15:04:05" / RFC3339。
func parseTimeParam(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ms, nil
	}
	return market.ParseTimestamp(raw)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
