package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ohlcvsync/internal/indicator"
	"ohlcvsync/internal/logger"
	"ohlcvsync/internal/market"
	"ohlcvsync/internal/store/analytics"
	"ohlcvsync/internal/store/candles"

	"github.com/gin-gonic/gin"
)

// SeriesReader 是查询接口依赖的只读存储能力。
type SeriesReader interface {
	Has(symbol, timeframe string) bool
	Series() ([]candles.SeriesRef, error)
	Manifest(ctx context.Context, symbol, timeframe string) (candles.Manifest, error)
	QueryCandles(ctx context.Context, symbol, timeframe string, start, end int64, limit int) ([]market.Candle, error)
	LoadIndicators(ctx context.Context, symbol, timeframe string, limit int) ([]indicator.Row, error)
}

// RunLister 提供同步审计记录，可为空。
type RunLister interface {
	ListSyncRuns(ctx context.Context, symbol string, limit int) ([]analytics.SyncRun, error)
}

// SyncTrigger 异步触发一轮同步；已有批次在跑时返回 ingest.ErrRunInProgress。
type SyncTrigger interface {
	TriggerAsync() error
}

// Config 描述查询服务依赖。
type Config struct {
	Addr      string
	Timeframe string
	Store     SeriesReader
	Runs      RunLister
	Trigger   SyncTrigger
	// Snapshots 为空时 chart?format=png 返回 501
	Snapshots ChartSnapshotter
}

// Server 提供 K 线 / 指标 / 同步记录的只读 HTTP 接口以及手动触发同步。
type Server struct {
	addr      string
	timeframe string
	store     SeriesReader
	runs      RunLister
	trigger   SyncTrigger
	snapshots ChartSnapshotter
	router    *gin.Engine
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("api server requires a series store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = "1d"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:      cfg.Addr,
		timeframe: cfg.Timeframe,
		store:     cfg.Store,
		runs:      cfg.Runs,
		trigger:   cfg.Trigger,
		snapshots: cfg.Snapshots,
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := s.router.Group("/api")
	api.GET("/symbols", s.handleSymbols)
	api.GET("/candles/:symbol", s.handleCandles)
	api.GET("/indicators/:symbol", s.handleIndicators)
	api.GET("/indicators/:symbol/chart", s.handleChart)
	api.GET("/runs", s.handleRuns)
	api.POST("/sync", s.handleSync)
}

// Handler 暴露路由，便于测试与嵌入。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.RequestURI(), c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("api server listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
