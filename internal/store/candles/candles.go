package candles

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"ohlcvsync/internal/logger"
	"ohlcvsync/internal/market"
)

// LatestTimestamp 返回已存最大时间戳；空表 ok=false。
func (s *Store) LatestTimestamp(ctx context.Context, symbol, timeframe string) (int64, bool, error) {
	db, _, err := s.db(symbol, timeframe)
	if err != nil {
		return 0, false, err
	}
	var maxTs sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM candles`).Scan(&maxTs); err != nil {
		return 0, false, err
	}
	return maxTs.Int64, maxTs.Valid, nil
}

// UpsertCandles 幂等写入一批 K 线：时间戳归一到整秒，批内去重（保留先出现的一条），
// 剔除库中已有时间戳，剩余行以 ON CONFLICT 方式写入。整批一个事务，返回新增行数。
func (s *Store) UpsertCandles(ctx context.Context, symbol, timeframe string, candles []market.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	db, _, err := s.db(symbol, timeframe)
	if err != nil {
		return 0, err
	}
	batch := dedupe(candles)
	minTs, maxTs := batch[0].Timestamp, batch[0].Timestamp
	for _, c := range batch {
		minTs = min(minTs, c.Timestamp)
		maxTs = max(maxTs, c.Timestamp)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := loadTimestamps(ctx, tx, minTs, maxTs)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (timestamp, datetime, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(timestamp) DO UPDATE SET
		    datetime=excluded.datetime,
		    open=excluded.open,
		    high=excluded.high,
		    low=excluded.low,
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range batch {
		if _, ok := existing[c.Timestamp]; ok {
			continue
		}
		if _, err := stmt.ExecContext(ctx, c.Timestamp, c.DateTime(), sqlFloat(c.Open), sqlFloat(c.High), sqlFloat(c.Low), sqlFloat(c.Close), sqlFloat(c.Volume)); err != nil {
			return 0, fmt.Errorf("写入 %s 失败: %w", c.DateTime(), err)
		}
		inserted++
	}
	if err := refreshManifest(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.Debugf("[store] %s %s 收到 %d 根，批内去重后 %d，新增 %d", symbol, timeframe, len(candles), len(batch), inserted)
	return inserted, nil
}

// dedupe 归一化时间戳并去掉批内重复，保留先出现的一条。
func dedupe(candles []market.Candle) []market.Candle {
	seen := make(map[int64]struct{}, len(candles))
	out := make([]market.Candle, 0, len(candles))
	for _, c := range candles {
		c.Timestamp = market.NormalizeTimestamp(c.Timestamp)
		if _, ok := seen[c.Timestamp]; ok {
			continue
		}
		seen[c.Timestamp] = struct{}{}
		out = append(out, c)
	}
	return out
}

func loadTimestamps(ctx context.Context, tx *sql.Tx, start, end int64) (map[int64]struct{}, error) {
	rows, err := tx.QueryContext(ctx, `SELECT timestamp FROM candles WHERE timestamp BETWEEN ? AND ?`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]struct{})
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out[ts] = struct{}{}
	}
	return out, rows.Err()
}

func refreshManifest(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE manifest
		SET min_time = (SELECT COALESCE(MIN(timestamp), 0) FROM candles),
		    max_time = (SELECT COALESCE(MAX(timestamp), 0) FROM candles),
		    rows = (SELECT COUNT(1) FROM candles),
		    last_sync_at = ?
		WHERE id = 1`, time.Now().UnixMilli())
	return err
}

// ListCandles 返回全部 K 线（按 timestamp 升序），供指标计算使用。
func (s *Store) ListCandles(ctx context.Context, symbol, timeframe string) ([]market.Candle, error) {
	db, _, err := s.db(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles ORDER BY timestamp ASC`)
	if err != nil {
		return nil, err
	}
	return scanCandles(rows)
}

// QueryCandles 读取指定区间的 K 线（升序返回）；不给 start 时取最近 limit 根。
func (s *Store) QueryCandles(ctx context.Context, symbol, timeframe string, start, end int64, limit int) ([]market.Candle, error) {
	db, _, err := s.db(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 5000 {
		limit = 5000
	}
	if start > 0 && end > 0 && end < start {
		start, end = end, start
	}
	if end <= 0 {
		end = 1<<63 - 1
	}
	var rows *sql.Rows
	orderDesc := start <= 0
	if orderDesc {
		rows, err = db.QueryContext(ctx, `
			SELECT timestamp, open, high, low, close, volume
			FROM candles WHERE timestamp <= ?
			ORDER BY timestamp DESC LIMIT ?`, end, limit)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT timestamp, open, high, low, close, volume
			FROM candles WHERE timestamp BETWEEN ? AND ?
			ORDER BY timestamp ASC LIMIT ?`, start, end, limit)
	}
	if err != nil {
		return nil, err
	}
	list, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}
	if orderDesc {
		for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
			list[i], list[j] = list[j], list[i]
		}
	}
	return list, nil
}

func scanCandles(rows *sql.Rows) ([]market.Candle, error) {
	defer rows.Close()
	var list []market.Candle
	for rows.Next() {
		var (
			c     market.Candle
			ohlcv [5]sql.NullFloat64
		)
		if err := rows.Scan(&c.Timestamp, &ohlcv[0], &ohlcv[1], &ohlcv[2], &ohlcv[3], &ohlcv[4]); err != nil {
			return nil, err
		}
		c.Open, c.High, c.Low, c.Close, c.Volume = fromSQL(ohlcv[0]), fromSQL(ohlcv[1]), fromSQL(ohlcv[2]), fromSQL(ohlcv[3]), fromSQL(ohlcv[4])
		list = append(list, c)
	}
	return list, rows.Err()
}

// sqlFloat 把 NaN/Inf 写成 NULL，其余原样写入。
func sqlFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// fromSQL 把 NULL 读回 NaN。
func fromSQL(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
