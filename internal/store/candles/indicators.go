package candles

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ohlcvsync/internal/indicator"
)

const (
	indicatorTable = "indicators"
	stagingTable   = "indicators_staging"
)

var baseIndicatorColumns = []string{"timestamp", "datetime", "symbol", "open", "high", "low", "close", "volume"}

func indicatorDDL(table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `CREATE TABLE %s (
		timestamp INTEGER PRIMARY KEY,
		datetime  TEXT NOT NULL,
		symbol    TEXT NOT NULL,
		open      REAL,
		high      REAL,
		low       REAL,
		close     REAL,
		volume    REAL`, table)
	for _, col := range indicator.Columns() {
		fmt.Fprintf(&b, ",\n\t\t%s REAL", col)
	}
	b.WriteString("\n\t)")
	return b.String()
}

func indicatorColumns() []string {
	return append(append([]string{}, baseIndicatorColumns...), indicator.Columns()...)
}

// ReplaceIndicators 在一个事务内整表替换指标：写入 staging 表后删除旧表并重命名，
// 读方只会看到旧表或完整的新表。
func (s *Store) ReplaceIndicators(ctx context.Context, symbol, timeframe string, rows []indicator.Row) (int, error) {
	db, _, err := s.db(symbol, timeframe)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+stagingTable); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, indicatorDDL(stagingTable)); err != nil {
		return 0, fmt.Errorf("创建 staging 表失败: %w", err)
	}
	cols := indicatorColumns()
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		stagingTable, strings.Join(cols, ","), placeholders))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for i := range rows {
		r := &rows[i]
		args[0], args[1], args[2] = r.Timestamp, r.DateTime(), r.Symbol
		args[3], args[4], args[5], args[6], args[7] = sqlFloat(r.Open), sqlFloat(r.High), sqlFloat(r.Low), sqlFloat(r.Close), sqlFloat(r.Volume)
		for j, f := range r.Fields() {
			args[len(baseIndicatorColumns)+j] = *f
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("写入指标行 %s 失败: %w", r.DateTime(), err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+indicatorTable); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE `+stagingTable+` RENAME TO `+indicatorTable); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// LoadIndicators 读取指标表（升序）；limit > 0 时只取最近 limit 行。表不存在时返回空。
func (s *Store) LoadIndicators(ctx context.Context, symbol, timeframe string, limit int) ([]indicator.Row, error) {
	db, _, err := s.db(symbol, timeframe)
	if err != nil {
		return nil, err
	}
	var name string
	err = db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, indicatorTable).Scan(&name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(indicatorColumns(), ","), indicatorTable)
	var rows *sql.Rows
	if limit > 0 {
		rows, err = db.QueryContext(ctx, `SELECT * FROM (`+query+` ORDER BY timestamp DESC LIMIT ?) ORDER BY timestamp ASC`, limit)
	} else {
		rows, err = db.QueryContext(ctx, query+` ORDER BY timestamp ASC`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []indicator.Row
	for rows.Next() {
		var (
			r        indicator.Row
			datetime string
			ohlcv    [5]sql.NullFloat64
		)
		dest := []any{&r.Timestamp, &datetime, &r.Symbol, &ohlcv[0], &ohlcv[1], &ohlcv[2], &ohlcv[3], &ohlcv[4]}
		for _, f := range r.Fields() {
			dest = append(dest, f)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		r.Open, r.High, r.Low, r.Close, r.Volume = fromSQL(ohlcv[0]), fromSQL(ohlcv[1]), fromSQL(ohlcv[2]), fromSQL(ohlcv[3]), fromSQL(ohlcv[4])
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ indicator.SeriesStore = (*Store)(nil)
