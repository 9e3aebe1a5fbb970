package candles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	symbolpkg "ohlcvsync/internal/pkg/symbol"

	_ "modernc.org/sqlite"
)

// Manifest 记录某个 symbol@timeframe 库文件的统计信息。
type Manifest struct {
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	MinTime    int64  `json:"min_time"`
	MaxTime    int64  `json:"max_time"`
	Rows       int64  `json:"rows"`
	LastSyncAt int64  `json:"last_sync_at"`
	Path       string `json:"path"`
}

// SeriesRef 指向磁盘上的一个 symbol@timeframe 库文件。
type SeriesRef struct {
	Key       string `json:"key"`
	Timeframe string `json:"timeframe"`
	Path      string `json:"path"`
}

// Store 按 <root>/<SYMBOL>/<timeframe>.db 分库保存 K 线与指标，每个库单连接。
type Store struct {
	root string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("data root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, dbs: make(map[string]*sql.DB)}, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for k, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.dbs, k)
	}
	return firstErr
}

func (s *Store) db(symbol, timeframe string) (*sql.DB, string, error) {
	key := symbolpkg.StorageKey(symbol)
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	if key == "" || timeframe == "" {
		return nil, "", fmt.Errorf("symbol/timeframe 不能为空")
	}
	handle := key + "@" + timeframe
	path := s.dbPath(key, timeframe)
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[handle]; ok && db != nil {
		return db, path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, "", err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db, symbol, timeframe); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("初始化 %s 失败: %w", path, err)
	}
	s.dbs[handle] = db
	return db, path, nil
}

func (s *Store) dbPath(key, timeframe string) string {
	return filepath.Join(s.root, key, timeframe+".db")
}

// Series 扫描 root 目录，返回已存在的全部库文件（按 key、timeframe 排序）。
func (s *Store) Series() ([]SeriesRef, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []SeriesRef
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, d.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".db" {
				continue
			}
			out = append(out, SeriesRef{
				Key:       d.Name(),
				Timeframe: strings.TrimSuffix(f.Name(), ".db"),
				Path:      filepath.Join(s.root, d.Name(), f.Name()),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Timeframe < out[j].Timeframe
	})
	return out, nil
}

func (s *Store) Manifest(ctx context.Context, symbol, timeframe string) (Manifest, error) {
	db, path, err := s.db(symbol, timeframe)
	if err != nil {
		return Manifest{}, err
	}
	row := db.QueryRowContext(ctx, `SELECT symbol,timeframe,COALESCE(min_time,0),COALESCE(max_time,0),COALESCE(rows,0),COALESCE(last_sync_at,0) FROM manifest WHERE id=1`)
	var m Manifest
	if err := row.Scan(&m.Symbol, &m.Timeframe, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
		return Manifest{}, err
	}
	m.Path = path
	return m, nil
}

func ensureSchema(db *sql.DB, symbol, timeframe string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			timestamp   INTEGER PRIMARY KEY,
			datetime    TEXT NOT NULL,
			open        REAL,
			high        REAL,
			low         REAL,
			close       REAL,
			volume      REAL,
			inserted_at INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000)
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			id INTEGER PRIMARY KEY CHECK (id=1),
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			min_time INTEGER,
			max_time INTEGER,
			rows INTEGER DEFAULT 0,
			last_sync_at INTEGER
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	// 保留首次写入时的 symbol 写法（BTC/USDT），后续以目录名打开不会覆盖。
	_, err := db.Exec(`INSERT INTO manifest (id, symbol, timeframe) VALUES (1, ?, ?) ON CONFLICT(id) DO NOTHING`,
		symbolLabel(symbol), timeframe)
	return err
}

func symbolLabel(symbol string) string {
	if norm := symbolpkg.Normalize(symbol); norm != "" {
		return norm
	}
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Has 判断 symbol@timeframe 的库文件是否已存在（不会创建文件）。
func (s *Store) Has(symbol, timeframe string) bool {
	key := symbolpkg.StorageKey(symbol)
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	if key == "" || timeframe == "" {
		return false
	}
	info, err := os.Stat(s.dbPath(key, timeframe))
	return err == nil && !info.IsDir()
}
