package coins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ohlcvsync/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// watchlistSchema 接受裸数组或 {symbols: [...], exclude: [...]} 两种写法。
const watchlistSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "list": {"type": "array", "items": {"type": "string", "minLength": 1}}
  },
  "oneOf": [
    {"$ref": "#/definitions/list"},
    {
      "type": "object",
      "required": ["symbols"],
      "additionalProperties": false,
      "properties": {
        "symbols": {"$ref": "#/definitions/list"},
        "exclude": {"$ref": "#/definitions/list"}
      }
    }
  ]
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("watchlist.json", strings.NewReader(watchlistSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("watchlist.json")
	})
	return schemaCompiled, schemaErr
}

type watchlistDoc struct {
	Symbols []string `json:"symbols"`
	Exclude []string `json:"exclude"`
}

// decodeWatchlist 按 schema 校验 JSON 监控列表后解析。
func decodeWatchlist(raw []byte) (watchlistDoc, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return watchlistDoc{}, err
	}
	schema, err := compiledSchema()
	if err != nil {
		return watchlistDoc{}, fmt.Errorf("watchlist schema compile failed: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return watchlistDoc{}, fmt.Errorf("watchlist schema: %w", err)
	}
	var doc watchlistDoc
	if list, ok := v.([]any); ok {
		for _, item := range list {
			doc.Symbols = append(doc.Symbols, item.(string))
		}
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return watchlistDoc{}, err
	}
	return doc, nil
}

// filterSymbols 标准化 symbols 并剔除 exclude 中的交易对。
func filterSymbols(doc watchlistDoc, quote string) ([]string, error) {
	symbols, err := NormalizeSymbols(doc.Symbols, quote)
	if err != nil || len(doc.Exclude) == 0 {
		return symbols, err
	}
	skip := make(map[string]struct{}, len(doc.Exclude))
	if excluded, err := NormalizeSymbols(doc.Exclude, quote); err == nil {
		for _, s := range excluded {
			skip[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := skip[s]; ok {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("symbol list is empty after exclude")
	}
	return out, nil
}

func readWatchlistFile(path string) (watchlistDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return watchlistDoc{}, fmt.Errorf("reading symbol file: %w", err)
	}
	var node any
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return watchlistDoc{}, fmt.Errorf("parsing symbol file: %w", err)
	}
	asJSON, err := json.Marshal(node)
	if err != nil {
		return watchlistDoc{}, fmt.Errorf("parsing symbol file: %w", err)
	}
	doc, err := decodeWatchlist(asJSON)
	if err != nil {
		return watchlistDoc{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// WatchlistSnapshot 是某一时刻的监控列表。
type WatchlistSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Symbols  []string
}

// Watchlist 从 YAML 文件加载监控列表并监听文件变化：
//
//	symbols:
//	  - BTC/USDT
//	  - ETH
//	exclude: [LUNA]
//
// 重载失败时保留上一版列表。
type Watchlist struct {
	path  string
	quote string
	v     *viper.Viper

	mu       sync.RWMutex
	snapshot WatchlistSnapshot
}

func NewWatchlist(path, quote string) (*Watchlist, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("symbol file not configured")
	}
	w := &Watchlist{path: path, quote: quote}
	if err := w.reload(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("watchlist reload failed (%s %s): %v", evt.Op, evt.Name, err)
		}
	})
	v.WatchConfig()
	w.v = v
	return w, nil
}

func (w *Watchlist) Name() string { return "file" }

func (w *Watchlist) List(_ context.Context) ([]string, error) {
	snap := w.Snapshot()
	if len(snap.Symbols) == 0 {
		return nil, errors.New("watchlist is empty")
	}
	return snap.Symbols, nil
}

// Snapshot 返回当前列表的拷贝。
func (w *Watchlist) Snapshot() WatchlistSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := w.snapshot
	out.Symbols = append([]string(nil), w.snapshot.Symbols...)
	return out
}

func (w *Watchlist) reload() error {
	doc, err := readWatchlistFile(w.path)
	if err != nil {
		return err
	}
	symbols, err := filterSymbols(doc, w.quote)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.snapshot = WatchlistSnapshot{
		Version:  w.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Symbols:  symbols,
	}
	version := w.snapshot.Version
	w.mu.Unlock()
	logger.Infof("watchlist loaded %d symbols from %s (v%d)", len(symbols), filepath.Base(w.path), version)
	return nil
}
