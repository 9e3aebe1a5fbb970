package coins

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestWatchlistLoadsBothShapes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "symbols.yaml")
	writeFile(t, path, "symbols:\n  - BTC/USDT\n  - eth\n  - SOLUSDT\nexclude: [sol]\n")

	w, err := NewWatchlist(path, "USDT")
	require.NoError(t, err)
	out, err := w.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, out)
	assert.Equal(t, int64(1), w.Snapshot().Version)

	listPath := filepath.Join(dir, "list.yaml")
	writeFile(t, listPath, "- ADAUSDT\n")
	w, err = NewWatchlist(listPath, "USDT")
	require.NoError(t, err)
	out, err = w.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ADA/USDT"}, out)
}

func TestWatchlistRejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"scalar.yaml":  "symbols: BTC\n",
		"numbers.yaml": "symbols: [1, 2]\n",
		"extra.yaml":   "symbols: [BTC]\nquote: USDT\n",
		"empty.yaml":   "",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name)
		writeFile(t, path, body)
		_, err := NewWatchlist(path, "USDT")
		assert.Error(t, err, name)
	}
	_, err := NewWatchlist(filepath.Join(dir, "missing.yaml"), "USDT")
	assert.Error(t, err)
}

func TestWatchlistKeepsPreviousSnapshotOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	writeFile(t, path, "symbols: [BTC]\n")
	w, err := NewWatchlist(path, "USDT")
	require.NoError(t, err)

	writeFile(t, path, "symbols: [1]\n")
	assert.Error(t, w.reload())
	out, err := w.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USDT"}, out)
}

func TestWatchlistReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	writeFile(t, path, "symbols: [BTC]\n")
	w, err := NewWatchlist(path, "USDT")
	require.NoError(t, err)

	writeFile(t, path, "symbols: [BTC, ETH]\n")
	assert.Eventually(t, func() bool {
		out, err := w.List(context.Background())
		return err == nil && len(out) == 2
	}, 5*time.Second, 50*time.Millisecond)
	assert.GreaterOrEqual(t, w.Snapshot().Version, int64(2))
}
