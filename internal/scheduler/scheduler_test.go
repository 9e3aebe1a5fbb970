package scheduler

import (
	"context"
	"testing"
	"time"

	"ohlcvsync/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDropUnclosedKlineAt(t *testing.T) {
	tf, err := market.ParseTimeframe("1d")
	require.NoError(t, err)
	day := tf.Millis()
	open := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	klines := []market.Candle{{Timestamp: open - day}, {Timestamp: open}}

	midBar := time.UnixMilli(open).Add(12 * time.Hour)
	out := dropUnclosedKlineAt(klines, tf, midBar, 10*time.Second)
	require.Len(t, out, 1)
	assert.Equal(t, open-day, out[0].Timestamp)

	// 收盘后宽限期内仍视为未收盘
	justClosed := time.UnixMilli(open + day).Add(5 * time.Second)
	assert.Len(t, dropUnclosedKlineAt(klines, tf, justClosed, 10*time.Second), 1)

	afterGrace := time.UnixMilli(open + day).Add(11 * time.Second)
	assert.Len(t, dropUnclosedKlineAt(klines, tf, afterGrace, 10*time.Second), 2)

	assert.Empty(t, dropUnclosedKlineAt(nil, tf, afterGrace, 0))
}

func TestAlignedNextTimes(t *testing.T) {
	s := NewAlignedScheduler(context.Background(), 24*time.Hour, time.Minute)

	now := time.Date(2024, 3, 5, 13, 0, 0, 0, time.UTC)
	nextClose, wakeAt, untilClose, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), nextClose)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 1, 0, 0, time.UTC), wakeAt)
	assert.Equal(t, 11*time.Hour, untilClose)
	assert.Equal(t, 11*time.Hour+time.Minute, wait)

	// 收盘后 30s，仍在 offset 窗口内，应在当天 00:01 执行
	now = time.Date(2024, 3, 6, 0, 0, 30, 0, time.UTC)
	_, wakeAt, _, wait = s.nextTimes(now)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 1, 0, 0, time.UTC), wakeAt)
	assert.Equal(t, 30*time.Second, wait)
}

func TestAlignedSchedulerRunImmediatelyThenExits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewAlignedScheduler(ctx, time.Hour, 0)
	s.RunImmediately = true

	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(func() {
			calls++
			cancel()
		})
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not exit after cancel")
	}
	assert.Equal(t, 1, calls)
}

func TestValidateCron(t *testing.T) {
	assert.NoError(t, ValidateCron("0 5 0 * * *"))
	assert.NoError(t, ValidateCron("@daily"))
	assert.Error(t, ValidateCron("5 0 * * *"))
	assert.Error(t, ValidateCron(""))

	_, err := NewCronScheduler(context.Background(), "not a cron")
	assert.Error(t, err)
}

func TestCronSchedulerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewCronScheduler(ctx, "@every 1h")
	require.NoError(t, err)
	s.RunImmediately = true

	ran := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(func() { ran <- struct{}{} })
	}()
	<-ran
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cron scheduler did not exit after cancel")
	}
}
