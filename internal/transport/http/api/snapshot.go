package api

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/chromedp/chromedp"
)

// ChartSnapshotter 把图表 HTML 渲染为 PNG。
type ChartSnapshotter interface {
	Snapshot(ctx context.Context, html []byte) ([]byte, error)
}

// HeadlessSnapshotter 通过本机 Chrome/Chromium（chromedp）截图。
type HeadlessSnapshotter struct {
	Width   int
	Height  int
	Timeout time.Duration
	// Settle 等待 echarts 动画完成
	Settle time.Duration
}

func NewHeadlessSnapshotter() *HeadlessSnapshotter {
	return &HeadlessSnapshotter{Width: 1280, Height: 820, Timeout: 20 * time.Second, Settle: 1500 * time.Millisecond}
}

func (h *HeadlessSnapshotter) Snapshot(ctx context.Context, html []byte) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, h.Timeout)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(h.Width), int64(h.Height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(h.Settle),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
