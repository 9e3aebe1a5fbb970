package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"ohlcvsync/internal/indicator"
	"ohlcvsync/internal/ingest"
	"ohlcvsync/internal/market"
)

// StartupSummary 启动时打印的配置摘要。
type StartupSummary struct {
	Mode      string
	Exchange  string
	Source    string
	Timeframe string
	DataRoot  string
	Symbols   string
	Schedule  string
	HTTPAddr  string
	Analytics string
	PowerBI   bool
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "  运行模式: %s\n", s.Mode)
	fmt.Fprintf(w, "  数据源:   %s (%s)\n", s.Exchange, s.Source)
	fmt.Fprintf(w, "  周期:     %s\n", s.Timeframe)
	fmt.Fprintf(w, "  数据目录: %s\n", s.DataRoot)
	fmt.Fprintf(w, "  币种来源: %s\n", s.Symbols)
	fmt.Fprintf(w, "  调度:     %s\n", orDash(s.Schedule))
	fmt.Fprintf(w, "  HTTP:     %s\n", orDash(s.HTTPAddr))
	fmt.Fprintf(w, "  分析库:   %s\n", orDash(s.Analytics))
	fmt.Fprintf(w, "  BI 刷新:  %v\n", s.PowerBI)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

// RunSummary 汇总一轮运行各阶段的结果。
type RunSummary struct {
	Stage      Stage
	Timeframe  string
	Symbols    []string
	Sync       []ingest.SymbolReport
	Indicators []indicator.Result
	MergeRan   bool
	Merged     int
	MergeErr   error
	BIRan      bool
	BIErr      error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed 返回同步或指标阶段失败的 symbol（去重，保持出现顺序）。
func (s *RunSummary) Failed() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	add := func(sym string) {
		if _, ok := seen[sym]; ok {
			return
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	for _, r := range s.Sync {
		if r.Err() != nil {
			add(r.Symbol)
		}
	}
	for _, r := range s.Indicators {
		if r.Err != nil {
			add(r.Symbol)
		}
	}
	return out
}

func (s *RunSummary) Inserted() int {
	total := 0
	for _, r := range s.Sync {
		total += r.Inserted
	}
	return total
}

func (s *RunSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *RunSummary) Fprint(w io.Writer) {
	if s == nil {
		return
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))
	fmt.Fprintf(w, "[%s] stage=%s timeframe=%s symbols=%d duration=%s\n",
		s.StartedAt.UTC().Format(market.DateTimeLayout), s.Stage, s.Timeframe, len(s.Symbols),
		s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))

	if len(s.Sync) > 0 {
		fmt.Fprintln(w, "[同步 (SYNC)]")
		for _, r := range s.Sync {
			if err := r.Err(); err != nil {
				fmt.Fprintf(w, "  ✗ %-14s 失败: %v (pages=%d inserted=%d)\n", r.Symbol, err, r.Pages, r.Inserted)
				continue
			}
			fmt.Fprintf(w, "  ✓ %-14s pages=%d fetched=%d inserted=%d next=%s stop=%s\n",
				r.Symbol, r.Pages, r.Fetched, r.Inserted, market.FormatTimestamp(r.Next), r.Stop)
		}
		fmt.Fprintf(w, "  合计新增: %d\n", s.Inserted())
	}

	if len(s.Indicators) > 0 {
		fmt.Fprintln(w, "[指标 (INDICATORS)]")
		for _, r := range s.Indicators {
			if r.Err != nil {
				fmt.Fprintf(w, "  ✗ %-14s 失败: %v\n", r.Symbol, r.Err)
				continue
			}
			fmt.Fprintf(w, "  ✓ %-14s rows=%d\n", r.Symbol, r.Rows)
		}
	}

	if s.MergeRan {
		if s.MergeErr != nil {
			fmt.Fprintf(w, "[合并视图] 失败: %v\n", s.MergeErr)
		} else {
			fmt.Fprintf(w, "[合并视图] rows=%d\n", s.Merged)
		}
	}
	if s.BIRan {
		if s.BIErr != nil {
			fmt.Fprintf(w, "[BI 刷新] 失败: %v\n", s.BIErr)
		} else {
			fmt.Fprintln(w, "[BI 刷新] 已提交")
		}
	}
	if failed := s.Failed(); len(failed) > 0 {
		fmt.Fprintf(w, "失败币种: %s\n", strings.Join(failed, ", "))
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
