package scheduler

import (
	"context"
	"fmt"

	"ohlcvsync/internal/logger"

	"github.com/robfig/cron/v3"
)

// CronScheduler 按 cron 表达式（秒级，6 段）触发任务，任务之间不重叠。
type CronScheduler struct {
	Spec           string
	RunImmediately bool

	ctx  context.Context
	cron *cron.Cron
}

func NewCronScheduler(ctx context.Context, spec string) (*CronScheduler, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ValidateCron(spec); err != nil {
		return nil, err
	}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &CronScheduler{Spec: spec, ctx: ctx, cron: c}, nil
}

const cronFields = cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// ValidateCron 校验 6 段（含秒）cron 表达式或 @daily 之类的描述符。
func ValidateCron(spec string) error {
	if _, err := cron.NewParser(cronFields).Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

func (s *CronScheduler) Start(task func()) {
	if s == nil || s.cron == nil {
		return
	}
	if task == nil {
		logger.Warnf("CronScheduler: task is nil, exit")
		return
	}
	if _, err := s.cron.AddFunc(s.Spec, task); err != nil {
		logger.Errorf("CronScheduler: register %q failed: %v", s.Spec, err)
		return
	}
	logger.Infof("CronScheduler: started spec=%q run_immediately=%v", s.Spec, s.RunImmediately)
	if s.RunImmediately {
		task()
	}
	s.cron.Start()
	<-s.ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	logger.Infof("CronScheduler: ctx done, exit")
}
