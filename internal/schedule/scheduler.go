package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CronScheduler runs jobs on cron specs. Descriptors like "@every 5m" are
// accepted. A job whose previous run is still busy is skipped.
type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	ctx     context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]cron.EntryID),
		ctx:     context.Background(),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	id, err := c.cron.AddFunc(spec, c.wrap(job))
	if err != nil {
		logger.Error("[Schedule] Failed to schedule job", "job", job.Name(), "spec", spec, "err", err)
		return err
	}
	c.entries[job.Name()] = id
	logger.Info("[Schedule] Job scheduled", "job", job.Name(), "spec", spec)
	return nil
}

// Start runs the scheduler in the background; jobs get ctx.
func (c *CronScheduler) Start(ctx context.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
	c.cron.Start()
}

// Stop waits for running jobs to return.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) wrap(job Job) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logger.Info("[Schedule] Job skipped, still running", "job", job.Name())
			return
		}
		defer running.Store(false)

		start := time.Now()
		if err := job.Run(c.ctx); err != nil {
			logger.Error("[Schedule] Job failed", "job", job.Name(), "duration", time.Since(start), "err", err)
			return
		}
		logger.Debug("[Schedule] Job finished", "job", job.Name(), "duration", time.Since(start))
	}
}
