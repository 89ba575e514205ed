// Package maintenance runs periodic housekeeping jobs on a cron schedule.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"campuslink.app/internal/obs"
)

// DefaultPurgeSchedule runs the blacklist purge at minute 7 of every hour.
const DefaultPurgeSchedule = "7 * * * *"

// BlacklistPurger deletes revoked-token rows whose tokens have expired.
type BlacklistPurger interface {
	PurgeExpiredBlacklist(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron    *cron.Cron
	now     func() time.Time
	timeout time.Duration
}

// New returns an idle scheduler.
func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:     time.Now,
		timeout: time.Minute,
	}
}

// SchedulePurge registers the blacklist purge under schedule.
func (s *Scheduler) SchedulePurge(schedule string, p BlacklistPurger) error {
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.purge(p) }); err != nil {
		return fmt.Errorf("schedule blacklist purge %q: %w", schedule, err)
	}
	return nil
}

func (s *Scheduler) purge(p BlacklistPurger) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := p.PurgeExpiredBlacklist(ctx, s.now().UTC())
	if err != nil {
		obs.Logger().Warn("blacklist purge failed", zap.Error(err))
		return
	}
	obs.Logger().Info("blacklist purged", zap.Int64("rows", n))
}

// Run starts the jobs and blocks until ctx ends, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
}
