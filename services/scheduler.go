// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// ScheduleConfig lists the periodic jobs. A nil target or zero interval skips that job.
type ScheduleConfig struct {
	Ranking        *RankingService
	RankingEvery   time.Duration
	Ledger         *CreditLedger
	ReconcileEvery time.Duration
	Deduper        *MemoryDeduper
	PurgeEvery     time.Duration
}

// StartScheduler registers the jobs and starts them. Each job runs in
// singleton mode so a slow run is never overlapped by the next tick.
// Callers stop it with Shutdown.
func StartScheduler(ctx context.Context, cfg ScheduleConfig, log *zap.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	add := func(name string, every time.Duration, run func()) error {
		if every <= 0 {
			return nil
		}
		_, err := sched.NewJob(
			gocron.DurationJob(every),
			gocron.NewTask(run),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		return err
	}

	if cfg.Ranking != nil {
		if err := add("ranking-refresh", cfg.RankingEvery, func() {
			if _, err := cfg.Ranking.Refresh(ctx); err != nil {
				log.Error("[Scheduler] ranking refresh failed", zap.Error(err))
			}
		}); err != nil {
			return nil, err
		}
	}

	if cfg.Ledger != nil {
		if err := add("ledger-reconcile", cfg.ReconcileEvery, func() {
			n, err := cfg.Ledger.Reconcile(ctx)
			if err != nil {
				log.Error("[Scheduler] ledger reconcile failed", zap.Error(err))
				return
			}
			if n > 0 {
				log.Info("[Scheduler] ledger reconciled", zap.Int("entries", n))
			}
		}); err != nil {
			return nil, err
		}
	}

	if cfg.Deduper != nil {
		if err := add("dedupe-purge", cfg.PurgeEvery, func() {
			if n := cfg.Deduper.Purge(); n > 0 {
				log.Debug("[Scheduler] expired dedupe keys purged", zap.Int("keys", n))
			}
		}); err != nil {
			return nil, err
		}
	}

	sched.Start()
	return sched, nil
}
