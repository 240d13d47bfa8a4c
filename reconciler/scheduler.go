package reconciler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SchedulerConfig parallels orchestrator.SchedulerConfig (spec §4.7 "the
// scheduled wrapper parallels C7's").
type SchedulerConfig struct {
	Interval   time.Duration // default 30 minutes
	Iterations int           // 0 = run forever
	Input      Input
}

func (c SchedulerConfig) interval() time.Duration {
	if c.Interval <= 0 {
		return 30 * time.Minute
	}
	return c.Interval
}

// Scheduler runs a Reconciler sweep on a fixed interval. A single
// iteration's failure is logged and does not stop the loop.
type Scheduler struct {
	Reconciler *Reconciler
	Config     SchedulerConfig
	Logger     *logrus.Entry
}

func (s *Scheduler) logger() *logrus.Entry {
	if s.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger()).WithField("component", "reconciler-scheduler")
	}
	return s.Logger
}

// Run blocks, ticking every Config.Interval, until ctx is cancelled or
// Config.Iterations sweeps complete (0 means unbounded).
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Config.interval())
	defer ticker.Stop()

	iterations := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			iterations++
			log := s.logger().WithField("iteration", iterations)
			log.Debug("scheduled reconciliation sweep starting")

			result, err := s.Reconciler.Run(ctx, s.Config.Input)
			if err != nil {
				log.WithError(err).Warn("scheduled reconciliation sweep failed")
			} else {
				log.WithFields(logrus.Fields{
					"rows_scanned": result.RowsScanned,
					"stale":        len(result.StaleIDs),
				}).Debug("scheduled reconciliation sweep completed")
			}

			if s.Config.Iterations > 0 && iterations >= s.Config.Iterations {
				return
			}
		}
	}
}
