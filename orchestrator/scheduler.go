package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"vibesync.dev/syncorch/runtime"
)

// SchedulerConfig mirrors the teacher coordinator's reconnect-backoff
// shape (Coordinator.Config's Reconnect* fields), repurposed here as a
// fixed-interval ticker instead of a backoff: the orchestrator run
// records a failed child workflow and moves on to the next project, so
// the scheduler only needs a steady cadence plus an optional iteration
// cap (spec §4.6
// "Scheduled wrapper").
type SchedulerConfig struct {
	Interval   time.Duration // default 5 minutes
	Iterations int           // 0 = run forever
}

func (c SchedulerConfig) interval() time.Duration {
	if c.Interval <= 0 {
		return 5 * time.Minute
	}
	return c.Interval
}

// Scheduler runs an Orchestrator on a fixed interval, starting a fresh
// run (Input{}) on every tick. A single iteration's failure is logged
// and does not stop the loop (spec §4.6).
type Scheduler struct {
	Orchestrator *Orchestrator
	Config       SchedulerConfig
	Logger       *logrus.Entry
}

func (s *Scheduler) logger() *logrus.Entry {
	if s.Logger == nil {
		return logrus.NewEntry(logrus.StandardLogger()).WithField("component", "scheduler")
	}
	return s.Logger
}

// Run blocks, ticking every Config.Interval, until ctx is cancelled or
// Config.Iterations runs are completed (0 means unbounded).
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
			log.Debug("scheduled sync run starting")

			result, err := s.Orchestrator.Runner.RunChild(ctx, runtime.StartOptions{}, s.Orchestrator.Run, Input{})
			if err != nil {
				log.WithError(err).Warn("scheduled sync run failed")
			} else {
				log.WithField("result", result).Debug("scheduled sync run completed")
			}

			if s.Config.Iterations > 0 && iterations >= s.Config.Iterations {
				return
			}
		}
	}
}
