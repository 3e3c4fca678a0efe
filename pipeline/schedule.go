package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler re-runs a Runner on a cron spec, resuming the same cursor
// lineage every tick. It adapts the teacher's cron-backed trigger: one
// cron.Cron drives any number of registered runs, started once on the
// first Add call.
type Scheduler struct {
	cron *cron.Cron
	once sync.Once
}

// NewScheduler builds a Scheduler on a seconds-resolution cron parser,
// matching the teacher trigger's NewCronTrigger default.
func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithSeconds())}
}

// Add registers runner to fire on spec, always with Resume: true so a
// scheduled run picks up where the previous tick left its cursor rather
// than re-ingesting from scratch. A tick's error is logged rather than
// propagated: a missed tick should not stop the schedule, the next tick
// will retry from the same cursor.
func (s *Scheduler) Add(spec string, runner *Runner, params Params) (cron.EntryID, error) {
	params.Resume = true
	id, err := s.cron.AddFunc(spec, func() {
		if _, err := runner.Run(context.Background(), params); err != nil {
			slog.Error("pipeline: scheduled run failed", "err", err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("pipeline: add schedule %q: %w", spec, err)
	}
	s.once.Do(s.cron.Start)
	return id, nil
}

// Remove cancels a previously registered schedule.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Stop halts the schedule, waiting for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
