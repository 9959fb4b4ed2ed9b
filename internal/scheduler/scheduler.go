// Package scheduler triggers the refresh job on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/user-dashboard/internal/refresh"
)

// Job is the work run on every tick.
type Job interface {
	Run(ctx context.Context, trigger string) (*refresh.Result, error)
}

// Scheduler runs a Job on a standard five-field cron expression.
type Scheduler struct {
	cron *cron.Cron
	job  Job
	spec string
	ctx  context.Context
}

// ParseSpec validates a cron expression.
func ParseSpec(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return eris.Wrapf(err, "scheduler: invalid cron expression %q", spec)
	}
	return nil
}

// New registers job under spec. Ticks that find a run still in progress
// are skipped. ctx bounds every run started by the scheduler.
func New(ctx context.Context, spec string, job Job) (*Scheduler, error) {
	if err := ParseSpec(spec); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cron: cron.New(cron.WithLogger(cronLogger{})),
		job:  job,
		spec: spec,
		ctx:  ctx,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, eris.Wrap(err, "scheduler: register job")
	}
	return s, nil
}

func (s *Scheduler) tick() {
	log := zap.L().With(zap.String("component", "scheduler"))
	_, err := s.job.Run(s.ctx, refresh.TriggerSchedule)
	switch {
	case errors.Is(err, refresh.ErrSyncRunning):
		log.Warn("scheduler: previous run still in progress, skipping tick")
	case err != nil:
		log.Error("scheduler: scheduled run failed", zap.Error(err))
	}
}

// Start begins scheduling in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	entries := s.cron.Entries()
	if len(entries) > 0 {
		zap.L().Info("scheduler: started",
			zap.String("spec", s.spec),
			zap.Time("next_run", entries[0].Next),
		)
	}
}

// Stop stops scheduling and waits for a running job to return or for ctx
// to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		zap.L().Warn("scheduler: stop timed out with a run in progress")
	}
}

// cronLogger routes cron's own logging to zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	zap.L().Debug("cron: "+msg, fields(keysAndValues)...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	zap.L().Error("cron: "+msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(kv []any) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, zap.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
