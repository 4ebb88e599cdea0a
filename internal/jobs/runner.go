// Package jobs runs background work inside scoped contexts.
//
// Ad-hoc jobs share one trace per job id so every retry of the same job is
// correlated. Each run of a scheduled job starts a fresh trace.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/scopectx/internal/boundary"
	"github.com/GriffinCanCode/scopectx/internal/domain/operation"
	"github.com/GriffinCanCode/scopectx/internal/domain/scope"
	"github.com/GriffinCanCode/scopectx/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scopectx/internal/transport"
)

// Job kinds used as metric labels.
const (
	KindAdHoc     = "adhoc"
	KindScheduled = "scheduled"
)

// Handler does the work of one job run.
type Handler func(ctx context.Context, t *operation.Tracker) error

// Runner executes jobs through a scope boundary.
type Runner struct {
	boundary *boundary.Runner
	mapper   *transport.JobMapper
	metrics  *monitoring.Metrics
}

// NewRunner creates a job runner. metrics may be nil.
func NewRunner(b *boundary.Runner, mapper *transport.JobMapper, metrics *monitoring.Metrics) *Runner {
	return &Runner{boundary: b, mapper: mapper, metrics: metrics}
}

// RunAdHoc runs h once for job. The job's correlation id is its id.
func (r *Runner) RunAdHoc(ctx context.Context, job transport.AdHocJob, h Handler) error {
	err := r.boundary.Run(ctx, boundary.KindJob, "job:"+job.Type,
		func(sc *scope.Context) error {
			return r.mapper.InitializeAdHoc(sc, job, ctx)
		},
		boundary.WorkFunc(h),
	)
	r.record(job.Type, KindAdHoc, err)
	return err
}

// RunScheduled runs h for one occurrence of a scheduled job.
func (r *Runner) RunScheduled(ctx context.Context, job transport.ScheduledJob, h Handler) error {
	err := r.boundary.Run(ctx, boundary.KindJob, "schedule:"+job.Name,
		func(sc *scope.Context) error {
			return r.mapper.InitializeScheduled(sc, job, ctx)
		},
		boundary.WorkFunc(h),
	)
	r.record(job.Name, KindScheduled, err)
	return err
}

// Every runs job on every tick of interval until ctx is done. A failed run
// is logged and the schedule continues. It returns nil when ctx ends.
func (r *Runner) Every(ctx context.Context, job transport.ScheduledJob, interval time.Duration, h Handler) error {
	if interval <= 0 {
		return &scope.ValidationError{Op: "jobs.Every", Field: "interval", Reason: "must be positive"}
	}
	log := r.boundary.Logger().With(zap.String("job", job.Name), zap.Duration("interval", interval))
	log.Info("Schedule started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Schedule stopped")
			return nil
		case tick := <-ticker.C:
			run := job
			run.ScheduledTime = tick
			if err := r.RunScheduled(ctx, run, h); err != nil {
				log.Warn("Scheduled run failed", zap.Error(err))
			}
		}
	}
}

func (r *Runner) record(job, kind string, err error) {
	if r.metrics == nil {
		return
	}
	outcome := monitoring.OutcomeSuccess
	if err != nil {
		outcome = monitoring.OutcomeFailure
	}
	r.metrics.RecordJobRun(job, kind, outcome)
}

// Schedule is one recurring job registered with a Scheduler.
type Schedule struct {
	Job      transport.ScheduledJob
	Interval time.Duration
	Handler  Handler
}

// Scheduler runs a fixed set of schedules until its context ends.
type Scheduler struct {
	runner    *Runner
	mu        sync.Mutex
	schedules []Schedule
}

// NewScheduler creates an empty scheduler.
func NewScheduler(r *Runner) *Scheduler {
	return &Scheduler{runner: r}
}

// Add registers a schedule. It must be called before Run.
func (s *Scheduler) Add(sch Schedule) error {
	if sch.Handler == nil {
		return &scope.ValidationError{Op: "jobs.Add", Field: "handler", Reason: "must not be nil"}
	}
	if sch.Interval <= 0 {
		return &scope.ValidationError{Op: "jobs.Add", Field: "interval", Reason: "must be positive"}
	}
	if sch.Job.Name == "" {
		return &scope.ValidationError{Op: "jobs.Add", Field: "job name", Reason: "must not be blank"}
	}
	s.mu.Lock()
	s.schedules = append(s.schedules, sch)
	s.mu.Unlock()
	return nil
}

// Len returns the number of registered schedules.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.schedules)
}

// Run starts every schedule and blocks until ctx is done and all of them
// have stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	schedules := append([]Schedule(nil), s.schedules...)
	s.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, sch := range schedules {
		wg.Add(1)
		go func(sch Schedule) {
			defer wg.Done()
			if err := s.runner.Every(ctx, sch.Job, sch.Interval, sch.Handler); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(sch)
	}
	wg.Wait()
	return errors.Join(errs...)
}
