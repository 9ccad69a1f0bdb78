// Package jobs runs the periodic maintenance work: monthly usage resets and
// Arweave confirmation polling.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"neuralsalvage/pkg/metrics"
)

const (
	UsageResetName    = "reset-usage"
	ConfirmationsName = "poll-confirmations"

	UsageResetSpec    = "0 0 1 * *"
	ConfirmationsSpec = "@every 10m"

	jobTimeout = 5 * time.Minute
)

var ErrUnknownJob = errors.New("unknown job")

type UsageResetter interface {
	ResetUsagePeriod(ctx context.Context, now time.Time) (int64, error)
}

type ConfirmationPoller interface {
	PollConfirmations(ctx context.Context) (int, error)
}

// Job is a named unit of scheduled work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	cron *cron.Cron
	jobs map[string]Job
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(log *zap.Logger) *Scheduler {
	clog := cronLogger{log: log.Sugar()}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		jobs:   make(map[string]Job),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Default builds the scheduler with the standard maintenance jobs.
func Default(usage UsageResetter, nfts ConfirmationPoller, log *zap.Logger) (*Scheduler, error) {
	s := NewScheduler(log)
	err := s.Add(Job{
		Name: UsageResetName,
		Spec: UsageResetSpec,
		Run: func(ctx context.Context) error {
			n, err := usage.ResetUsagePeriod(ctx, time.Now())
			if err == nil {
				log.Info("usage counters reset", zap.Int64("users", n))
			}
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	err = s.Add(Job{
		Name: ConfirmationsName,
		Spec: ConfirmationsSpec,
		Run: func(ctx context.Context) error {
			n, err := nfts.PollConfirmations(ctx)
			if err == nil && n > 0 {
				log.Info("arweave confirmations updated", zap.Int("nfts", n))
			}
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Add(job Job) error {
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %q registered twice", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { _ = s.execute(s.ctx, job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	s.jobs[job.Name] = job
	return nil
}

// RunNow executes a registered job immediately, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, job)
}

// Next reports when a job fires after t.
func (s *Scheduler) Next(name string, t time.Time) (time.Time, error) {
	job, ok := s.jobs[name]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	sched, err := cron.ParseStandard(job.Spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t.UTC()), nil
}

func (s *Scheduler) Start() {
	s.log.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
	s.cron.Start()
}

// Stop cancels running jobs and waits for them until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) execute(parent context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	metrics.RecordJob(job.Name, err)
	if err != nil {
		s.log.Error("job failed", zap.String("job", job.Name), zap.Duration("took", time.Since(start)), zap.Error(err))
		return err
	}
	s.log.Debug("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
	return nil
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
