package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/medstock/medstock-backend/pkg/logger"
	"github.com/medstock/medstock-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// LockFactory returns the lock guarding a single job across workers.
type LockFactory func(job string) (Lock, error)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockFactory
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval. Each job holds its
// own lock, so a slow job on one worker never blocks a different job.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    map[string]Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	locks := make(map[string]Lock)
	for _, job := range registry.Jobs() {
		lock, err := params.Locks(job.Name())
		if err != nil {
			return nil, fmt.Errorf("lock for %s: %w", job.Name(), err)
		}
		locks[job.Name()] = lock
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    locks,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle finished with failures", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every job a single time. Failures do not stop later jobs and
// are combined into the returned error.
func (s *Service) RunOnce(ctx context.Context) error {
	var errs error
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		errs = multierr.Append(errs, s.runLocked(ctx, job))
	}
	return errs
}

func (s *Service) runLocked(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	lock := s.locks[name]
	held, err := lock.Acquire(jobCtx)
	if err != nil {
		s.metrics.IncFailure(name)
		return fmt.Errorf("%s: acquire lock: %w", name, err)
	}
	if !held {
		s.metrics.IncSkipped(name)
		s.logg.Info(jobCtx, "job held by another worker")
		return nil
	}
	defer func() {
		if err := lock.Release(jobCtx); err != nil {
			s.logg.Warn(s.logg.WithField(jobCtx, "error", err.Error()), "job lock release failed")
		}
	}()

	start := time.Now()
	err = job.Run(jobCtx)
	elapsed := time.Since(start)
	s.metrics.ObserveDuration(name, elapsed)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(jobCtx, "job failed", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(jobCtx, "job completed")
	return nil
}
