// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package scheduler

import (
	"context"
	"time"

	"github.com/formworks/formworks/internal/logging"
)

// Job is one recurring unit of background work.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Run executes one tick. Errors are logged; they do not stop the
	// ticker.
	Run(ctx context.Context) error
}

// IntervalService runs a Job on a fixed interval as a suture.Service.
// Ticks are processed serially, so one job type never overlaps itself;
// a tick that outlasts the interval simply delays the next tick.
type IntervalService struct {
	job      Job
	interval time.Duration

	// runOnStart fires the job once immediately rather than waiting a
	// full interval for the first tick.
	runOnStart bool
}

// NewIntervalService wraps a job with a fixed-interval ticker.
func NewIntervalService(job Job, interval time.Duration, runOnStart bool) *IntervalService {
	return &IntervalService{job: job, interval: interval, runOnStart: runOnStart}
}

// Serve implements suture.Service. Blocks until the context is
// canceled.
func (s *IntervalService) Serve(ctx context.Context) error {
	logging.Info().
		Str("job", s.job.Name()).
		Dur("interval", s.interval).
		Msg("Starting background job")

	if s.runOnStart {
		s.runOnce(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("job", s.job.Name()).Msg("Background job stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *IntervalService) runOnce(ctx context.Context) {
	start := time.Now()
	if err := s.job.Run(ctx); err != nil {
		logging.Error().
			Err(err).
			Str("job", s.job.Name()).
			Dur("duration", time.Since(start)).
			Msg("Background job tick failed")
		return
	}
	logging.Debug().
		Str("job", s.job.Name()).
		Dur("duration", time.Since(start)).
		Msg("Background job tick completed")
}

// JobFunc adapts a function to the Job interface.
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

// Name returns the job name.
func (j JobFunc) Name() string { return j.JobName }

// Run invokes the wrapped function.
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }
