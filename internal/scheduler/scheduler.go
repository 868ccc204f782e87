// Scrobblarr - Trakt Watch-State and Collection Sync for Media Servers
// Copyright 2026 Scrobblarr Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scrobblarr/scrobblarr

// Package scheduler runs the periodic sync passes on cron schedules and
// exposes them for manual triggering through the HTTP API.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scrobblarr/scrobblarr/internal/logging"
)

// Sentinel errors for trigger outcomes.
var (
	ErrUnknownTask    = errors.New("unknown task")
	ErrAlreadyRunning = errors.New("task is already running")
)

// Task is a long-running sync pass. progress, if non-nil, receives the
// completed fraction in [0, 1].
type Task interface {
	Name() string
	Run(ctx context.Context, progress func(float64)) error
}

// TaskFunc adapts a bare run function into a named Task.
func TaskFunc(name string, fn func(ctx context.Context, progress func(float64)) error) Task {
	return &taskFunc{name: name, fn: fn}
}

type taskFunc struct {
	name string
	fn   func(ctx context.Context, progress func(float64)) error
}

func (t *taskFunc) Name() string { return t.name }

func (t *taskFunc) Run(ctx context.Context, progress func(float64)) error {
	return t.fn(ctx, progress)
}

// entry tracks one registered task. running guards against overlapping
// executions: a tick that fires while the previous run is still going is
// skipped, not queued.
type entry struct {
	task    Task
	running atomic.Bool

	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
	progress float64
	schedule string
}

// setProgress records the completed fraction reported by a running task.
func (e *entry) setProgress(fraction float64) {
	e.mu.Lock()
	e.progress = fraction
	e.mu.Unlock()
}

// Scheduler owns the cron loop and the task registry.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]*entry
}

// New returns an empty scheduler. Schedules use the standard 5-field cron
// format; @every and @daily descriptors also work.
func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]*entry),
	}
}

// Add registers a task under the given cron schedule. An empty schedule
// registers the task for manual triggering only.
func (s *Scheduler) Add(task Task, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := task.Name()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("task %q already registered", name)
	}
	e := &entry{task: task, schedule: schedule}
	s.entries[name] = e

	if schedule == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		s.execute(e)
	}); err != nil {
		delete(s.entries, name)
		return fmt.Errorf("schedule %q for task %q: %w", schedule, name, err)
	}
	return nil
}

// Start begins firing schedules. ctx bounds every task execution; cancel
// it before Stop to interrupt a running pass.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the schedule loop and waits for in-flight runs started by
// cron ticks to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Trigger runs a registered task immediately on the caller's context,
// blocking until it finishes. It fails when the task is unknown or a run
// is already in flight.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}

	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %q", ErrAlreadyRunning, name)
	}
	defer e.running.Store(false)
	return s.run(ctx, e)
}

// TriggerBackground starts a registered task without waiting for it. The
// overlap check happens synchronously; the run itself uses the scheduler's
// lifetime context.
func (s *Scheduler) TriggerBackground(name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	ctx := s.ctx
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %q", ErrAlreadyRunning, name)
	}
	go func() {
		defer e.running.Store(false)
		if err := s.run(ctx, e); err != nil {
			logging.Error().Err(err).Str("task", e.task.Name()).Msg("triggered run failed")
		}
	}()
	return nil
}

// Status describes a registered task for the API. Progress is the
// completed fraction in [0, 1] reported by the most recent run; it keeps
// its final value after the run ends.
type Status struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule,omitempty"`
	Running  bool      `json:"running"`
	Progress float64   `json:"progress"`
	LastRun  time.Time `json:"last_run"`
	LastErr  string    `json:"last_error,omitempty"`
}

// Statuses reports every registered task.
func (s *Scheduler) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.entries))
	for name, e := range s.entries {
		e.mu.Lock()
		st := Status{
			Name:     name,
			Schedule: e.schedule,
			Running:  e.running.Load(),
			Progress: e.progress,
			LastRun:  e.lastRun,
		}
		if e.lastErr != nil {
			st.LastErr = e.lastErr.Error()
		}
		e.mu.Unlock()
		out = append(out, st)
	}
	return out
}

// execute is the cron-tick entry point: overlap-guarded, never panics out
// into the cron goroutine.
func (s *Scheduler) execute(e *entry) {
	if !e.running.CompareAndSwap(false, true) {
		logging.Warn().Str("task", e.task.Name()).Msg("previous run still in flight, skipping tick")
		return
	}
	defer e.running.Store(false)

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.run(ctx, e); err != nil {
		logging.Error().Err(err).Str("task", e.task.Name()).Msg("scheduled run failed")
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	name := e.task.Name()
	start := time.Now()
	logging.Info().Str("task", name).Msg("task started")

	e.setProgress(0)
	err := e.task.Run(ctx, e.setProgress)

	e.mu.Lock()
	e.lastRun = start
	e.lastErr = err
	e.mu.Unlock()

	if err != nil {
		return err
	}
	logging.Info().Str("task", name).Dur("elapsed", time.Since(start)).Msg("task finished")
	return nil
}
