/*
scheduler.go - Automated payment reminder scheduler

PURPOSE:
  Runs the notification policy on a recurrence rule (RFC 5545 RRULE) in the
  business timezone and records every run in the run log.

DESIGN:
  - One background goroutine sleeps until the next rule occurrence
  - A completed run recorded for today's date turns a scheduled tick into
    a no-op, so restarts never send the same day twice
  - Manual runs go through RunNow; force bypasses the daily guard
  - Runs are serialized: a manual run and a tick never overlap

CONFIGURATION:
  - Rule:     REMINDER_RRULE (default daily at 09:00)
  - Location: TIMEZONE, used for the rule and for "today"

USAGE:
  s, err := NewReminderScheduler(policy, runLog, loc, rule, log)
  s.Start(ctx)
  // ... later
  s.Stop()

SEE ALSO:
  - notify/policy.go: what a run does
  - notify/runlog.go: run records and the once-per-day guard
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/warp/tuition-engine/coverage"
	"github.com/warp/tuition-engine/membership"
	"github.com/warp/tuition-engine/notify"
)

// ErrAlreadyRan is returned by RunNow when today's run already completed and
// force was not set.
var ErrAlreadyRan = errors.New("reminders already sent today")

// ReminderScheduler triggers the reminder policy on a schedule.
type ReminderScheduler struct {
	policy *notify.Policy
	runs   notify.RunLog
	loc    *time.Location
	rule   *rrule.RRule
	expr   string
	log    *zap.Logger
	now    func() time.Time

	runMu sync.Mutex // one run at a time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time
	last    *notify.RunRecord
}

// SchedulerStatus is what GET /api/reminders/status reports.
type SchedulerStatus struct {
	Running  bool
	Rule     string
	Timezone string
	NextRun  *time.Time
	LastRun  *notify.RunRecord
}

// NewReminderScheduler parses rule and builds a stopped scheduler.
func NewReminderScheduler(policy *notify.Policy, runs notify.RunLog, loc *time.Location, rule string, log *zap.Logger) (*ReminderScheduler, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder rule %q: %w", rule, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReminderScheduler{
		policy: policy,
		runs:   runs,
		loc:    loc,
		rule:   r,
		expr:   rule,
		log:    log.Named("scheduler"),
		now:    time.Now,
	}, nil
}

// Start launches the background loop. Calling Start twice is a no-op.
func (s *ReminderScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.log.Info("scheduler started", zap.String("rule", s.expr), zap.String("timezone", s.loc.String()))
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *ReminderScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.nextRun = time.Time{}
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("scheduler stopped")
}

func (s *ReminderScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		next := s.nextAfter(s.now())
		if next.IsZero() {
			s.log.Warn("reminder rule has no further occurrences")
			return
		}
		s.mu.Lock()
		s.nextRun = next
		s.mu.Unlock()

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		_, err := s.run(ctx, notify.TriggerScheduled, false)
		switch {
		case errors.Is(err, ErrAlreadyRan):
			s.log.Info("scheduled run skipped, already completed today")
		case err != nil:
			s.log.Error("scheduled run failed", zap.Error(err))
		}
	}
}

// nextAfter returns the first rule occurrence strictly after t.
func (s *ReminderScheduler) nextAfter(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	local := t.In(s.loc)
	s.rule.DTStart(time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc))
	return s.rule.After(local, false)
}

// RunNow runs the policy immediately as a manual trigger.
func (s *ReminderScheduler) RunNow(ctx context.Context, force bool) (*notify.RunRecord, error) {
	return s.run(ctx, notify.TriggerManual, force)
}

func (s *ReminderScheduler) run(ctx context.Context, trigger notify.Trigger, force bool) (*notify.RunRecord, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	today := coverage.DateOf(s.now().In(s.loc))
	if !force {
		done, err := s.runs.HasCompletedRun(ctx, today)
		if err != nil {
			return nil, fmt.Errorf("check run log: %w", err)
		}
		if done {
			return nil, ErrAlreadyRan
		}
	}

	rec := notify.RunRecord{
		ID:        uuid.NewString(),
		Date:      today,
		Trigger:   trigger,
		Status:    notify.RunRunning,
		StartedAt: s.now(),
	}
	if err := s.runs.SaveRun(ctx, rec); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	sum, runErr := s.policy.RunOnce(ctx, today)

	completed := s.now()
	rec.CompletedAt = &completed
	rec.Summary = sum
	rec.Status = notify.RunCompleted
	if runErr != nil {
		rec.Status = notify.RunFailed
		rec.Error = runErr.Error()
	}
	// The record is written even when ctx was cancelled mid-run.
	if err := s.runs.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Error("could not record run", zap.String("run_id", rec.ID), zap.Error(err))
	}

	s.mu.Lock()
	s.last = &rec
	s.mu.Unlock()

	s.log.Info("reminder run recorded",
		zap.String("run_id", rec.ID),
		zap.String("trigger", string(trigger)),
		zap.String("status", string(rec.Status)),
		zap.Bool("forced", force),
	)
	return &rec, runErr
}

// Status reports whether the loop is running, the next occurrence and the
// latest run (from the run log when this process has not run yet).
func (s *ReminderScheduler) Status(ctx context.Context) (SchedulerStatus, error) {
	s.mu.Lock()
	st := SchedulerStatus{
		Running:  s.cancel != nil,
		Rule:     s.expr,
		Timezone: s.loc.String(),
		LastRun:  s.last,
	}
	if !s.nextRun.IsZero() {
		next := s.nextRun
		st.NextRun = &next
	}
	s.mu.Unlock()

	if st.LastRun == nil {
		runs, err := s.runs.ListRuns(ctx, 1)
		if err != nil {
			return st, err
		}
		if len(runs) > 0 {
			st.LastRun = &runs[0]
		}
	}
	return st, nil
}

// Runs lists recorded runs, newest first.
func (s *ReminderScheduler) Runs(ctx context.Context, limit int) ([]notify.RunRecord, error) {
	return s.runs.ListRuns(ctx, limit)
}

// SendTest sends one student a test reminder for today. It bypasses the daily
// guard and leaves no run record.
func (s *ReminderScheduler) SendTest(ctx context.Context, e membership.Enrollment) (notify.Notice, error) {
	return s.policy.SendTest(ctx, e, coverage.DateOf(s.now().In(s.loc)))
}
