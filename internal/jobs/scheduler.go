// Package jobs runs the periodic maintenance tasks of the bot.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	SweepSchedule    = "@every 1m"
	PlanSyncSchedule = "5 0 * * *"

	planSyncTimeout = 2 * time.Minute
)

// SessionSweeper removes expired in-process sessions.
type SessionSweeper interface {
	Sweep() int
}

// PlanSyncer makes sure the billing provider knows every purchasable plan.
type PlanSyncer interface {
	EnsurePlans(ctx context.Context) error
}

type Scheduler struct {
	sweeper SessionSweeper
	plans   PlanSyncer
	logger  *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler builds a scheduler. A nil sweeper skips the session sweep,
// which is the case when sessions live in redis and expire on their own.
func NewScheduler(sweeper SessionSweeper, plans PlanSyncer, logger *zap.Logger) *Scheduler {
	return &Scheduler{sweeper: sweeper, plans: plans, logger: logger}
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if s.sweeper != nil {
		if _, err := c.AddFunc(SweepSchedule, s.SweepSessions); err != nil {
			return fmt.Errorf("failed to schedule session sweep: %w", err)
		}
	}
	if s.plans != nil {
		if _, err := c.AddFunc(PlanSyncSchedule, s.SyncPlans); err != nil {
			return fmt.Errorf("failed to schedule plan sync: %w", err)
		}
	}

	c.Start()
	s.cron = c
	s.running = true
	s.logger.Info("job scheduler started", zap.Int("jobs", len(c.Entries())))
	return nil
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("job scheduler stop timed out")
	}
	s.running = false
}

func (s *Scheduler) SweepSessions() {
	if removed := s.sweeper.Sweep(); removed > 0 {
		s.logger.Debug("expired sessions swept", zap.Int("removed", removed))
	}
}

func (s *Scheduler) SyncPlans() {
	ctx, cancel := context.WithTimeout(context.Background(), planSyncTimeout)
	defer cancel()

	if err := s.plans.EnsurePlans(ctx); err != nil {
		s.logger.Error("plan sync failed", zap.Error(err))
		return
	}
	s.logger.Info("billing plans in sync")
}
