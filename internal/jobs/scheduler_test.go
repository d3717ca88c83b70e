package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type countingSweeper struct{ calls, removed int }

func (s *countingSweeper) Sweep() int {
	s.calls++
	return s.removed
}

type fakePlanSyncer struct {
	calls int
	err   error
}

func (f *fakePlanSyncer) EnsurePlans(ctx context.Context) error {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	return f.err
}

func TestSchedulerJobs(t *testing.T) {
	sweeper := &countingSweeper{removed: 2}
	plans := &fakePlanSyncer{}
	s := NewScheduler(sweeper, plans, zap.NewNop())

	s.SweepSessions()
	s.SyncPlans()

	if sweeper.calls != 1 {
		t.Errorf("sweep calls = %d, want 1", sweeper.calls)
	}
	if plans.calls != 1 {
		t.Errorf("plan sync calls = %d, want 1", plans.calls)
	}
}

func TestSyncPlansLogsFailure(t *testing.T) {
	plans := &fakePlanSyncer{err: errors.New("lago down")}
	s := NewScheduler(nil, plans, zap.NewNop())
	s.SyncPlans()
	if plans.calls != 1 {
		t.Errorf("plan sync calls = %d, want 1", plans.calls)
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(&countingSweeper{}, &fakePlanSyncer{}, zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start() should fail")
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
}

func TestStartWithoutSweeper(t *testing.T) {
	s := NewScheduler(nil, &fakePlanSyncer{}, zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop(context.Background())
	if got := len(s.cron.Entries()); got != 1 {
		t.Errorf("entries = %d, want 1", got)
	}
}
