package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"astrobot-service/internal/db"
	"astrobot-service/internal/domain/billing"
	xerrors "astrobot-service/internal/pkg/errors"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set, skip postgres integration test")
	}

	ctx := context.Background()
	pool, err := db.NewPostgresPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := NewDB(pool).Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func TestUsageStoreEnsureUsageRowNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewUsageStore(newTestPool(t))
	userID := "test-" + uuid.NewString()
	t.Cleanup(func() { store.DeleteUsage(context.Background(), userID) })

	ps, pe := billing.PeriodWindow(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 7)
	if err := store.EnsureUsageRow(ctx, userID, ps, pe, "weekly_49"); err != nil {
		t.Fatal(err)
	}
	if err := store.IncrementUsage(ctx, userID, ps, pe, 4); err != nil {
		t.Fatal(err)
	}
	if err := store.EnsureUsageRow(ctx, userID, ps, pe, "daily_9"); err != nil {
		t.Fatal(err)
	}

	u, err := store.GetUsage(ctx, userID, ps, pe)
	if err != nil {
		t.Fatal(err)
	}
	if u.UsedCount != 4 || u.PlanCode != "weekly_49" {
		t.Errorf("usage = %+v, want used 4 on weekly_49", u)
	}
	if !u.PeriodStart.Equal(ps) || !u.PeriodEnd.Equal(pe) {
		t.Errorf("window = %v..%v, want %v..%v", u.PeriodStart, u.PeriodEnd, ps, pe)
	}

	if err := store.DeleteUsage(ctx, userID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetUsage(ctx, userID, ps, pe); !errors.Is(err, xerrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
