package stats

import (
	"context"
	"testing"
	"time"

	"agenthub/internal/models"
	"agenthub/internal/repository/memory"
)

func resolvedSignal(strategyID uint64, result models.SignalResult, pnl int64) *models.Signal {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := int64(10000)
	value := entry + pnl
	return &models.Signal{
		StrategyID:    strategyID,
		Direction:     models.DirectionUp,
		EntryValue:    &entry,
		Status:        models.SignalStatusResolved,
		Result:        &result,
		PnLBps:        &pnl,
		ResolvedValue: &value,
		ExpiresAt:     at,
		ResolvedAt:    &at,
	}
}

func newStrategy(t *testing.T, repo *memory.Store) uint64 {
	t.Helper()
	st := &models.Strategy{Owner: "alice", Name: "btc momentum", MarketKind: models.MarketKindCrypto, BaseMarket: "BTC-USD"}
	if err := repo.CreateStrategy(context.Background(), st); err != nil {
		t.Fatalf("create strategy: %v", err)
	}
	return st.ID
}

func TestRecomputeWinLoss(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	id := newStrategy(t, repo)
	for _, sig := range []*models.Signal{
		resolvedSignal(id, models.SignalResultWin, 200),
		resolvedSignal(id, models.SignalResultLose, -100),
	} {
		if err := repo.InsertSignal(ctx, sig); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	agg := &Aggregator{Repo: repo}
	got, err := agg.Recompute(ctx, id)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got.WinRateBps != 5000 || got.TotalPnLBps != 100 || got.AvgPnLBps != 50 {
		t.Fatalf("unexpected rates: %+v", got)
	}
	if got.BestWinBps != 200 || got.WorstLossBps != -100 {
		t.Fatalf("unexpected best/worst: %+v", got)
	}
	if got.TotalSignals != 2 || got.WinningSignals != 1 || got.LosingSignals != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	id := newStrategy(t, repo)
	_ = repo.InsertSignal(ctx, resolvedSignal(id, models.SignalResultWin, 300))
	_ = repo.InsertFollower(ctx, &models.Follower{StrategyID: id, Wallet: "0xabc"})

	calls := 0
	agg := &Aggregator{Repo: repo, Now: func() time.Time {
		calls++
		return time.Date(2026, 1, 1, 0, 0, calls, 0, time.UTC)
	}}
	first, err := agg.Recompute(ctx, id)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := agg.Recompute(ctx, id)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if *first != *second {
		t.Fatalf("expected identical rows:\n%+v\n%+v", *first, *second)
	}
	if first.Followers != 1 {
		t.Fatalf("expected 1 follower, got %d", first.Followers)
	}
}

func TestRecomputeSelfHeals(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	id := newStrategy(t, repo)
	_ = repo.InsertSignal(ctx, resolvedSignal(id, models.SignalResultLose, -50))
	_, _ = repo.UpsertStrategyStats(ctx, &models.StrategyStats{StrategyID: id, TotalSignals: 99, WinningSignals: 42})

	agg := &Aggregator{Repo: repo}
	got, err := agg.Recompute(ctx, id)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got.TotalSignals != 1 || got.WinningSignals != 0 || got.WorstLossBps != -50 {
		t.Fatalf("expected healed row, got %+v", got)
	}
}

func TestComputeCountsAllStatuses(t *testing.T) {
	push := models.SignalResultPush
	zero := int64(0)
	got := Compute(7, []models.Signal{
		{Status: models.SignalStatusOpen},
		{Status: models.SignalStatusCancelled},
		{Status: models.SignalStatusResolved, Result: &push, PnLBps: &zero},
		*resolvedSignal(7, models.SignalResultWin, 100),
	}, 3)

	if got.TotalSignals != 4 || got.OpenSignals != 1 || got.CancelledSignals != 1 || got.PushSignals != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	// Pushes count toward the resolved denominator.
	if got.WinRateBps != 5000 || got.AvgPnLBps != 50 {
		t.Fatalf("unexpected rates: %+v", got)
	}
	if got.Followers != 3 || got.StrategyID != 7 {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestComputeNoResolved(t *testing.T) {
	got := Compute(1, []models.Signal{{Status: models.SignalStatusOpen}}, 0)
	if got.WinRateBps != 0 || got.AvgPnLBps != 0 || got.BestWinBps != 0 || got.WorstLossBps != 0 {
		t.Fatalf("expected zero rates, got %+v", got)
	}
}

func TestRecomputeAll(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	a := newStrategy(t, repo)
	b := newStrategy(t, repo)
	_ = repo.InsertSignal(ctx, resolvedSignal(b, models.SignalResultWin, 10))

	agg := &Aggregator{Repo: repo}
	n, err := agg.RecomputeAll(ctx)
	if err != nil {
		t.Fatalf("recompute all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 strategies, got %d", n)
	}
	row, _ := repo.GetStrategyStats(ctx, a)
	if row == nil || row.TotalSignals != 0 {
		t.Fatalf("expected empty row for a, got %+v", row)
	}
	row, _ = repo.GetStrategyStats(ctx, b)
	if row == nil || row.WinningSignals != 1 {
		t.Fatalf("expected win for b, got %+v", row)
	}
}
