// Package stats maintains the per-strategy performance row as a full recomputation
// over the strategy's current signals and followers.
package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"agenthub/internal/models"
	"agenthub/internal/repository"
)

type Aggregator struct {
	Repo   repository.Repository
	Logger *zap.Logger
	Now    func() time.Time

	// locks serializes read-then-write per strategy so the last writer saw every prior commit.
	locks sync.Map
}

// Compute derives stats from a signal set. It does no I/O.
func Compute(strategyID uint64, signals []models.Signal, followers int64) models.StrategyStats {
	out := models.StrategyStats{StrategyID: strategyID, Followers: followers}
	var resolved int64
	for _, sig := range signals {
		out.TotalSignals++
		switch sig.Status {
		case models.SignalStatusOpen:
			out.OpenSignals++
			continue
		case models.SignalStatusCancelled:
			out.CancelledSignals++
			continue
		case models.SignalStatusResolved:
		default:
			continue
		}
		if sig.Result == nil {
			continue
		}
		resolved++
		var pnl int64
		if sig.PnLBps != nil {
			pnl = *sig.PnLBps
		}
		out.TotalPnLBps += pnl
		switch *sig.Result {
		case models.SignalResultWin:
			if out.WinningSignals == 0 || pnl > out.BestWinBps {
				out.BestWinBps = pnl
			}
			out.WinningSignals++
		case models.SignalResultLose:
			if out.LosingSignals == 0 || pnl < out.WorstLossBps {
				out.WorstLossBps = pnl
			}
			out.LosingSignals++
		case models.SignalResultPush:
			out.PushSignals++
		}
	}
	if resolved > 0 {
		out.WinRateBps = out.WinningSignals * 10000 / resolved
		out.AvgPnLBps = out.TotalPnLBps / resolved
	}
	return out
}

// Recompute rebuilds and upserts the stats row. When nothing changed the stored row is
// returned as-is so repeated calls yield identical rows.
func (a *Aggregator) Recompute(ctx context.Context, strategyID uint64) (*models.StrategyStats, error) {
	if a == nil || a.Repo == nil {
		return nil, errors.New("stats aggregator not configured")
	}
	mu := a.lockFor(strategyID)
	mu.Lock()
	defer mu.Unlock()

	signals, err := a.Repo.ListSignalsByStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	followers, err := a.Repo.CountFollowers(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	next := Compute(strategyID, signals, followers)

	current, err := a.Repo.GetStrategyStats(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if current != nil && current.SameCounters(next) {
		return current, nil
	}

	next.UpdatedAt = a.now()
	saved, err := a.Repo.UpsertStrategyStats(ctx, &next)
	if err != nil {
		return nil, err
	}
	if a.Logger != nil {
		a.Logger.Debug("strategy stats updated",
			zap.Uint64("strategy_id", strategyID),
			zap.Int64("total_signals", next.TotalSignals),
			zap.Int64("win_rate_bps", next.WinRateBps),
			zap.Int64("total_pnl_bps", next.TotalPnLBps),
		)
	}
	return saved, nil
}

// RecomputeAll heals every strategy's row. Individual failures are logged and counted.
func (a *Aggregator) RecomputeAll(ctx context.Context) (int, error) {
	if a == nil || a.Repo == nil {
		return 0, errors.New("stats aggregator not configured")
	}
	const pageSize = 200
	updated := 0
	var failed int
	for offset := 0; ; offset += pageSize {
		items, err := a.Repo.ListStrategies(ctx, repository.ListStrategiesParams{Limit: pageSize, Offset: offset})
		if err != nil {
			return updated, err
		}
		for _, st := range items {
			if ctx.Err() != nil {
				return updated, ctx.Err()
			}
			if _, err := a.Recompute(ctx, st.ID); err != nil {
				failed++
				if a.Logger != nil {
					a.Logger.Warn("stats recompute failed", zap.Uint64("strategy_id", st.ID), zap.Error(err))
				}
				continue
			}
			updated++
		}
		if len(items) < pageSize {
			break
		}
	}
	if a.Logger != nil {
		a.Logger.Info("stats recompute finished", zap.Int("strategies", updated), zap.Int("failed", failed))
	}
	return updated, nil
}

func (a *Aggregator) lockFor(strategyID uint64) *sync.Mutex {
	v, _ := a.locks.LoadOrStore(strategyID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now().UTC()
	}
	return time.Now().UTC()
}
