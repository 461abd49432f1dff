// Package resolver settles expired signals against oracle prices.
//
// Every status change goes through the repository's conditional transition, so a signal
// is resolved or cancelled at most once no matter how many sweeps or callers race on it.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"agenthub/internal/models"
	"agenthub/internal/notify"
	"agenthub/internal/oracle"
	"agenthub/internal/repository"
	"agenthub/internal/settlement"
)

var (
	ErrSweepInProgress = errors.New("sweep already in progress")
	ErrSignalNotFound  = errors.New("signal not found")
	ErrSignalNotOpen   = errors.New("signal is not open")
	ErrInvalidValue    = errors.New("resolved value must be >= 0")
)

const actorResolver = "resolver"

type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (oracle.Price, error)
}

type StatsRecomputer interface {
	Recompute(ctx context.Context, strategyID uint64) (*models.StrategyStats, error)
}

type Engine struct {
	Repo   repository.Repository
	Oracle PriceSource
	Stats  StatsRecomputer
	Sink   notify.Sink
	Logger *zap.Logger
	Now    func() time.Time

	// BatchLimit caps signals per sweep; <= 0 means no cap.
	BatchLimit int
	// Concurrency > 1 resolves signals of one sweep in parallel.
	Concurrency int
	// HookTimeout bounds each post-commit hook. Default 5s.
	HookTimeout time.Duration

	running atomic.Bool
}

type SweepResult struct {
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Expired        int           `json:"expired"`
	Resolved       int           `json:"resolved"`
	Skipped        int           `json:"skipped"`
	AlreadyHandled int           `json:"already_handled"`
	Failed         int           `json:"failed"`
}

type outcome int

const (
	outcomeResolved outcome = iota
	outcomeSkipped
	outcomeAlreadyHandled
	outcomeFailed
)

// RunOnce is the scheduler entry point: one sweep, result logged, overlap ignored.
func (e *Engine) RunOnce(ctx context.Context) error {
	res, err := e.Sweep(ctx)
	if errors.Is(err, ErrSweepInProgress) {
		e.logDebug("sweep skipped, previous still running")
		return nil
	}
	if err != nil {
		e.logWarn("sweep failed", zap.Error(err))
		return err
	}
	if res.Expired > 0 {
		e.logInfo("sweep finished",
			zap.Int("expired", res.Expired),
			zap.Int("resolved", res.Resolved),
			zap.Int("skipped", res.Skipped),
			zap.Int("already_handled", res.AlreadyHandled),
			zap.Int("failed", res.Failed),
			zap.Duration("duration", res.Duration),
		)
	}
	return nil
}

// Sweep resolves every expired open signal once. Only a failure to list signals is
// returned; per-signal failures are counted and the signal stays open for the next sweep.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	if e == nil || e.Repo == nil || e.Oracle == nil {
		return SweepResult{}, errors.New("resolver engine not configured")
	}
	if !e.running.CompareAndSwap(false, true) {
		return SweepResult{}, ErrSweepInProgress
	}
	defer e.running.Store(false)

	start := e.now()
	res := SweepResult{StartedAt: start}
	signals, err := e.Repo.ListExpiredOpenSignals(ctx, start, e.BatchLimit)
	if err != nil {
		return res, fmt.Errorf("list expired signals: %w", err)
	}
	res.Expired = len(signals)
	if len(signals) == 0 {
		return res, nil
	}

	outcomes := make([]outcome, len(signals))
	if e.Concurrency <= 1 {
		for i := range signals {
			outcomes[i] = e.resolveExpired(ctx, signals[i], start)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.Concurrency)
		for i := range signals {
			g.Go(func() error {
				outcomes[i] = e.resolveExpired(ctx, signals[i], start)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, o := range outcomes {
		switch o {
		case outcomeResolved:
			res.Resolved++
		case outcomeSkipped:
			res.Skipped++
		case outcomeAlreadyHandled:
			res.AlreadyHandled++
		default:
			res.Failed++
		}
	}
	res.Duration = e.now().Sub(start)
	return res, nil
}

func (e *Engine) resolveExpired(ctx context.Context, sig models.Signal, sweepAt time.Time) (out outcome) {
	log := e.logger().With(
		zap.Uint64("signal_id", sig.ID),
		zap.Uint64("strategy_id", sig.StrategyID),
		zap.Duration("overdue", sweepAt.Sub(sig.ExpiresAt)),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("signal resolution panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			out = outcomeFailed
		}
	}()

	strategy, err := e.Repo.GetStrategy(ctx, sig.StrategyID)
	if err != nil {
		log.Warn("load strategy failed", zap.Error(err))
		return outcomeFailed
	}
	if strategy == nil {
		log.Warn("strategy not found, leaving signal open")
		return outcomeSkipped
	}
	if strategy.MarketKind != models.MarketKindCrypto {
		log.Debug("market kind not auto-resolved", zap.String("market_kind", string(strategy.MarketKind)))
		return outcomeSkipped
	}

	asset := SettlementAsset(sig, *strategy)
	if asset == "" {
		log.Warn("no settlement asset derivable", zap.String("base_market", strategy.BaseMarket))
		return outcomeSkipped
	}

	price, err := e.Oracle.GetPrice(ctx, asset)
	if err != nil {
		log.Warn("price unavailable", zap.String("asset", asset), zap.Error(err))
		return outcomeSkipped
	}
	if price.Price == 0 {
		log.Warn("oracle returned zero price", zap.String("asset", asset))
		return outcomeSkipped
	}
	if err := ctx.Err(); err != nil {
		log.Info("sweep cancelled before settlement, leaving signal open", zap.Error(err))
		return outcomeSkipped
	}

	var entry int64
	if sig.EntryValue != nil {
		entry = *sig.EntryValue
	}
	result := settlement.Resolve(sig.Direction, entry, price.Price)

	updated, err := e.Repo.TransitionSignalToResolved(ctx, sig.ID, repository.SignalResolution{
		Result:        result.Result,
		PnLBps:        result.PnLBps,
		ResolvedValue: price.Price,
		ResolvedAt:    e.now(),
	})
	if err != nil {
		log.Warn("resolve transition failed", zap.Error(err))
		return outcomeFailed
	}
	if updated == nil {
		log.Debug("signal no longer open, already handled")
		return outcomeAlreadyHandled
	}

	log.Info("signal resolved",
		zap.String("asset", asset),
		zap.String("price_source", price.Source),
		zap.Bool("price_stale", price.Stale),
		zap.String("result", string(result.Result)),
		zap.Int64("pnl_bps", result.PnLBps),
	)
	e.afterResolve(ctx, *updated, *strategy, actorResolver)
	return outcomeResolved
}

// ResolveManual settles an open signal of any market kind with an externally observed value.
func (e *Engine) ResolveManual(ctx context.Context, signalID uint64, value int64, actor string) (*models.Signal, error) {
	if e == nil || e.Repo == nil {
		return nil, errors.New("resolver engine not configured")
	}
	if value < 0 {
		return nil, ErrInvalidValue
	}
	sig, err := e.Repo.GetSignal(ctx, signalID)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, ErrSignalNotFound
	}
	if !sig.IsOpen() {
		return nil, ErrSignalNotOpen
	}
	strategy, err := e.Repo.GetStrategy(ctx, sig.StrategyID)
	if err != nil {
		return nil, err
	}
	if strategy == nil {
		strategy = &models.Strategy{ID: sig.StrategyID}
	}

	var entry int64
	if sig.EntryValue != nil {
		entry = *sig.EntryValue
	}
	result := settlement.Resolve(sig.Direction, entry, value)
	updated, err := e.Repo.TransitionSignalToResolved(ctx, signalID, repository.SignalResolution{
		Result:        result.Result,
		PnLBps:        result.PnLBps,
		ResolvedValue: value,
		ResolvedAt:    e.now(),
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrSignalNotOpen
	}
	e.afterResolve(ctx, *updated, *strategy, actor)
	return updated, nil
}

// Cancel moves an open signal to cancelled. Losing a race against resolution yields ErrSignalNotOpen.
func (e *Engine) Cancel(ctx context.Context, signalID uint64, actor string) (*models.Signal, error) {
	if e == nil || e.Repo == nil {
		return nil, errors.New("resolver engine not configured")
	}
	updated, err := e.Repo.TransitionSignalToCancelled(ctx, signalID, e.now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		existing, err := e.Repo.GetSignal(ctx, signalID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrSignalNotFound
		}
		return nil, ErrSignalNotOpen
	}

	hctx, cancel := e.hookContext(ctx)
	defer cancel()
	if e.Stats != nil {
		if _, err := e.Stats.Recompute(hctx, updated.StrategyID); err != nil {
			e.logWarn("stats recompute after cancel failed", zap.Uint64("strategy_id", updated.StrategyID), zap.Error(err))
		}
	}
	e.appendActivity(hctx, models.ActivitySignalCancelled, "", *updated, actor, map[string]any{
		"direction": updated.Direction,
	})
	return updated, nil
}

// afterResolve runs the post-commit hooks in order. None of them can undo the write.
func (e *Engine) afterResolve(ctx context.Context, sig models.Signal, strategy models.Strategy, actor string) {
	hctx, cancel := e.hookContext(ctx)
	defer cancel()

	if e.Stats != nil {
		if _, err := e.Stats.Recompute(hctx, sig.StrategyID); err != nil {
			e.logWarn("stats recompute after resolve failed", zap.Uint64("strategy_id", sig.StrategyID), zap.Error(err))
		}
	}

	ev := notify.NewResolutionEvent(sig, strategy)
	if e.Sink != nil {
		if err := e.Sink.Notify(hctx, ev); err != nil {
			e.logWarn("resolution notification failed", zap.Uint64("signal_id", sig.ID), zap.String("event_id", ev.EventID), zap.Error(err))
		}
	}

	e.appendActivity(hctx, models.ActivitySignalResolved, ev.EventID, sig, actor, map[string]any{
		"result":         ev.Result,
		"pnl_bps":        ev.PnLBps,
		"direction":      ev.Direction,
		"entry_value":    ev.EntryValue,
		"resolved_value": ev.ResolvedValue,
	})
}

func (e *Engine) appendActivity(ctx context.Context, kind, eventID string, sig models.Signal, actor string, details map[string]any) {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte(`{}`)
	}
	signalID := sig.ID
	strategyID := sig.StrategyID
	if strings.TrimSpace(actor) == "" {
		actor = actorResolver
	}
	item := &models.Activity{
		EventID:    eventID,
		Kind:       kind,
		SignalID:   &signalID,
		StrategyID: &strategyID,
		Actor:      actor,
		Details:    datatypes.JSON(raw),
	}
	if err := e.Repo.AppendActivity(ctx, item); err != nil {
		e.logWarn("append activity failed", zap.String("kind", kind), zap.Uint64("signal_id", sig.ID), zap.Error(err))
	}
}

// SettlementAsset is the signal's asset override when present, else the strategy base market.
func SettlementAsset(sig models.Signal, strategy models.Strategy) string {
	if sig.Asset != nil && strings.TrimSpace(*sig.Asset) != "" {
		return oracle.ResolveSymbol(*sig.Asset)
	}
	return oracle.ResolveSymbol(strategy.BaseMarket)
}

func (e *Engine) hookContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := e.HookTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) logger() *zap.Logger {
	if e == nil || e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Engine) logInfo(msg string, fields ...zap.Field)  { e.logger().Info(msg, fields...) }
func (e *Engine) logWarn(msg string, fields ...zap.Field)  { e.logger().Warn(msg, fields...) }
func (e *Engine) logDebug(msg string, fields ...zap.Field) { e.logger().Debug(msg, fields...) }
