// Package notify delivers best-effort resolution events to external listeners.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agenthub/internal/models"
)

const EventSignalResolved = "signal.resolved"

type ResolutionEvent struct {
	EventID       string              `json:"event_id"`
	Event         string              `json:"event"`
	SignalID      uint64              `json:"signal_id"`
	StrategyID    uint64              `json:"strategy_id"`
	StrategyName  string              `json:"strategy_name"`
	Result        models.SignalResult `json:"result"`
	PnLBps        int64               `json:"pnl_bps"`
	Direction     models.Direction    `json:"direction"`
	EntryValue    *int64              `json:"entry_value"`
	ResolvedValue int64               `json:"resolved_value"`
	ResolvedAt    time.Time           `json:"resolved_at"`
}

// NewResolutionEvent builds the event for a signal that has just been resolved.
func NewResolutionEvent(sig models.Signal, strategy models.Strategy) ResolutionEvent {
	ev := ResolutionEvent{
		EventID:      uuid.NewString(),
		Event:        EventSignalResolved,
		SignalID:     sig.ID,
		StrategyID:   sig.StrategyID,
		StrategyName: strategy.Name,
		Direction:    sig.Direction,
		EntryValue:   sig.EntryValue,
	}
	if sig.Result != nil {
		ev.Result = *sig.Result
	}
	if sig.PnLBps != nil {
		ev.PnLBps = *sig.PnLBps
	}
	if sig.ResolvedValue != nil {
		ev.ResolvedValue = *sig.ResolvedValue
	}
	if sig.ResolvedAt != nil {
		ev.ResolvedAt = sig.ResolvedAt.UTC()
	}
	return ev
}

type Sink interface {
	Notify(ctx context.Context, ev ResolutionEvent) error
}

type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Notify(ctx context.Context, ev ResolutionEvent) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info("signal resolved",
		zap.String("event_id", ev.EventID),
		zap.Uint64("signal_id", ev.SignalID),
		zap.Uint64("strategy_id", ev.StrategyID),
		zap.String("strategy", ev.StrategyName),
		zap.String("direction", string(ev.Direction)),
		zap.String("result", string(ev.Result)),
		zap.Int64("pnl_bps", ev.PnLBps),
		zap.Int64("resolved_value", ev.ResolvedValue),
	)
	return nil
}

// Fanout delivers to every sink and joins the failures.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, ev ResolutionEvent) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
