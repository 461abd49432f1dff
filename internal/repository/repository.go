package repository

import (
	"context"
	"errors"
	"time"

	"agenthub/internal/models"
)

// ErrConflict is returned by inserts that would duplicate a primary key.
var ErrConflict = errors.New("repository: record already exists")

// Repository is the only mutation surface for strategist, strategy and signal state.
//
// Lookups return (nil, nil) when the record does not exist. Conditional transitions
// return (nil, nil) when the signal is no longer open at commit time.
type Repository interface {
	Ping(ctx context.Context) error

	CreateStrategist(ctx context.Context, item *models.Strategist) error
	GetStrategist(ctx context.Context, owner string) (*models.Strategist, error)

	CreateStrategy(ctx context.Context, item *models.Strategy) error
	GetStrategy(ctx context.Context, id uint64) (*models.Strategy, error)
	ListStrategies(ctx context.Context, params ListStrategiesParams) ([]models.Strategy, error)
	// DeleteStrategy removes the strategy with its signals, stats and followers.
	DeleteStrategy(ctx context.Context, id uint64) (bool, error)

	InsertSignal(ctx context.Context, item *models.Signal) error
	GetSignal(ctx context.Context, id uint64) (*models.Signal, error)
	ListExpiredOpenSignals(ctx context.Context, now time.Time, limit int) ([]models.Signal, error)
	ListSignalsByStrategy(ctx context.Context, strategyID uint64) ([]models.Signal, error)
	// ListSignals spans all strategies, newest first.
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	TransitionSignalToResolved(ctx context.Context, id uint64, res SignalResolution) (*models.Signal, error)
	TransitionSignalToCancelled(ctx context.Context, id uint64, at time.Time) (*models.Signal, error)

	GetStrategyStats(ctx context.Context, strategyID uint64) (*models.StrategyStats, error)
	UpsertStrategyStats(ctx context.Context, item *models.StrategyStats) (*models.StrategyStats, error)
	// ListTopStrategies ranks public strategies with at least one signal by win rate,
	// then total PnL, then ascending id.
	ListTopStrategies(ctx context.Context, limit int) ([]RankedStrategy, error)

	InsertFollower(ctx context.Context, item *models.Follower) error
	DeleteFollower(ctx context.Context, strategyID uint64, wallet string) (bool, error)
	GetFollower(ctx context.Context, strategyID uint64, wallet string) (*models.Follower, error)
	CountFollowers(ctx context.Context, strategyID uint64) (int64, error)

	AppendActivity(ctx context.Context, item *models.Activity) error
	ListActivities(ctx context.Context, params ListActivitiesParams) ([]models.Activity, error)
}

// SignalResolution is the payload of an open -> resolved transition.
type SignalResolution struct {
	Result        models.SignalResult
	PnLBps        int64
	ResolvedValue int64
	ResolvedAt    time.Time
}

type ListStrategiesParams struct {
	Limit      int
	Offset     int
	Owner      *string
	MarketKind *models.MarketKind
	BaseMarket *string
	PublicOnly bool
}

type ListSignalsParams struct {
	Limit  int
	Offset int
	Status *models.SignalStatus
}

type RankedStrategy struct {
	Strategy models.Strategy
	Stats    models.StrategyStats
}

type ListActivitiesParams struct {
	Limit      int
	Offset     int
	Kind       *string
	StrategyID *uint64
	SignalID   *uint64
}

func NormalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func NormalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
