// Package memory is an in-process repository.Repository used when no database is
// configured and as the fixture for engine tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"agenthub/internal/models"
	"agenthub/internal/repository"
)

type followerKey struct {
	strategyID uint64
	wallet     string
}

type Store struct {
	mu sync.RWMutex

	strategists map[string]models.Strategist
	strategies  map[uint64]models.Strategy
	signals     map[uint64]models.Signal
	stats       map[uint64]models.StrategyStats
	followers   map[followerKey]models.Follower
	activities  []models.Activity

	nextStrategyID uint64
	nextSignalID   uint64
	nextActivityID uint64

	now func() time.Time
}

var _ repository.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		strategists: map[string]models.Strategist{},
		strategies:  map[uint64]models.Strategy{},
		signals:     map[uint64]models.Signal{},
		stats:       map[uint64]models.StrategyStats{},
		followers:   map[followerKey]models.Follower{},
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) CreateStrategist(ctx context.Context, item *models.Strategist) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.strategists[item.Owner]; ok {
		return repository.ErrConflict
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	s.strategists[item.Owner] = *item
	return nil
}

func (s *Store) GetStrategist(ctx context.Context, owner string) (*models.Strategist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.strategists[strings.TrimSpace(owner)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) CreateStrategy(ctx context.Context, item *models.Strategy) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		s.nextStrategyID++
		item.ID = s.nextStrategyID
	} else if _, ok := s.strategies[item.ID]; ok {
		return repository.ErrConflict
	} else if item.ID > s.nextStrategyID {
		s.nextStrategyID = item.ID
	}
	now := s.now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.strategies[item.ID] = *item
	return nil
}

func (s *Store) GetStrategy(ctx context.Context, id uint64) (*models.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.strategies[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	s.mu.RLock()
	items := make([]models.Strategy, 0, len(s.strategies))
	for _, st := range s.strategies {
		if params.Owner != nil && strings.TrimSpace(*params.Owner) != "" && st.Owner != strings.TrimSpace(*params.Owner) {
			continue
		}
		if params.MarketKind != nil && st.MarketKind != *params.MarketKind {
			continue
		}
		if params.BaseMarket != nil && strings.TrimSpace(*params.BaseMarket) != "" && st.BaseMarket != strings.TrimSpace(*params.BaseMarket) {
			continue
		}
		if params.PublicOnly && !st.IsPublic {
			continue
		}
		items = append(items, st)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return page(items, repository.NormalizeLimit(params.Limit, 50), repository.NormalizeOffset(params.Offset)), nil
}

func (s *Store) DeleteStrategy(ctx context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.strategies[id]; !ok {
		return false, nil
	}
	for sid, sig := range s.signals {
		if sig.StrategyID == id {
			delete(s.signals, sid)
		}
	}
	for key := range s.followers {
		if key.strategyID == id {
			delete(s.followers, key)
		}
	}
	delete(s.stats, id)
	delete(s.strategies, id)
	return true, nil
}

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		s.nextSignalID++
		item.ID = s.nextSignalID
	} else if _, ok := s.signals[item.ID]; ok {
		return repository.ErrConflict
	} else if item.ID > s.nextSignalID {
		s.nextSignalID = item.ID
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	if item.Status == "" {
		item.Status = models.SignalStatusOpen
	}
	s.signals[item.ID] = item.Clone()
	return nil
}

func (s *Store) GetSignal(ctx context.Context, id uint64) (*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.signals[id]
	if !ok {
		return nil, nil
	}
	out := item.Clone()
	return &out, nil
}

func (s *Store) ListExpiredOpenSignals(ctx context.Context, now time.Time, limit int) ([]models.Signal, error) {
	if now.IsZero() {
		now = s.now()
	}
	s.mu.RLock()
	var items []models.Signal
	for _, sig := range s.signals {
		if sig.Status == models.SignalStatusOpen && !sig.ExpiresAt.After(now) {
			items = append(items, sig.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].ExpiresAt.Equal(items[j].ExpiresAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].ExpiresAt.Before(items[j].ExpiresAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) ListSignalsByStrategy(ctx context.Context, strategyID uint64) ([]models.Signal, error) {
	s.mu.RLock()
	var items []models.Signal
	for _, sig := range s.signals {
		if sig.StrategyID == strategyID {
			items = append(items, sig.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	s.mu.RLock()
	items := make([]models.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		if params.Status != nil && sig.Status != *params.Status {
			continue
		}
		items = append(items, sig.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return page(items, repository.NormalizeLimit(params.Limit, 50), repository.NormalizeOffset(params.Offset)), nil
}

func (s *Store) TransitionSignalToResolved(ctx context.Context, id uint64, res repository.SignalResolution) (*models.Signal, error) {
	at := res.ResolvedAt
	if at.IsZero() {
		at = s.now()
	}
	return s.transition(id, func(sig *models.Signal) {
		result := res.Result
		pnl := res.PnLBps
		value := res.ResolvedValue
		sig.Status = models.SignalStatusResolved
		sig.Result = &result
		sig.PnLBps = &pnl
		sig.ResolvedValue = &value
		sig.ResolvedAt = &at
	})
}

func (s *Store) TransitionSignalToCancelled(ctx context.Context, id uint64, at time.Time) (*models.Signal, error) {
	if at.IsZero() {
		at = s.now()
	}
	return s.transition(id, func(sig *models.Signal) {
		sig.Status = models.SignalStatusCancelled
		sig.CancelledAt = &at
	})
}

func (s *Store) transition(id uint64, apply func(sig *models.Signal)) (*models.Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok || sig.Status != models.SignalStatusOpen {
		return nil, nil
	}
	apply(&sig)
	s.signals[id] = sig
	out := sig.Clone()
	return &out, nil
}

func (s *Store) GetStrategyStats(ctx context.Context, strategyID uint64) (*models.StrategyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.stats[strategyID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) UpsertStrategyStats(ctx context.Context, item *models.StrategyStats) (*models.StrategyStats, error) {
	if item == nil || item.StrategyID == 0 {
		return item, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = s.now()
	}
	s.stats[item.StrategyID] = *item
	out := *item
	return &out, nil
}

func (s *Store) ListTopStrategies(ctx context.Context, limit int) ([]repository.RankedStrategy, error) {
	s.mu.RLock()
	var items []repository.RankedStrategy
	for id, st := range s.stats {
		strat, ok := s.strategies[id]
		if !ok || !strat.IsPublic || st.TotalSignals <= 0 {
			continue
		}
		items = append(items, repository.RankedStrategy{Strategy: strat, Stats: st})
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Stats, items[j].Stats
		if a.WinRateBps != b.WinRateBps {
			return a.WinRateBps > b.WinRateBps
		}
		if a.TotalPnLBps != b.TotalPnLBps {
			return a.TotalPnLBps > b.TotalPnLBps
		}
		return a.StrategyID < b.StrategyID
	})
	return page(items, repository.NormalizeLimit(limit, 10), 0), nil
}

func (s *Store) InsertFollower(ctx context.Context, item *models.Follower) error {
	if item == nil {
		return nil
	}
	key := followerKey{strategyID: item.StrategyID, wallet: strings.TrimSpace(item.Wallet)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.followers[key]; ok {
		return repository.ErrConflict
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	s.followers[key] = *item
	return nil
}

func (s *Store) DeleteFollower(ctx context.Context, strategyID uint64, wallet string) (bool, error) {
	key := followerKey{strategyID: strategyID, wallet: strings.TrimSpace(wallet)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.followers[key]; !ok {
		return false, nil
	}
	delete(s.followers, key)
	return true, nil
}

func (s *Store) GetFollower(ctx context.Context, strategyID uint64, wallet string) (*models.Follower, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.followers[followerKey{strategyID: strategyID, wallet: strings.TrimSpace(wallet)}]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) CountFollowers(ctx context.Context, strategyID uint64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for key := range s.followers {
		if key.strategyID == strategyID {
			n++
		}
	}
	return n, nil
}

func (s *Store) AppendActivity(ctx context.Context, item *models.Activity) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextActivityID++
	item.ID = s.nextActivityID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	s.activities = append(s.activities, *item)
	return nil
}

func (s *Store) ListActivities(ctx context.Context, params repository.ListActivitiesParams) ([]models.Activity, error) {
	s.mu.RLock()
	items := make([]models.Activity, 0, len(s.activities))
	for i := len(s.activities) - 1; i >= 0; i-- {
		a := s.activities[i]
		if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" && a.Kind != strings.TrimSpace(*params.Kind) {
			continue
		}
		if params.StrategyID != nil && (a.StrategyID == nil || *a.StrategyID != *params.StrategyID) {
			continue
		}
		if params.SignalID != nil && (a.SignalID == nil || *a.SignalID != *params.SignalID) {
			continue
		}
		items = append(items, a)
	}
	s.mu.RUnlock()
	return page(items, repository.NormalizeLimit(params.Limit, 100), repository.NormalizeOffset(params.Offset)), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
