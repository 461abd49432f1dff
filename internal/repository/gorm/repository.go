package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agenthub/internal/models"
	"agenthub/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ repository.Repository = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("gorm store: db missing")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- strategists ------------------------------------------------------------

func (s *Store) CreateStrategist(ctx context.Context, item *models.Strategist) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (s *Store) GetStrategist(ctx context.Context, owner string) (*models.Strategist, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, nil
	}
	var item models.Strategist
	err := s.db.WithContext(ctx).Where("owner = ?", owner).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- strategies -------------------------------------------------------------

func (s *Store) CreateStrategy(ctx context.Context, item *models.Strategy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetStrategy(ctx context.Context, id uint64) (*models.Strategy, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Strategy{})
	if params.Owner != nil && strings.TrimSpace(*params.Owner) != "" {
		query = query.Where("owner = ?", strings.TrimSpace(*params.Owner))
	}
	if params.MarketKind != nil {
		query = query.Where("market_kind = ?", *params.MarketKind)
	}
	if params.BaseMarket != nil && strings.TrimSpace(*params.BaseMarket) != "" {
		query = query.Where("base_market = ?", strings.TrimSpace(*params.BaseMarket))
	}
	if params.PublicOnly {
		query = query.Where("is_public = ?", true)
	}
	limit := repository.NormalizeLimit(params.Limit, 50)
	offset := repository.NormalizeOffset(params.Offset)
	var items []models.Strategy
	if err := query.Order("id asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteStrategy(ctx context.Context, id uint64) (bool, error) {
	if s == nil || s.db == nil || id == 0 {
		return false, nil
	}
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("strategy_id = ?", id).Delete(&models.Signal{}).Error; err != nil {
			return err
		}
		if err := tx.Where("strategy_id = ?", id).Delete(&models.Follower{}).Error; err != nil {
			return err
		}
		if err := tx.Where("strategy_id = ?", id).Delete(&models.StrategyStats{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Strategy{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	return deleted, err
}

// --- signals ----------------------------------------------------------------

func (s *Store) InsertSignal(ctx context.Context, item *models.Signal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetSignal(ctx context.Context, id uint64) (*models.Signal, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Signal
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListExpiredOpenSignals(ctx context.Context, now time.Time, limit int) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	query := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("status = ?", models.SignalStatusOpen).
		Where("expires_at <= ?", now).
		Order("expires_at asc, id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var items []models.Signal
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSignalsByStrategy(ctx context.Context, strategyID uint64) ([]models.Signal, error) {
	if s == nil || s.db == nil || strategyID == 0 {
		return nil, nil
	}
	var items []models.Signal
	if err := s.db.WithContext(ctx).
		Model(&models.Signal{}).
		Where("strategy_id = ?", strategyID).
		Order("created_at desc, id desc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Signal{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	limit := repository.NormalizeLimit(params.Limit, 50)
	offset := repository.NormalizeOffset(params.Offset)
	var items []models.Signal
	if err := query.Order("created_at desc, id desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// TransitionSignalToResolved is a single conditional UPDATE; the status predicate is
// evaluated by the database at commit time, so a concurrent cancel or resolve loses cleanly.
func (s *Store) TransitionSignalToResolved(ctx context.Context, id uint64, res repository.SignalResolution) (*models.Signal, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	at := res.ResolvedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.transition(ctx, id, map[string]any{
		"status":         models.SignalStatusResolved,
		"result":         res.Result,
		"pnl_bps":        res.PnLBps,
		"resolved_value": res.ResolvedValue,
		"resolved_at":    at,
	})
}

func (s *Store) TransitionSignalToCancelled(ctx context.Context, id uint64, at time.Time) (*models.Signal, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.transition(ctx, id, map[string]any{
		"status":       models.SignalStatusCancelled,
		"cancelled_at": at,
	})
}

func (s *Store) transition(ctx context.Context, id uint64, updates map[string]any) (*models.Signal, error) {
	var out *models.Signal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Signal{}).
			Where("id = ?", id).
			Where("status = ?", models.SignalStatusOpen).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		var item models.Signal
		if err := tx.Where("id = ?", id).First(&item).Error; err != nil {
			return err
		}
		out = &item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- stats ------------------------------------------------------------------

func (s *Store) GetStrategyStats(ctx context.Context, strategyID uint64) (*models.StrategyStats, error) {
	if s == nil || s.db == nil || strategyID == 0 {
		return nil, nil
	}
	var item models.StrategyStats
	err := s.db.WithContext(ctx).Where("strategy_id = ?", strategyID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertStrategyStats(ctx context.Context, item *models.StrategyStats) (*models.StrategyStats, error) {
	if s == nil || s.db == nil || item == nil || item.StrategyID == 0 {
		return item, nil
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strategy_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_signals",
			"winning_signals",
			"losing_signals",
			"push_signals",
			"open_signals",
			"cancelled_signals",
			"win_rate_bps",
			"avg_pnl_bps",
			"total_pnl_bps",
			"best_win_bps",
			"worst_loss_bps",
			"followers",
			"updated_at",
		}),
	}).Create(item).Error
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Store) ListTopStrategies(ctx context.Context, limit int) ([]repository.RankedStrategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var stats []models.StrategyStats
	if err := s.db.WithContext(ctx).
		Model(&models.StrategyStats{}).
		Select("strategy_stats.*").
		Joins("JOIN strategies ON strategies.id = strategy_stats.strategy_id").
		Where("strategies.is_public = ?", true).
		Where("strategy_stats.total_signals > 0").
		Order("strategy_stats.win_rate_bps desc, strategy_stats.total_pnl_bps desc, strategy_stats.strategy_id asc").
		Limit(repository.NormalizeLimit(limit, 10)).
		Find(&stats).Error; err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return []repository.RankedStrategy{}, nil
	}
	ids := make([]uint64, 0, len(stats))
	for _, st := range stats {
		ids = append(ids, st.StrategyID)
	}
	var strategies []models.Strategy
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&strategies).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint64]models.Strategy, len(strategies))
	for _, st := range strategies {
		byID[st.ID] = st
	}
	out := make([]repository.RankedStrategy, 0, len(stats))
	for _, st := range stats {
		strat, ok := byID[st.StrategyID]
		if !ok {
			// Deleted between the two reads.
			continue
		}
		out = append(out, repository.RankedStrategy{Strategy: strat, Stats: st})
	}
	return out, nil
}

// --- followers --------------------------------------------------------------

func (s *Store) InsertFollower(ctx context.Context, item *models.Follower) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrConflict
	}
	return nil
}

func (s *Store) DeleteFollower(ctx context.Context, strategyID uint64, wallet string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Where("wallet = ?", strings.TrimSpace(wallet)).
		Delete(&models.Follower{})
	return res.RowsAffected > 0, res.Error
}

func (s *Store) GetFollower(ctx context.Context, strategyID uint64, wallet string) (*models.Follower, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Follower
	err := s.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Where("wallet = ?", strings.TrimSpace(wallet)).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) CountFollowers(ctx context.Context, strategyID uint64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := s.db.WithContext(ctx).
		Model(&models.Follower{}).
		Where("strategy_id = ?", strategyID).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// --- activity ---------------------------------------------------------------

func (s *Store) AppendActivity(ctx context.Context, item *models.Activity) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListActivities(ctx context.Context, params repository.ListActivitiesParams) ([]models.Activity, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Activity{})
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("kind = ?", strings.TrimSpace(*params.Kind))
	}
	if params.StrategyID != nil {
		query = query.Where("strategy_id = ?", *params.StrategyID)
	}
	if params.SignalID != nil {
		query = query.Where("signal_id = ?", *params.SignalID)
	}
	limit := repository.NormalizeLimit(params.Limit, 100)
	offset := repository.NormalizeOffset(params.Offset)
	var items []models.Activity
	if err := query.Order("id desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
