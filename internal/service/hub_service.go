package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"agenthub/internal/models"
	"agenthub/internal/oracle"
	"agenthub/internal/repository"
	"agenthub/internal/resolver"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrStrategistExists      = errors.New("strategist already registered")
	ErrStrategistNotFound    = errors.New("strategist not registered")
	ErrStrategyNotFound      = errors.New("strategy not found")
	ErrNotAuthorized         = errors.New("not authorized")
	ErrAlreadyFollowing      = errors.New("already following")
	ErrNotFollowing          = errors.New("not following")
	ErrInvalidConfidence     = errors.New("confidence must be between 0 and 10000 bps")
	ErrEntryPriceUnavailable = errors.New("entry price unavailable")
	ErrUnsupportedAsset      = errors.New("settlement asset not supported by the oracle")
	ErrManualResolveCrypto   = errors.New("crypto signals are settled by the resolver")
	ErrSignalNotFound        = resolver.ErrSignalNotFound
	ErrSignalNotOpen         = resolver.ErrSignalNotOpen
)

const (
	maxConfidenceBps = 10000
	// Ten years. Keeps ExpiresAt well inside the time.Duration range.
	maxHorizonSecs = 10 * 365 * 24 * 60 * 60
)

type StrategyInput struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	MarketKind     string          `json:"market_kind"`
	BaseMarket     string          `json:"base_market"`
	IsPublic       *bool           `json:"is_public"`
	IsAIControlled bool            `json:"is_ai_controlled"`
	ExternalID     *string         `json:"external_id"`
	Metadata       json.RawMessage `json:"metadata"`
}

type SignalInput struct {
	StrategyID    uint64  `json:"strategy_id"`
	Direction     string  `json:"direction"`
	EntryValue    *int64  `json:"entry_value"`
	ConfidenceBps int     `json:"confidence_bps"`
	HorizonSecs   int64   `json:"horizon_secs"`
	Asset         *string `json:"asset"`
}

type FollowInput struct {
	AutoCopy         bool  `json:"auto_copy"`
	MaxExposureUnits int64 `json:"max_exposure_units"`
}

type StrategyDetail struct {
	Strategy models.Strategy       `json:"strategy"`
	Stats    *models.StrategyStats `json:"stats"`
}

type PriceReader interface {
	resolver.PriceSource
	Supports(symbol string) bool
}

type StatsRecomputer = resolver.StatsRecomputer

// HubService is the write surface for strategists, strategies, signals and followers.
// Signal status changes are delegated to the resolver engine.
type HubService struct {
	Repo   repository.Repository
	Engine *resolver.Engine
	Oracle PriceReader
	Stats  StatsRecomputer
	Logger *zap.Logger
	Now    func() time.Time
}

func (s *HubService) RegisterStrategist(ctx context.Context, owner, displayName string) (*models.Strategist, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, fmt.Errorf("%w: owner required", ErrInvalidInput)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: display_name required", ErrInvalidInput)
	}
	item := &models.Strategist{Owner: owner, DisplayName: displayName, CreatedAt: s.now()}
	if err := s.Repo.CreateStrategist(ctx, item); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrStrategistExists
		}
		return nil, err
	}
	return item, nil
}

func (s *HubService) GetStrategist(ctx context.Context, owner string) (*models.Strategist, error) {
	item, err := s.Repo.GetStrategist(ctx, owner)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrStrategistNotFound
	}
	return item, nil
}

func (s *HubService) CreateStrategy(ctx context.Context, owner string, in StrategyInput) (*models.Strategy, error) {
	owner = strings.TrimSpace(owner)
	strategist, err := s.Repo.GetStrategist(ctx, owner)
	if err != nil {
		return nil, err
	}
	if strategist == nil {
		return nil, ErrStrategistNotFound
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	kind, ok := models.ParseMarketKind(in.MarketKind)
	if !ok {
		return nil, fmt.Errorf("%w: market_kind %q", ErrInvalidInput, in.MarketKind)
	}
	base := strings.TrimSpace(in.BaseMarket)
	if base == "" {
		return nil, fmt.Errorf("%w: base_market required", ErrInvalidInput)
	}
	public := true
	if in.IsPublic != nil {
		public = *in.IsPublic
	}
	var meta datatypes.JSON
	if len(in.Metadata) > 0 {
		if !json.Valid(in.Metadata) {
			return nil, fmt.Errorf("%w: metadata must be json", ErrInvalidInput)
		}
		meta = datatypes.JSON(in.Metadata)
	}

	item := &models.Strategy{
		Owner:          owner,
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		MarketKind:     kind,
		BaseMarket:     base,
		IsPublic:       public,
		IsAIControlled: in.IsAIControlled,
		ExternalID:     trimmedPtr(in.ExternalID),
		Metadata:       meta,
	}
	if err := s.Repo.CreateStrategy(ctx, item); err != nil {
		return nil, err
	}
	s.recompute(ctx, item.ID)
	s.activity(ctx, models.ActivityStrategyCreated, owner, nil, &item.ID, map[string]any{
		"name":        item.Name,
		"market_kind": item.MarketKind,
		"base_market": item.BaseMarket,
	})
	return item, nil
}

func (s *HubService) GetStrategy(ctx context.Context, id uint64) (*StrategyDetail, error) {
	item, err := s.Repo.GetStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrStrategyNotFound
	}
	st, err := s.Repo.GetStrategyStats(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StrategyDetail{Strategy: *item, Stats: st}, nil
}

func (s *HubService) DeleteStrategy(ctx context.Context, owner string, id uint64) error {
	item, err := s.ownedStrategy(ctx, owner, id)
	if err != nil {
		return err
	}
	ok, err := s.Repo.DeleteStrategy(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStrategyNotFound
	}
	s.activity(ctx, models.ActivityStrategyDeleted, owner, nil, &item.ID, map[string]any{"name": item.Name})
	return nil
}

// PublishSignal opens a signal. Crypto strategies published without an entry value are
// entered at the current oracle price.
func (s *HubService) PublishSignal(ctx context.Context, owner string, in SignalInput) (*models.Signal, error) {
	strategy, err := s.ownedStrategy(ctx, owner, in.StrategyID)
	if err != nil {
		return nil, err
	}
	direction, ok := models.ParseDirection(in.Direction)
	if !ok {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidInput, in.Direction)
	}
	if in.ConfidenceBps < 0 || in.ConfidenceBps > maxConfidenceBps {
		return nil, ErrInvalidConfidence
	}
	if in.HorizonSecs <= 0 || in.HorizonSecs > maxHorizonSecs {
		return nil, fmt.Errorf("%w: horizon_secs must be between 1 and %d", ErrInvalidInput, maxHorizonSecs)
	}
	if in.EntryValue != nil && *in.EntryValue < 0 {
		return nil, fmt.Errorf("%w: entry_value must be >= 0", ErrInvalidInput)
	}

	sig := &models.Signal{
		StrategyID:    strategy.ID,
		Direction:     direction,
		EntryValue:    in.EntryValue,
		ConfidenceBps: in.ConfidenceBps,
		Asset:         trimmedPtr(in.Asset),
		Status:        models.SignalStatusOpen,
	}
	if strategy.MarketKind == models.MarketKindCrypto && s.Oracle != nil {
		asset := resolver.SettlementAsset(*sig, *strategy)
		if asset == "" || !s.Oracle.Supports(asset) {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedAsset, asset)
		}
		if sig.EntryValue == nil {
			price, err := s.Oracle.GetPrice(ctx, asset)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrEntryPriceUnavailable, err)
			}
			// Never enter at the fallback constant.
			if price.Source == oracle.SourceFallback {
				return nil, fmt.Errorf("%w: no live or cached price for %s", ErrEntryPriceUnavailable, asset)
			}
			entry := price.Price
			sig.EntryValue = &entry
		}
	}

	now := s.now()
	sig.CreatedAt = now
	sig.ExpiresAt = now.Add(time.Duration(in.HorizonSecs) * time.Second)
	if err := s.Repo.InsertSignal(ctx, sig); err != nil {
		return nil, err
	}
	s.recompute(ctx, strategy.ID)
	s.activity(ctx, models.ActivitySignalPublished, owner, &sig.ID, &strategy.ID, map[string]any{
		"direction":      sig.Direction,
		"entry_value":    sig.EntryValue,
		"confidence_bps": sig.ConfidenceBps,
		"expires_at":     sig.ExpiresAt,
	})
	return sig, nil
}

func (s *HubService) GetSignal(ctx context.Context, id uint64) (*models.Signal, error) {
	sig, err := s.Repo.GetSignal(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, ErrSignalNotFound
	}
	return sig, nil
}

func (s *HubService) ListSignals(ctx context.Context, strategyID uint64) ([]models.Signal, error) {
	strategy, err := s.Repo.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if strategy == nil {
		return nil, ErrStrategyNotFound
	}
	return s.Repo.ListSignalsByStrategy(ctx, strategyID)
}

// TopStrategies is the public leaderboard: strategies with at least one signal,
// best win rate first, ties broken by total PnL.
func (s *HubService) TopStrategies(ctx context.Context, limit int) ([]StrategyDetail, error) {
	ranked, err := s.Repo.ListTopStrategies(ctx, repository.NormalizeLimit(limit, 10))
	if err != nil {
		return nil, err
	}
	out := make([]StrategyDetail, 0, len(ranked))
	for i := range ranked {
		out = append(out, StrategyDetail{Strategy: ranked[i].Strategy, Stats: &ranked[i].Stats})
	}
	return out, nil
}

func (s *HubService) OpenSignals(ctx context.Context, limit, offset int) ([]models.Signal, error) {
	status := models.SignalStatusOpen
	return s.Repo.ListSignals(ctx, repository.ListSignalsParams{Limit: limit, Offset: offset, Status: &status})
}

func (s *HubService) RecentSignals(ctx context.Context, limit, offset int) ([]models.Signal, error) {
	return s.Repo.ListSignals(ctx, repository.ListSignalsParams{Limit: limit, Offset: offset})
}

func (s *HubService) CancelSignal(ctx context.Context, owner string, signalID uint64) (*models.Signal, error) {
	if _, err := s.ownedSignal(ctx, owner, signalID); err != nil {
		return nil, err
	}
	return s.Engine.Cancel(ctx, signalID, owner)
}

// ResolveSignal lets an owner settle a non-crypto signal with the observed outcome value.
// Crypto signals settle only against the oracle.
func (s *HubService) ResolveSignal(ctx context.Context, owner string, signalID uint64, value int64) (*models.Signal, error) {
	sig, err := s.ownedSignal(ctx, owner, signalID)
	if err != nil {
		return nil, err
	}
	strategy, err := s.Repo.GetStrategy(ctx, sig.StrategyID)
	if err != nil {
		return nil, err
	}
	if strategy != nil && strategy.MarketKind == models.MarketKindCrypto {
		return nil, ErrManualResolveCrypto
	}
	return s.Engine.ResolveManual(ctx, signalID, value, owner)
}

func (s *HubService) FollowStrategy(ctx context.Context, wallet string, strategyID uint64, in FollowInput) (*models.Follower, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("%w: wallet required", ErrInvalidInput)
	}
	if in.MaxExposureUnits < 0 {
		return nil, fmt.Errorf("%w: max_exposure_units must be >= 0", ErrInvalidInput)
	}
	strategy, err := s.Repo.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if strategy == nil {
		return nil, ErrStrategyNotFound
	}
	item := &models.Follower{
		StrategyID:       strategyID,
		Wallet:           wallet,
		AutoCopy:         in.AutoCopy,
		MaxExposureUnits: in.MaxExposureUnits,
		CreatedAt:        s.now(),
	}
	if err := s.Repo.InsertFollower(ctx, item); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyFollowing
		}
		return nil, err
	}
	s.recompute(ctx, strategyID)
	s.activity(ctx, models.ActivityFollowed, wallet, nil, &strategyID, map[string]any{"auto_copy": in.AutoCopy})
	return item, nil
}

func (s *HubService) UnfollowStrategy(ctx context.Context, wallet string, strategyID uint64) error {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return fmt.Errorf("%w: wallet required", ErrInvalidInput)
	}
	ok, err := s.Repo.DeleteFollower(ctx, strategyID, wallet)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFollowing
	}
	s.recompute(ctx, strategyID)
	s.activity(ctx, models.ActivityUnfollowed, wallet, nil, &strategyID, nil)
	return nil
}

func (s *HubService) IsFollowing(ctx context.Context, wallet string, strategyID uint64) (bool, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return false, fmt.Errorf("%w: wallet required", ErrInvalidInput)
	}
	item, err := s.Repo.GetFollower(ctx, strategyID, wallet)
	if err != nil {
		return false, err
	}
	return item != nil, nil
}

func (s *HubService) ownedStrategy(ctx context.Context, owner string, id uint64) (*models.Strategy, error) {
	strategy, err := s.Repo.GetStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	if strategy == nil {
		return nil, ErrStrategyNotFound
	}
	if strategy.Owner != strings.TrimSpace(owner) {
		return nil, ErrNotAuthorized
	}
	return strategy, nil
}

func (s *HubService) ownedSignal(ctx context.Context, owner string, id uint64) (*models.Signal, error) {
	sig, err := s.Repo.GetSignal(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, ErrSignalNotFound
	}
	if _, err := s.ownedStrategy(ctx, owner, sig.StrategyID); err != nil {
		return nil, err
	}
	return sig, nil
}

func (s *HubService) recompute(ctx context.Context, strategyID uint64) {
	if s.Stats == nil {
		return
	}
	if _, err := s.Stats.Recompute(ctx, strategyID); err != nil {
		s.logWarn("stats recompute failed", err, zap.Uint64("strategy_id", strategyID))
	}
}

func (s *HubService) activity(ctx context.Context, kind, actor string, signalID, strategyID *uint64, details map[string]any) {
	var raw []byte
	if details != nil {
		raw, _ = json.Marshal(details)
	}
	item := &models.Activity{
		Kind:       kind,
		SignalID:   signalID,
		StrategyID: strategyID,
		Actor:      actor,
		Details:    datatypes.JSON(raw),
	}
	if err := s.Repo.AppendActivity(ctx, item); err != nil {
		s.logWarn("append activity failed", err, zap.String("kind", kind))
	}
}

func (s *HubService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *HubService) logWarn(msg string, err error, fields ...zap.Field) {
	if s == nil || s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, append(fields, zap.Error(err))...)
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
