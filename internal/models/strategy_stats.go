package models

import "time"

// StrategyStats is a materialized view over a strategy's signals and followers.
// It is never authored directly; see stats.Aggregator.
type StrategyStats struct {
	StrategyID uint64 `gorm:"primaryKey"`

	TotalSignals     int64 `gorm:"not null;default:0"`
	WinningSignals   int64 `gorm:"not null;default:0"`
	LosingSignals    int64 `gorm:"not null;default:0"`
	PushSignals      int64 `gorm:"not null;default:0"`
	OpenSignals      int64 `gorm:"not null;default:0"`
	CancelledSignals int64 `gorm:"not null;default:0"`

	WinRateBps   int64 `gorm:"not null;default:0"`
	AvgPnLBps    int64 `gorm:"column:avg_pnl_bps;not null;default:0"`
	TotalPnLBps  int64 `gorm:"column:total_pnl_bps;not null;default:0"`
	BestWinBps   int64 `gorm:"not null;default:0"`
	WorstLossBps int64 `gorm:"not null;default:0"`

	Followers int64 `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"type:timestamptz"`
}

func (StrategyStats) TableName() string {
	return "strategy_stats"
}

// SameCounters reports whether two rows differ only in UpdatedAt.
func (s StrategyStats) SameCounters(o StrategyStats) bool {
	s.UpdatedAt = time.Time{}
	o.UpdatedAt = time.Time{}
	return s == o
}
