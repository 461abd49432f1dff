package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ActivitySignalPublished = "signal_published"
	ActivitySignalResolved  = "signal_resolved"
	ActivitySignalCancelled = "signal_cancelled"
	ActivityStrategyCreated = "strategy_created"
	ActivityStrategyDeleted = "strategy_deleted"
	ActivityFollowed        = "strategy_followed"
	ActivityUnfollowed      = "strategy_unfollowed"
)

// Activity is an append-only audit record.
type Activity struct {
	ID         uint64  `gorm:"primaryKey;autoIncrement"`
	EventID    string  `gorm:"type:varchar(64);index"`
	Kind       string  `gorm:"type:varchar(40);not null;index"`
	SignalID   *uint64 `gorm:"index"`
	StrategyID *uint64 `gorm:"index"`
	Actor      string  `gorm:"type:varchar(100)"`

	Details datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (Activity) TableName() string {
	return "activities"
}
