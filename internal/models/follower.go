package models

import "time"

type Follower struct {
	StrategyID       uint64    `gorm:"primaryKey"`
	Wallet           string    `gorm:"type:varchar(100);primaryKey"`
	AutoCopy         bool      `gorm:"default:false"`
	MaxExposureUnits int64     `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Follower) TableName() string {
	return "strategy_followers"
}
