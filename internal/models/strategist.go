package models

import "time"

// Strategist owns strategies. Owner is an opaque wallet/account key.
type Strategist struct {
	Owner       string    `gorm:"type:varchar(100);primaryKey"`
	DisplayName string    `gorm:"type:varchar(100);not null"`
	CreatedAt   time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Strategist) TableName() string {
	return "strategists"
}
