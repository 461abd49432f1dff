package models

import (
	"time"

	"gorm.io/datatypes"
)

// Strategy publishes signals against a base market. Owner and BaseMarket never change.
type Strategy struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement"`
	Owner       string     `gorm:"type:varchar(100);not null;index"`
	Name        string     `gorm:"type:varchar(100);not null"`
	Description string     `gorm:"type:text"`
	MarketKind  MarketKind `gorm:"type:varchar(30);not null;index"`
	BaseMarket  string     `gorm:"type:varchar(50);not null"`

	IsPublic       bool `gorm:"default:true;index"`
	IsAIControlled bool `gorm:"default:false"`

	// ExternalID mirrors the on-chain strategy id when the ledger layer has one.
	ExternalID *string        `gorm:"type:varchar(100);index"`
	Metadata   datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Strategy) TableName() string {
	return "strategies"
}
