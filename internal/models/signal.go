package models

import "time"

// Signal is a directional prediction with an expiry.
//
// ResolvedAt, Result, PnLBps and ResolvedValue are set if and only if Status is resolved.
// EntryValue and ResolvedValue are 2-decimal fixed point (cents for crypto).
type Signal struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	StrategyID uint64 `gorm:"not null;index"`

	Direction     Direction `gorm:"type:varchar(10);not null"`
	EntryValue    *int64
	ConfidenceBps int `gorm:"not null;default:0"`

	// Asset overrides the strategy base market when set.
	Asset *string `gorm:"type:varchar(30)"`

	Status        SignalStatus  `gorm:"type:varchar(20);not null;default:open;index:idx_signals_status_expires,priority:1"`
	Result        *SignalResult `gorm:"type:varchar(10)"`
	PnLBps        *int64        `gorm:"column:pnl_bps"`
	ResolvedValue *int64

	CreatedAt   time.Time  `gorm:"type:timestamptz;autoCreateTime;index"`
	ExpiresAt   time.Time  `gorm:"type:timestamptz;not null;index:idx_signals_status_expires,priority:2"`
	ResolvedAt  *time.Time `gorm:"type:timestamptz"`
	CancelledAt *time.Time `gorm:"type:timestamptz"`
}

func (Signal) TableName() string {
	return "signals"
}

func (s Signal) IsOpen() bool {
	return s.Status == SignalStatusOpen
}

// Clone returns a deep copy so callers cannot alias pointer fields.
func (s Signal) Clone() Signal {
	out := s
	out.EntryValue = cloneInt64(s.EntryValue)
	out.PnLBps = cloneInt64(s.PnLBps)
	out.ResolvedValue = cloneInt64(s.ResolvedValue)
	if s.Asset != nil {
		v := *s.Asset
		out.Asset = &v
	}
	if s.Result != nil {
		v := *s.Result
		out.Result = &v
	}
	if s.ResolvedAt != nil {
		v := *s.ResolvedAt
		out.ResolvedAt = &v
	}
	if s.CancelledAt != nil {
		v := *s.CancelledAt
		out.CancelledAt = &v
	}
	return out
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
