// Package domain contains persistence models and contracts for tier life cycles.
package domain

import "time"

// TierStatus represents life-cycle states for a tier.
type TierStatus string

const (
	TierStatusNotLive      TierStatus = "NOT_LIVE"
	TierStatusReadyToStart TierStatus = "READY_TO_START"
	TierStatusReadyToLive  TierStatus = "READY_TO_LIVE"
	TierStatusLive         TierStatus = "LIVE"
	TierStatusPaused       TierStatus = "PAUSED"
	TierStatusEnding       TierStatus = "ENDING"
	TierStatusFinished     TierStatus = "FINISHED"
)

// Tier captures one asset class and its life-cycle boundaries. Duration is
// seconds; StartAt, PauseAt and EndAt are unix seconds with 0 meaning unset.
// At most one of PauseAt/EndAt is non-zero at any time.
type Tier struct {
	ID        int64      `gorm:"primaryKey"`
	Status    TierStatus `gorm:"type:text;not null"`
	Duration  int64      `gorm:"not null;default:0"`
	StartAt   int64      `gorm:"not null;default:0"`
	PauseAt   int64      `gorm:"not null;default:0"`
	EndAt     int64      `gorm:"not null;default:0"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tier) TableName() string { return "tiers" }

// Boundary returns the active terminal boundary of the tier: PauseAt when
// Paused, EndAt when Ending, 0 otherwise.
func (t Tier) Boundary() int64 {
	switch t.Status {
	case TierStatusPaused:
		return t.PauseAt
	case TierStatusEnding:
		return t.EndAt
	default:
		return 0
	}
}
