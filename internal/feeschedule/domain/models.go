// Package domain contains fee schedule models and contracts. Fee magnitudes
// are unsigned base units; discount variants live beside the flat fee under a
// named variant key.
package domain

import (
	"context"
	"errors"
	"math/bits"
	"time"

	"gorm.io/gorm"
)

// VariantFlat is the default fee entry for a tier; other variants (discount
// mint fees and the like) are operator-named.
const VariantFlat = "flat"

// MaxBPS is the denominator of discount basis points.
const MaxBPS = 10_000

// FeeEntry stores one unsigned fee magnitude keyed by (tier, variant).
type FeeEntry struct {
	TierID    int64     `gorm:"primaryKey;autoIncrement:false"`
	Variant   string    `gorm:"primaryKey;type:text"`
	Amount    uint64    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (FeeEntry) TableName() string { return "fee_entries" }

type SetFeeRequest struct {
	TierID  int64  `json:"tier_id"`
	Variant string `json:"variant"`
	Amount  uint64 `json:"amount"`
}

type Service interface {
	SetFee(ctx context.Context, req SetFeeRequest) (FeeEntry, error)
	ListByTier(ctx context.Context, tierID int64) ([]FeeEntry, error)
	// Fee returns the stored magnitude for (tierID, variant);
	// ErrUndefinedFee when absent.
	Fee(ctx context.Context, tierID int64, variant string) (uint64, error)
	// DiscountedFee quotes base − base·bps/10000 on the stored magnitude.
	DiscountedFee(ctx context.Context, tierID int64, variant string, bps uint64) (uint64, error)
}

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, entry *FeeEntry) error
	Find(ctx context.Context, db *gorm.DB, tierID int64, variant string) (*FeeEntry, error)
	ListByTier(ctx context.Context, db *gorm.DB, tierID int64) ([]FeeEntry, error)
}

var (
	ErrUndefinedFee   = errors.New("undefined_fee")
	ErrExceedsMaxBPS  = errors.New("exceeds_max_bps")
	ErrInvalidVariant = errors.New("invalid_variant")
)

// Discounted applies bps to base. Zero base is undefined (the schedule never
// stores an explicit zero to mean "free"); bps beyond the denominator is a
// magnitude error.
func Discounted(base uint64, bps uint64) (uint64, error) {
	if base == 0 {
		return 0, ErrUndefinedFee
	}
	if bps > MaxBPS {
		return 0, ErrExceedsMaxBPS
	}
	// base·bps needs 128 bits before the divide; the quotient is always back
	// under base.
	hi, lo := bits.Mul64(base, bps)
	cut, _ := bits.Div64(hi, lo, MaxBPS)
	return base - cut, nil
}
