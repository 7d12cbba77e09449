// Package domain contains asset records and the derived temporal state.
// Window, status and fee are never stored: they are recomputed from
// (tier, asset, now) on every read.
package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Asset is one minted unit of a tier. CreatedTS and CachedDuration are the
// temporal snapshot: CachedDuration is refreshed only on a successful
// renewal, so an already-renewed asset is insulated from later tier-duration
// edits until its next renewal.
type Asset struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	Owner          string    `gorm:"type:text;not null;index"`
	TierID         int64     `gorm:"not null;index"`
	CreatedTS      int64     `gorm:"not null"`
	CachedDuration int64     `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Asset) TableName() string { return "assets" }

// AssetStatus is the derived per-asset temporal status.
type AssetStatus string

const (
	AssetStatusActive   AssetStatus = "ACTIVE"
	AssetStatusInactive AssetStatus = "INACTIVE"
)

// View is the derived read model for one asset.
type View struct {
	ID          int64       `json:"id"`
	Owner       string      `json:"owner"`
	TierID      int64       `json:"tier_id"`
	WindowStart int64       `json:"window_start"`
	WindowEnd   int64       `json:"window_end"`
	Status      AssetStatus `json:"status"`
	FeeOwed     uint64      `json:"fee_owed"`
}

type RenewRequest struct {
	AssetID int64  `json:"asset_id"`
	Payment uint64 `json:"payment"`
}

type MintRequest struct {
	Owner  string `json:"owner"`
	TierID int64  `json:"tier_id"`
}

type BatchMintRequest struct {
	Owners []string `json:"owners"`
	TierID int64    `json:"tier_id"`
}

type BatchMintResponse struct {
	FromID int64 `json:"from_id"`
	ToID   int64 `json:"to_id"`
}

type RefreshRequest struct {
	FromID int64 `json:"from_id"`
	ToID   int64 `json:"to_id"`
}

type Service interface {
	// Get derives the checked window, status and renewal fee.
	Get(ctx context.Context, assetID int64) (View, error)
	// GetUnchecked reports the raw window arithmetic with no zero-condition
	// overrides, for off-chain observers.
	GetUnchecked(ctx context.Context, assetID int64) (View, error)
	Renew(ctx context.Context, req RenewRequest) (View, error)
	Mint(ctx context.Context, req MintRequest) (View, error)
	BatchMint(ctx context.Context, req BatchMintRequest) (BatchMintResponse, error)
	// Refresh marks a contiguous id range of assets as presentation-stale.
	Refresh(ctx context.Context, req RefreshRequest) error
}

// Registry owns asset identity, ownership and the per-asset temporal snapshot.
// The temporal-state service only ever touches the three snapshot fields.
type Registry interface {
	Create(ctx context.Context, db *gorm.DB, asset *Asset) error
	Exists(ctx context.Context, db *gorm.DB, assetID int64) (bool, error)
	OwnerOf(ctx context.Context, db *gorm.DB, assetID int64) (string, error)
	FindByID(ctx context.Context, db *gorm.DB, assetID int64) (*Asset, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, assetID int64) (*Asset, error)
	UpdateSnapshot(ctx context.Context, db *gorm.DB, assetID int64, createdTS, cachedDuration int64) error
}

var (
	ErrAssetNotFound       = errors.New("asset_not_found")
	ErrInsufficientPayment = errors.New("insufficient_payment")
	ErrUnableToUpdate      = errors.New("unable_to_update")
	ErrInvalidOwner        = errors.New("invalid_owner")
	ErrTierNotConfigured   = errors.New("tier_not_configured")
	ErrBatchTooLarge       = errors.New("batch_too_large")
	ErrInvalidRange        = errors.New("invalid_range")
)
