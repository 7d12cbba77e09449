// Package registry is the GORM-backed asset registry: identity, ownership and
// the per-asset temporal snapshot. Sequential ids start at 1.
package registry

import (
	"context"
	"errors"

	"github.com/0xkuwabatake/normies-membership/internal/asset/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type registry struct{}

func Provide() domain.Registry {
	return &registry{}
}

func (r *registry) Create(ctx context.Context, db *gorm.DB, asset *domain.Asset) error {
	return db.WithContext(ctx).Create(asset).Error
}

func (r *registry) Exists(ctx context.Context, db *gorm.DB, assetID int64) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Asset{}).Where("id = ?", assetID).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *registry) OwnerOf(ctx context.Context, db *gorm.DB, assetID int64) (string, error) {
	asset, err := r.FindByID(ctx, db, assetID)
	if err != nil {
		return "", err
	}
	if asset == nil {
		return "", domain.ErrAssetNotFound
	}
	return asset.Owner, nil
}

func (r *registry) FindByID(ctx context.Context, db *gorm.DB, assetID int64) (*domain.Asset, error) {
	var asset domain.Asset
	err := db.WithContext(ctx).Where("id = ?", assetID).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

func (r *registry) FindByIDForUpdate(ctx context.Context, db *gorm.DB, assetID int64) (*domain.Asset, error) {
	var asset domain.Asset
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id = ?", assetID).
		First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

func (r *registry) UpdateSnapshot(ctx context.Context, db *gorm.DB, assetID int64, createdTS, cachedDuration int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE assets
		 SET created_ts = ?, cached_duration = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		createdTS,
		cachedDuration,
		assetID,
	).Error
}
