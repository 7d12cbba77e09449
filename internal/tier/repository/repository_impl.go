package repository

import (
	"context"
	"errors"

	"github.com/0xkuwabatake/normies-membership/internal/tier/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tier *domain.Tier) error {
	return db.WithContext(ctx).Create(tier).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Tier, error) {
	var tier domain.Tier
	err := db.WithContext(ctx).Where("id = ?", id).First(&tier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*domain.Tier, error) {
	var tier domain.Tier
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id = ?", id).
		First(&tier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Tier, error) {
	var tiers []domain.Tier
	if err := db.WithContext(ctx).Order("id").Find(&tiers).Error; err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, tier *domain.Tier) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tiers
		 SET status = ?, duration = ?, start_at = ?, pause_at = ?, end_at = ?, updated_at = ?
		 WHERE id = ?`,
		tier.Status,
		tier.Duration,
		tier.StartAt,
		tier.PauseAt,
		tier.EndAt,
		tier.UpdatedAt,
		tier.ID,
	).Error
}
