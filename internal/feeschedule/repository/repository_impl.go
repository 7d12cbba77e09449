package repository

import (
	"context"
	"errors"

	"github.com/0xkuwabatake/normies-membership/internal/feeschedule/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, entry *domain.FeeEntry) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tier_id"}, {Name: "variant"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
		}).
		Create(entry).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, tierID int64, variant string) (*domain.FeeEntry, error) {
	var entry domain.FeeEntry
	err := db.WithContext(ctx).
		Where("tier_id = ? AND variant = ?", tierID, variant).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repo) ListByTier(ctx context.Context, db *gorm.DB, tierID int64) ([]domain.FeeEntry, error) {
	var entries []domain.FeeEntry
	if err := db.WithContext(ctx).Where("tier_id = ?", tierID).Order("variant").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
