package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tier *Tier) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Tier, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id int64) (*Tier, error)
	List(ctx context.Context, db *gorm.DB) ([]Tier, error)
	Update(ctx context.Context, db *gorm.DB, tier *Tier) error
}
