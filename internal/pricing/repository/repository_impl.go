package repository

import (
	"context"

	"github.com/stemforge/stemforge/internal/pricing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, serviceType, tier string) (*domain.Pricing, error) {
	var pricing domain.Pricing
	err := db.WithContext(ctx).Raw(
		`SELECT id, service_type, tier, price_per_unit, is_active, created_at, updated_at
		 FROM pricing
		 WHERE service_type = ? AND tier = ? AND is_active
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		serviceType,
		tier,
	).Scan(&pricing).Error
	if err != nil {
		return nil, err
	}
	if pricing.ID == 0 {
		return nil, nil
	}
	return &pricing, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*domain.Pricing, error) {
	var rows []*domain.Pricing
	err := db.WithContext(ctx).Raw(
		`SELECT id, service_type, tier, price_per_unit, is_active, created_at, updated_at
		 FROM pricing
		 ORDER BY service_type, tier`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
