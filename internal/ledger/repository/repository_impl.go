package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/stemforge/stemforge/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.ConsumptionRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO consumption_records (id, account_id, record_id, service_type,
		                                  duration_seconds, credits_cost, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.AccountID,
		record.RecordID,
		record.ServiceType,
		record.DurationSeconds,
		record.CreditsCost,
		record.Status,
		record.CreatedAt,
	).Error
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*domain.ConsumptionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []*domain.ConsumptionRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, record_id, service_type, duration_seconds, credits_cost, status, created_at
		 FROM consumption_records
		 WHERE account_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		accountID,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) SumByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (float64, error) {
	var total float64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(credits_cost), 0) FROM consumption_records WHERE account_id = ?`,
		accountID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
