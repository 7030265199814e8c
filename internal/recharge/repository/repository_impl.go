package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stemforge/stemforge/internal/recharge/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO recharge_records (id, account_id, rail, credits, amount_cents, currency,
		                               price_id, external_ref, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.AccountID,
		record.Rail,
		record.Credits,
		record.AmountCents,
		record.Currency,
		record.PriceID,
		record.ExternalRef,
		record.Status,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) FindByExternalRef(ctx context.Context, db *gorm.DB, externalRef string) (*domain.Record, error) {
	var record domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, rail, credits, amount_cents, currency, price_id,
		        external_ref, status, created_at, updated_at
		 FROM recharge_records WHERE external_ref = ?`,
		externalRef,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE recharge_records
		 SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.StatusCompleted,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE recharge_records
		 SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		domain.StatusFailed,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []*domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, rail, credits, amount_cents, currency, price_id,
		        external_ref, status, created_at, updated_at
		 FROM recharge_records
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

func (r *repo) ListPending(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []*domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, rail, credits, amount_cents, currency, price_id,
		        external_ref, status, created_at, updated_at
		 FROM recharge_records
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at ASC
		 LIMIT ?`,
		domain.StatusPending,
		olderThan,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
