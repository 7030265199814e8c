package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/stemforge/stemforge/internal/invite/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindCode(ctx context.Context, db *gorm.DB, code string) (*domain.Code, error) {
	var row domain.Code
	err := db.WithContext(ctx).Raw(
		`SELECT code, target_tier, max_usage, valid_from, valid_until, status, created_at
		 FROM invite_codes WHERE code = ?`,
		code,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Code == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) UsageCount(ctx context.Context, db *gorm.DB, code string, accountID snowflake.ID) (int, error) {
	var count int
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM invite_usages WHERE code = ? AND account_id = ?`,
		code,
		accountID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) InsertUsage(ctx context.Context, db *gorm.DB, usage *domain.Usage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invite_usages (id, code, account_id, created_at) VALUES (?, ?, ?, ?)`,
		usage.ID,
		usage.Code,
		usage.AccountID,
		usage.CreatedAt,
	).Error
}

func (r *repo) InsertCode(ctx context.Context, db *gorm.DB, code *domain.Code) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invite_codes (code, target_tier, max_usage, valid_from, valid_until, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		code.Code,
		code.TargetTier,
		code.MaxUsage,
		code.ValidFrom,
		code.ValidUntil,
		code.Status,
		code.CreatedAt,
	).Error
}

func (r *repo) ListPromotional(ctx context.Context, db *gorm.DB) ([]domain.PromotionalAccount, error) {
	var rows []domain.PromotionalAccount
	err := db.WithContext(ctx).Raw(
		`SELECT id AS account_id, invite_code
		 FROM accounts
		 WHERE tier = 'pro' AND invite_code IS NOT NULL AND invite_code <> ''`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
