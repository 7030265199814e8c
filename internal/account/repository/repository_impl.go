package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/stemforge/stemforge/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accounts (id, external_id, email, tier, credits, total_recharged, status, invite_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.ExternalID,
		account.Email,
		account.Tier,
		account.Credits,
		account.TotalRecharged,
		account.Status,
		account.InviteCode,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_id, email, tier, credits, total_recharged, status, invite_code, created_at, updated_at
		 FROM accounts WHERE id = ?`,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT id, external_id, email, tier, credits, total_recharged, status, invite_code, created_at, updated_at
		 FROM accounts WHERE external_id = ?`,
		externalID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) DeductCredits(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET credits = credits - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND credits >= ?`,
		amount,
		id,
		amount,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrInsufficientCredits
	}
	return nil
}

func (r *repo) AddCredits(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET credits = credits + ?, total_recharged = total_recharged + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		amount,
		amount,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) ApplyTier(ctx context.Context, db *gorm.DB, id snowflake.ID, fromTier string, tier string, code *string) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts
		 SET tier = ?, invite_code = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND tier = ?`,
		tier,
		code,
		id,
		fromTier,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
