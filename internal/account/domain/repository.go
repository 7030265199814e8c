package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Account, error)

	// DeductCredits decrements the balance only when it covers the amount.
	// Returns ErrInsufficientCredits when the conditional update matches no row.
	DeductCredits(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64) error

	// AddCredits increments both the balance and the cumulative recharge counter.
	AddCredits(ctx context.Context, db *gorm.DB, id snowflake.ID, amount float64) error

	// ApplyTier sets tier and invite code only while the account still holds
	// the expected current tier and code.
	ApplyTier(ctx context.Context, db *gorm.DB, id snowflake.ID, fromTier string, tier string, code *string) (bool, error)
}
