package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ConsumptionRecord struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID       snowflake.ID `gorm:"not null;index" json:"account_id"`
	RecordID        snowflake.ID `gorm:"not null;index" json:"record_id"`
	ServiceType     string       `gorm:"not null" json:"service_type"`
	DurationSeconds float64      `gorm:"not null" json:"duration_seconds"`
	CreditsCost     float64      `gorm:"not null" json:"credits_cost"`
	Status          string       `gorm:"not null;default:'completed'" json:"status"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ConsumptionRecord) TableName() string {
	return "consumption_records"
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *ConsumptionRecord) error
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*ConsumptionRecord, error)
	SumByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (float64, error)
}

type ChargeRequest struct {
	AccountID       snowflake.ID
	Tier            string
	RecordID        snowflake.ID
	ServiceType     string
	DurationSeconds float64
}

type Service interface {
	// Charge resolves the price for the account's tier, deducts the balance
	// and appends the consumption record in one transactional unit.
	Charge(ctx context.Context, req ChargeRequest) (*ConsumptionRecord, error)

	// Quote returns the credits a charge would cost without mutating anything.
	Quote(ctx context.Context, serviceType, tier string, durationSeconds float64) (float64, error)

	ListByAccount(ctx context.Context, accountID snowflake.ID, limit int) ([]*ConsumptionRecord, error)
	TotalConsumed(ctx context.Context, accountID snowflake.ID) (float64, error)
}

var ErrInvalidCharge = errors.New("invalid_charge")
