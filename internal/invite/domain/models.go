package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	CodeStatusActive   = "active"
	CodeStatusDisabled = "disabled"
)

type Code struct {
	Code       string     `gorm:"primaryKey" json:"code"`
	TargetTier string     `gorm:"not null" json:"target_tier"`
	MaxUsage   int        `gorm:"not null;default:0" json:"max_usage"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Status     string     `gorm:"not null;default:'active'" json:"status"`
	CreatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Code) TableName() string {
	return "invite_codes"
}

// Valid reports whether the code can be applied right now given the
// account's own usage count. Usage is counted from the usage table, never
// from a stored counter.
func (c Code) Valid(now time.Time, usageCount int) error {
	if c.Status != CodeStatusActive {
		return ErrCodeInactive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrCodeNotYetValid
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return ErrCodeExpired
	}
	if c.MaxUsage > 0 && usageCount >= c.MaxUsage {
		return ErrCodeExhausted
	}
	return nil
}

type Usage struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Code      string       `gorm:"not null;index:idx_invite_usage" json:"code"`
	AccountID snowflake.ID `gorm:"not null;index:idx_invite_usage" json:"account_id"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Usage) TableName() string {
	return "invite_usages"
}

type Repository interface {
	FindCode(ctx context.Context, db *gorm.DB, code string) (*Code, error)
	UsageCount(ctx context.Context, db *gorm.DB, code string, accountID snowflake.ID) (int, error)
	InsertUsage(ctx context.Context, db *gorm.DB, usage *Usage) error
	InsertCode(ctx context.Context, db *gorm.DB, code *Code) error

	// ListPromotional selects every account currently elevated by a code.
	ListPromotional(ctx context.Context, db *gorm.DB) ([]PromotionalAccount, error)
}

// PromotionalAccount is the sweep's working row.
type PromotionalAccount struct {
	AccountID  snowflake.ID
	InviteCode string
}

type Service interface {
	// Use applies a code to the account as one atomic unit.
	Use(ctx context.Context, accountID snowflake.ID, code string) error

	// Check runs the same validation Use would, without mutating anything.
	Check(ctx context.Context, accountID snowflake.ID, code string) error

	// RevalidateAll downgrades every elevated account whose code lapsed,
	// in a single transaction. Returns the number of downgrades.
	RevalidateAll(ctx context.Context) (int, error)
}

var (
	ErrCodeNotFound       = errors.New("invite_code_not_found")
	ErrCodeInactive       = errors.New("invite_code_inactive")
	ErrCodeNotYetValid    = errors.New("invite_code_not_yet_valid")
	ErrCodeExpired        = errors.New("invite_code_expired")
	ErrCodeExhausted      = errors.New("invite_code_exhausted")
	ErrCodeAlreadyApplied = errors.New("invite_code_already_applied")
	ErrPermanentTier      = errors.New("tier_not_promotional")
)
