package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TierFree = "free"
	TierPro  = "pro"
)

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusBanned    = "banned"
)

type Account struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	ExternalID     string       `gorm:"not null;uniqueIndex" json:"external_id"`
	Email          string       `gorm:"not null" json:"email"`
	Tier           string       `gorm:"not null;default:'free'" json:"tier"`
	Credits        float64      `gorm:"not null;default:0" json:"credits"`
	TotalRecharged float64      `gorm:"not null;default:0" json:"total_recharged"`
	Status         string       `gorm:"not null;default:'active'" json:"status"`
	InviteCode     *string      `gorm:"column:invite_code" json:"invite_code,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// Promotional reports whether the pro tier was granted by an invite code
// and is therefore revocable by the revalidation sweep.
func (a Account) Promotional() bool {
	return a.Tier == TierPro && a.InviteCode != nil && *a.InviteCode != ""
}
