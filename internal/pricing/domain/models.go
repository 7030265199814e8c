package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	ServicePianoTranscription = "piano_transcription"
	ServiceSpleeter           = "spleeter"
	ServiceYourMT3            = "yourmt3"
)

// BillingUnitSeconds is the fixed time quantum one billing unit covers.
const BillingUnitSeconds = 180

type Pricing struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ServiceType  string       `gorm:"not null;index" json:"service_type"`
	Tier         string       `gorm:"not null" json:"tier"`
	PricePerUnit float64      `gorm:"not null" json:"price_per_unit"`
	IsActive     bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Pricing) TableName() string {
	return "pricing"
}

type Repository interface {
	FindActive(ctx context.Context, db *gorm.DB, serviceType, tier string) (*Pricing, error)
	List(ctx context.Context, db *gorm.DB) ([]*Pricing, error)
}

type Service interface {
	// ResolvePrice returns the per-unit price for (service, tier), preferring
	// active override rows and falling back to the built-in default table.
	ResolvePrice(ctx context.Context, serviceType, tier string) (float64, error)
}

var (
	ErrUnknownService    = errors.New("unknown_service")
	ErrPricingNotDefined = errors.New("pricing_not_defined")
)

func ValidServiceType(serviceType string) bool {
	switch serviceType {
	case ServicePianoTranscription, ServiceSpleeter, ServiceYourMT3:
		return true
	default:
		return false
	}
}
