package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	invitedomain "github.com/stemforge/stemforge/internal/invite/domain"
	pricingdomain "github.com/stemforge/stemforge/internal/pricing/domain"
	"gorm.io/gorm"
)

// EnsurePricing seeds one active price row per (service, tier) so a fresh
// install bills with the published rates.
func EnsurePricing(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	type rate struct {
		service string
		tier    string
		price   float64
	}
	rates := []rate{
		{pricingdomain.ServicePianoTranscription, accountdomain.TierFree, 2.0},
		{pricingdomain.ServicePianoTranscription, accountdomain.TierPro, 1.5},
		{pricingdomain.ServiceSpleeter, accountdomain.TierFree, 3.0},
		{pricingdomain.ServiceSpleeter, accountdomain.TierPro, 2.25},
		{pricingdomain.ServiceYourMT3, accountdomain.TierFree, 4.0},
		{pricingdomain.ServiceYourMT3, accountdomain.TierPro, 3.0},
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rates {
			var existing pricingdomain.Pricing
			err := tx.WithContext(ctx).
				Where("service_type = ? AND tier = ?", r.service, r.tier).
				First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			now := time.Now().UTC()
			row := pricingdomain.Pricing{
				ID:           node.Generate(),
				ServiceType:  r.service,
				Tier:         r.tier,
				PricePerUnit: r.price,
				IsActive:     true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureInviteCodes seeds the launch promotion codes.
func EnsureInviteCodes(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	now := time.Now().UTC()
	days := func(n int) *time.Time {
		until := now.AddDate(0, 0, n)
		return &until
	}

	codes := []invitedomain.Code{
		{Code: "PRO2025", TargetTier: accountdomain.TierPro, MaxUsage: 100, ValidUntil: days(365), Status: invitedomain.CodeStatusActive},
		{Code: "EARLYBIRD", TargetTier: accountdomain.TierPro, MaxUsage: 50, ValidUntil: days(30), Status: invitedomain.CodeStatusActive},
		{Code: "TESTPRO", TargetTier: accountdomain.TierPro, MaxUsage: 10, ValidUntil: days(7), Status: invitedomain.CodeStatusActive},
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, code := range codes {
			var existing invitedomain.Code
			err := tx.WithContext(ctx).Where("code = ?", code.Code).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			code.CreatedAt = now
			if err := tx.WithContext(ctx).Create(&code).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
