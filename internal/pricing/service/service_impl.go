package service

import (
	"context"
	"math"

	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	"github.com/stemforge/stemforge/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// defaultPrices is the built-in (service, tier) price table. A combination
// missing here is an implementation error, never a runtime fallback.
var defaultPrices = map[string]map[string]float64{
	domain.ServicePianoTranscription: {
		accountdomain.TierFree: 2.0,
		accountdomain.TierPro:  1.5,
	},
	domain.ServiceSpleeter: {
		accountdomain.TierFree: 3.0,
		accountdomain.TierPro:  2.25,
	},
	domain.ServiceYourMT3: {
		accountdomain.TierFree: 4.0,
		accountdomain.TierPro:  3.0,
	},
}

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("pricing.service"),
		repo: p.Repo,
	}
}

func (s *Service) ResolvePrice(ctx context.Context, serviceType, tier string) (float64, error) {
	if !domain.ValidServiceType(serviceType) {
		return 0, domain.ErrUnknownService
	}

	override, err := s.repo.FindActive(ctx, s.db, serviceType, tier)
	if err != nil {
		return 0, err
	}
	if override != nil {
		return override.PricePerUnit, nil
	}

	tiers, ok := defaultPrices[serviceType]
	if !ok {
		return 0, domain.ErrPricingNotDefined
	}
	price, ok := tiers[tier]
	if !ok {
		return 0, domain.ErrPricingNotDefined
	}
	return price, nil
}

// ComputeCharge converts an audio duration into credits. One billing unit is
// 180 seconds; any fractional unit rounds up to a full unit.
func ComputeCharge(durationSeconds float64, pricePerUnit float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	units := math.Ceil(durationSeconds / domain.BillingUnitSeconds)
	return units * pricePerUnit
}
