package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	"github.com/stemforge/stemforge/internal/ledger/domain"
	pricingdomain "github.com/stemforge/stemforge/internal/pricing/domain"
	pricingservice "github.com/stemforge/stemforge/internal/pricing/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
	PricingSvc  pricingdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	accountRepo accountdomain.Repository
	pricingSvc  pricingdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		pricingSvc:  p.PricingSvc,
	}
}

func (s *Service) Quote(ctx context.Context, serviceType, tier string, durationSeconds float64) (float64, error) {
	price, err := s.pricingSvc.ResolvePrice(ctx, serviceType, tier)
	if err != nil {
		return 0, err
	}
	return pricingservice.ComputeCharge(durationSeconds, price), nil
}

func (s *Service) Charge(ctx context.Context, req domain.ChargeRequest) (*domain.ConsumptionRecord, error) {
	if req.AccountID == 0 || req.RecordID == 0 || req.DurationSeconds <= 0 {
		return nil, domain.ErrInvalidCharge
	}

	credits, err := s.Quote(ctx, req.ServiceType, req.Tier, req.DurationSeconds)
	if err != nil {
		return nil, err
	}

	record := &domain.ConsumptionRecord{
		ID:              s.genID.Generate(),
		AccountID:       req.AccountID,
		RecordID:        req.RecordID,
		ServiceType:     req.ServiceType,
		DurationSeconds: req.DurationSeconds,
		CreditsCost:     credits,
		Status:          "completed",
		CreatedAt:       time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.DeductCredits(ctx, tx, req.AccountID, credits); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("charged account",
		zap.String("account_id", req.AccountID.String()),
		zap.String("service_type", req.ServiceType),
		zap.Float64("credits", credits),
	)
	return record, nil
}

func (s *Service) ListByAccount(ctx context.Context, accountID snowflake.ID, limit int) ([]*domain.ConsumptionRecord, error) {
	return s.repo.ListByAccount(ctx, s.db, accountID, limit)
}

func (s *Service) TotalConsumed(ctx context.Context, accountID snowflake.ID) (float64, error) {
	return s.repo.SumByAccount(ctx, s.db, accountID)
}
