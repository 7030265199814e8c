package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/stemforge/stemforge/internal/account/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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
		log:  p.Log.Named("account.service"),
		repo: p.Repo,
	}
}

func (s *Service) GetByExternalID(ctx context.Context, externalID string) (domain.Account, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.Account{}, domain.ErrInvalidID
	}

	account, err := s.repo.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	if account.Status != domain.StatusActive {
		return domain.Account{}, domain.ErrAccountDisabled
	}
	return *account, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Account, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return domain.Account{}, domain.ErrInvalidID
	}

	account, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}
