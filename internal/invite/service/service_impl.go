package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	"github.com/stemforge/stemforge/internal/clock"
	"github.com/stemforge/stemforge/internal/invite/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	accountRepo accountdomain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("invite.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
	}
}

func (s *Service) Use(ctx context.Context, accountID snowflake.ID, code string) error {
	code = strings.TrimSpace(code)

	account, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return accountdomain.ErrNotFound
	}

	// No stacking: an elevated account waits for its code to lapse, and a
	// permanent pro account never takes a code.
	if account.Tier == accountdomain.TierPro {
		if account.Promotional() {
			return domain.ErrCodeAlreadyApplied
		}
		return domain.ErrPermanentTier
	}

	invite, err := s.validate(ctx, s.db, accountID, code)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, txErr := s.accountRepo.ApplyTier(ctx, tx, accountID, account.Tier, invite.TargetTier, &invite.Code)
		if txErr != nil {
			return txErr
		}
		if !applied {
			return domain.ErrCodeAlreadyApplied
		}
		return s.repo.InsertUsage(ctx, tx, &domain.Usage{
			ID:        s.genID.Generate(),
			Code:      invite.Code,
			AccountID: accountID,
			CreatedAt: s.clock.Now(),
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("invite code applied",
		zap.String("account_id", accountID.String()),
		zap.String("code", invite.Code),
		zap.String("target_tier", invite.TargetTier),
	)
	return nil
}

func (s *Service) Check(ctx context.Context, accountID snowflake.ID, code string) error {
	_, err := s.validate(ctx, s.db, accountID, strings.TrimSpace(code))
	return err
}

// validate is the single validity check shared by Use, Check and the sweep
// so the paths cannot diverge.
func (s *Service) validate(ctx context.Context, db *gorm.DB, accountID snowflake.ID, code string) (*domain.Code, error) {
	if code == "" {
		return nil, domain.ErrCodeNotFound
	}
	invite, err := s.repo.FindCode(ctx, db, code)
	if err != nil {
		return nil, err
	}
	if invite == nil {
		return nil, domain.ErrCodeNotFound
	}

	count, err := s.repo.UsageCount(ctx, db, code, accountID)
	if err != nil {
		return nil, err
	}
	if err := invite.Valid(s.clock.Now(), count); err != nil {
		return nil, err
	}
	return invite, nil
}

func (s *Service) RevalidateAll(ctx context.Context) (int, error) {
	elevated, err := s.repo.ListPromotional(ctx, s.db)
	if err != nil {
		return 0, err
	}
	if len(elevated) == 0 {
		return 0, nil
	}

	downgraded := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range elevated {
			if _, vErr := s.validate(ctx, tx, row.AccountID, row.InviteCode); vErr == nil {
				continue
			} else if !isValidationError(vErr) {
				return vErr
			}
			ok, txErr := s.accountRepo.ApplyTier(ctx, tx, row.AccountID, accountdomain.TierPro, accountdomain.TierFree, nil)
			if txErr != nil {
				return txErr
			}
			if ok {
				downgraded++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("tier revalidation sweep finished",
		zap.Int("elevated", len(elevated)),
		zap.Int("downgraded", downgraded),
	)
	return downgraded, nil
}

func isValidationError(err error) bool {
	switch err {
	case domain.ErrCodeNotFound,
		domain.ErrCodeInactive,
		domain.ErrCodeNotYetValid,
		domain.ErrCodeExpired,
		domain.ErrCodeExhausted:
		return true
	}
	return false
}
