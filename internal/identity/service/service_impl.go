package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	"github.com/stemforge/stemforge/internal/config"
	"github.com/stemforge/stemforge/internal/identity/domain"
	pkgdb "github.com/stemforge/stemforge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Config      config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Directory   domain.Directory
	AccountRepo accountdomain.Repository
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	directory      domain.Directory
	accountRepo    accountdomain.Repository
	initialCredits float64
}

func NewService(p Params) domain.Syncer {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("identity.service"),
		genID:          p.GenID,
		directory:      p.Directory,
		accountRepo:    p.AccountRepo,
		initialCredits: p.Config.InitialCredits,
	}
}

func (s *Service) SyncAll(ctx context.Context) (int, error) {
	created := 0
	for page := 1; ; page++ {
		users, err := s.directory.ListUsers(ctx, page, 100)
		if err != nil {
			return created, err
		}
		if len(users) == 0 {
			break
		}
		for _, user := range users {
			ok, err := s.ensureAccount(ctx, user)
			if err != nil {
				s.log.Warn("sync user failed",
					zap.String("external_id", user.ID),
					zap.Error(err),
				)
				continue
			}
			if ok {
				created++
			}
		}
		if len(users) < 100 {
			break
		}
	}
	if created > 0 {
		s.log.Info("directory sync created accounts", zap.Int("created", created))
	}
	return created, nil
}

func (s *Service) SyncOne(ctx context.Context, externalID string) error {
	account, err := s.accountRepo.FindByExternalID(ctx, s.db, externalID)
	if err != nil {
		return err
	}
	if account != nil {
		return nil
	}

	user, err := s.directory.GetUser(ctx, externalID)
	if err != nil {
		return err
	}
	_, err = s.ensureAccount(ctx, *user)
	return err
}

// ensureAccount inserts the account when it is not mirrored yet. Returns
// true when a new account row was written.
func (s *Service) ensureAccount(ctx context.Context, user domain.DirectoryUser) (bool, error) {
	existing, err := s.accountRepo.FindByExternalID(ctx, s.db, user.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	now := time.Now().UTC()
	account := &accountdomain.Account{
		ID:         s.genID.Generate(),
		ExternalID: user.ID,
		Email:      user.Email,
		Tier:       accountdomain.TierFree,
		Credits:    s.initialCredits,
		Status:     accountdomain.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.accountRepo.Insert(ctx, s.db, account); err != nil {
		// Another replica can mirror the same identity between the lookup
		// and the insert.
		if pkgdb.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
