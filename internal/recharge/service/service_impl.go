package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	"github.com/stemforge/stemforge/internal/recharge/domain"
	"github.com/stemforge/stemforge/internal/recharge/stripe"
	"github.com/stemforge/stemforge/internal/recharge/wechat"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// creditPriceCents converts wallet credits to fen for the QR rail.
const creditPriceCents = 10

// amountTolerance absorbs rounding differences between the local amount
// and what the rail reports, in currency units.
const amountTolerance = 0.01

// reconcileAge is how stale a pending record must be before the polling
// fallback touches it, leaving fresh checkouts to their webhooks.
const reconcileAge = 5 * time.Minute

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
	Stripe      *stripe.Client
	Catalog     *stripe.CatalogHolder
	WeChat      *wechat.Client
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	accountRepo accountdomain.Repository
	stripe      *stripe.Client
	catalog     *stripe.CatalogHolder
	wechat      *wechat.Client
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("recharge.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		stripe:      p.Stripe,
		catalog:     p.Catalog,
		wechat:      p.WeChat,
	}
}

func (s *Service) CreateStripeOrder(ctx context.Context, accountID snowflake.ID, priceID string) (*domain.StripeOrder, error) {
	bundle, err := s.catalog.Get().Resolve(priceID)
	if err != nil {
		return nil, err
	}

	recordID := s.genID.Generate()
	session, err := s.stripe.CreateCheckoutSession(ctx, bundle, recordID.String())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &domain.Record{
		ID:          recordID,
		AccountID:   accountID,
		Rail:        domain.RailStripe,
		Credits:     bundle.Credits,
		AmountCents: bundle.AmountCents,
		Currency:    bundle.Currency,
		PriceID:     &bundle.PriceID,
		ExternalRef: session.ID,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		return nil, err
	}

	return &domain.StripeOrder{
		RecordID:    recordID.String(),
		CheckoutURL: session.URL,
		SessionID:   session.ID,
	}, nil
}

func (s *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if err := s.stripe.VerifySignature(payload, signatureHeader); err != nil {
		return err
	}

	session, err := stripe.ParseCheckoutCompleted(payload)
	if err != nil {
		return err
	}
	if session.PaymentStatus != "" && session.PaymentStatus != "paid" {
		return nil
	}

	record, err := s.repo.FindByExternalRef(ctx, s.db, session.ID)
	if err != nil {
		return err
	}
	if record == nil {
		return domain.ErrUnknownOrder
	}

	// The price identifier is revalidated against the server-side catalog
	// before any crediting; an unknown identifier is rejected outright.
	if record.PriceID == nil {
		return domain.ErrUnknownPriceID
	}
	bundle, err := s.catalog.Get().Resolve(*record.PriceID)
	if err != nil {
		return err
	}
	if session.AmountTotal != 0 && session.AmountTotal != bundle.AmountCents {
		return domain.ErrAmountMismatch
	}

	return s.complete(ctx, record)
}

func (s *Service) CreateWeChatOrder(ctx context.Context, accountID snowflake.ID, credits float64) (*domain.WeChatOrder, error) {
	if credits <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	recordID := s.genID.Generate()
	tradeNo := fmt.Sprintf("SF%s", recordID.String())
	amountCents := int64(math.Round(credits * creditPriceCents))

	order, err := s.wechat.UnifiedOrder(ctx, tradeNo, "stemforge credits", amountCents)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &domain.Record{
		ID:          recordID,
		AccountID:   accountID,
		Rail:        domain.RailWeChat,
		Credits:     credits,
		AmountCents: amountCents,
		Currency:    "cny",
		ExternalRef: tradeNo,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		return nil, err
	}

	return &domain.WeChatOrder{
		RecordID: recordID.String(),
		PrepayID: order.PrepayID,
		CodeURL:  order.CodeURL,
		TradeNo:  tradeNo,
	}, nil
}

func (s *Service) HandleWeChatCallback(ctx context.Context, payload []byte) (string, error) {
	notification, err := s.wechat.ParseNotification(payload)
	if err != nil {
		return wechat.AckFail("bad signature"), err
	}
	if notification.ReturnCode != "SUCCESS" || notification.ResultCode != "SUCCESS" {
		return wechat.AckFail("not success"), nil
	}

	record, err := s.repo.FindByExternalRef(ctx, s.db, notification.OutTradeNo)
	if err != nil {
		return wechat.AckFail("lookup failed"), err
	}
	if record == nil {
		return wechat.AckFail("unknown order"), domain.ErrUnknownOrder
	}

	expected := float64(record.AmountCents) / 100
	got := float64(notification.TotalFee) / 100
	if math.Abs(expected-got) > amountTolerance {
		return wechat.AckFail("amount mismatch"), domain.ErrAmountMismatch
	}

	if err := s.complete(ctx, record); err != nil {
		return wechat.AckFail("settle failed"), err
	}
	return wechat.AckSuccess(), nil
}

func (s *Service) ReconcileOrder(ctx context.Context, externalRef string) error {
	record, err := s.repo.FindByExternalRef(ctx, s.db, externalRef)
	if err != nil {
		return err
	}
	if record == nil {
		return domain.ErrUnknownOrder
	}
	if record.Status != domain.StatusPending {
		return nil
	}

	switch record.Rail {
	case domain.RailWeChat:
		result, qErr := s.wechat.OrderQuery(ctx, record.ExternalRef)
		if qErr != nil {
			return qErr
		}
		switch result.TradeState {
		case wechat.TradeStateSuccess:
			expected := float64(record.AmountCents) / 100
			got := float64(result.TotalFee) / 100
			if math.Abs(expected-got) > amountTolerance {
				return domain.ErrAmountMismatch
			}
			return s.complete(ctx, record)
		case wechat.TradeStateClosed, wechat.TradeStatePayError:
			_, fErr := s.repo.MarkFailed(ctx, s.db, record.ID)
			return fErr
		default:
			return nil
		}
	case domain.RailStripe:
		session, qErr := s.stripe.GetCheckoutSession(ctx, record.ExternalRef)
		if qErr != nil {
			return qErr
		}
		if session.PaymentStatus == "paid" {
			return s.complete(ctx, record)
		}
		return nil
	default:
		return fmt.Errorf("unknown rail %q", record.Rail)
	}
}

func (s *Service) ReconcilePending(ctx context.Context) (int, error) {
	stale, err := s.repo.ListPending(ctx, s.db, time.Now().UTC().Add(-reconcileAge), 100)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, record := range stale {
		before := record.Status
		if rErr := s.ReconcileOrder(ctx, record.ExternalRef); rErr != nil {
			s.log.Warn("reconcile order failed",
				zap.String("external_ref", record.ExternalRef),
				zap.Error(rErr),
			)
			continue
		}
		refreshed, fErr := s.repo.FindByExternalRef(ctx, s.db, record.ExternalRef)
		if fErr == nil && refreshed != nil && before == domain.StatusPending && refreshed.Status == domain.StatusCompleted {
			settled++
		}
	}
	return settled, nil
}

func (s *Service) ListByAccount(ctx context.Context, accountID snowflake.ID, limit int) ([]*domain.Record, error) {
	return s.repo.ListByAccount(ctx, s.db, accountID, limit)
}

// complete settles a recharge exactly once. The pending-conditional update
// is the sole idempotency guard; losing the race is a no-op success.
func (s *Service) complete(ctx context.Context, record *domain.Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		transitioned, err := s.repo.MarkCompleted(ctx, tx, record.ID)
		if err != nil {
			return err
		}
		if !transitioned {
			return nil
		}
		if err := s.accountRepo.AddCredits(ctx, tx, record.AccountID, record.Credits); err != nil {
			return err
		}
		s.log.Info("recharge completed",
			zap.String("record_id", record.ID.String()),
			zap.String("rail", record.Rail),
			zap.Float64("credits", record.Credits),
		)
		return nil
	})
}
