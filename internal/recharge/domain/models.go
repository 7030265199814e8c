package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	RailStripe = "stripe"
	RailWeChat = "wechat"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

// Record is one recharge attempt. It is written pending before the rail is
// contacted, so every external reference traces back to a local row.
type Record struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID   snowflake.ID `gorm:"not null;index" json:"account_id"`
	Rail        string       `gorm:"not null" json:"rail"`
	Credits     float64      `gorm:"not null" json:"credits"`
	AmountCents int64        `gorm:"not null" json:"amount_cents"`
	Currency    string       `gorm:"not null;default:'usd'" json:"currency"`
	PriceID     *string      `json:"price_id,omitempty"`
	ExternalRef string       `gorm:"not null;uniqueIndex" json:"external_ref"`
	Status      string       `gorm:"not null;default:'pending'" json:"status"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Record) TableName() string {
	return "recharge_records"
}

// StripeOrder is what the caller needs to send the user to checkout.
type StripeOrder struct {
	RecordID    string `json:"record_id"`
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// WeChatOrder carries the prepay handle for the native QR flow.
type WeChatOrder struct {
	RecordID string `json:"record_id"`
	PrepayID string `json:"prepay_id"`
	CodeURL  string `json:"code_url"`
	TradeNo  string `json:"trade_no"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *Record) error
	FindByExternalRef(ctx context.Context, db *gorm.DB, externalRef string) (*Record, error)

	// MarkCompleted transitions pending to completed. Returns false when
	// the row was not pending, which callers treat as an idempotent no-op.
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]*Record, error)
	ListPending(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]*Record, error)
}

type Service interface {
	// CreateStripeOrder opens a checkout session for a catalog bundle.
	CreateStripeOrder(ctx context.Context, accountID snowflake.ID, priceID string) (*StripeOrder, error)

	// HandleStripeWebhook verifies and settles a checkout completion.
	HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) error

	// CreateWeChatOrder opens a native QR order for a free-form amount.
	CreateWeChatOrder(ctx context.Context, accountID snowflake.ID, credits float64) (*WeChatOrder, error)

	// HandleWeChatCallback verifies and settles a payment notification.
	// The returned XML is the acknowledgement body for the rail.
	HandleWeChatCallback(ctx context.Context, payload []byte) (string, error)

	// ReconcileOrder polls the rail for a single order and settles it if
	// the webhook was missed.
	ReconcileOrder(ctx context.Context, externalRef string) error

	// ReconcilePending sweeps stale pending records through ReconcileOrder.
	ReconcilePending(ctx context.Context) (int, error)

	ListByAccount(ctx context.Context, accountID snowflake.ID, limit int) ([]*Record, error)
}

var (
	ErrSignatureMismatch = errors.New("signature_mismatch")
	ErrAmountMismatch    = errors.New("amount_mismatch")
	ErrUnknownOrder      = errors.New("unknown_order")
	ErrUnknownPriceID    = errors.New("unknown_price_id")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrRailRequest       = errors.New("rail_request_failed")
)
