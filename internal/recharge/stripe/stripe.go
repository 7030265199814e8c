package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stemforge/stemforge/internal/config"
	"github.com/stemforge/stemforge/internal/recharge/domain"
	"go.uber.org/zap"
)

// Bundle is a purchasable fixed credit pack. Stripe orders are catalog-only:
// the price identifier resolves server-side to a credit quantity and a cent
// amount, and the webhook re-validates it before crediting.
type Bundle struct {
	PriceID     string
	Credits     float64
	AmountCents int64
	Currency    string
}

// Catalog maps price identifiers to bundles.
type Catalog map[string]Bundle

// DefaultCatalog holds the built-in credit packs.
func DefaultCatalog() Catalog {
	return Catalog{
		"price_starter_100": {PriceID: "price_starter_100", Credits: 100, AmountCents: 999, Currency: "usd"},
		"price_studio_500":  {PriceID: "price_studio_500", Credits: 500, AmountCents: 3999, Currency: "usd"},
		"price_label_2000":  {PriceID: "price_label_2000", Credits: 2000, AmountCents: 12999, Currency: "usd"},
	}
}

func (c Catalog) Resolve(priceID string) (Bundle, error) {
	bundle, ok := c[strings.TrimSpace(priceID)]
	if !ok {
		return Bundle{}, domain.ErrUnknownPriceID
	}
	return bundle, nil
}

// Client talks to the card-network checkout API.
type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	successURL    string
	cancelURL     string
	http          *http.Client
	log           *zap.Logger
}

func NewClient(cfg config.StripeConfig, log *zap.Logger) *Client {
	return &Client{
		baseURL:       "https://api.stripe.com",
		secretKey:     cfg.SecretKey,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		http:          &http.Client{Timeout: 30 * time.Second},
		log:           log.Named("recharge.stripe"),
	}
}

// WithBaseURL points the client at a different API host. Used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type CheckoutSession struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	ClientRef     string `json:"client_reference_id"`
	AmountTotal   int64  `json:"amount_total"`
	Currency      string `json:"currency"`
}

// CreateCheckoutSession opens a hosted checkout for the bundle, tagging the
// session with the local record reference.
func (c *Client) CreateCheckoutSession(ctx context.Context, bundle Bundle, clientRef string) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", clientRef)
	form.Set("success_url", c.successURL)
	form.Set("cancel_url", c.cancelURL)
	form.Set("line_items[0][price]", bundle.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("metadata[price_id]", bundle.PriceID)
	form.Set("metadata[credits]", strconv.FormatFloat(bundle.Credits, 'f', -1, 64))

	session := &CheckoutSession{}
	if err := c.post(ctx, "/v1/checkout/sessions", form, session); err != nil {
		return nil, err
	}
	return session, nil
}

// GetCheckoutSession is the polling fallback for missed webhooks.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/checkout/sessions/"+sessionID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRailRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrUnknownOrder
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrRailRequest, resp.StatusCode)
	}

	session := &CheckoutSession{}
	if err := json.NewDecoder(resp.Body).Decode(session); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRailRequest, err)
	}
	return session, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRailRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.log.Warn("stripe request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", payload),
		)
		return fmt.Errorf("%w: status %d", domain.ErrRailRequest, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Event is the webhook envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// VerifySignature checks the Stripe-Signature header against the payload.
func (c *Client) VerifySignature(payload []byte, header string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return domain.ErrSignatureMismatch
	}

	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return domain.ErrSignatureMismatch
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrSignatureMismatch
}

// ParseCheckoutCompleted extracts the session from a completion event.
// Other event types return ErrUnknownOrder so the webhook acks and moves on.
func ParseCheckoutCompleted(payload []byte) (*CheckoutSession, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrUnknownOrder
	}
	if strings.TrimSpace(event.Type) != "checkout.session.completed" {
		return nil, domain.ErrUnknownOrder
	}

	session := &CheckoutSession{}
	if err := json.Unmarshal(event.Data.Object, session); err != nil {
		return nil, domain.ErrUnknownOrder
	}
	if session.ID == "" {
		return nil, domain.ErrUnknownOrder
	}
	return session, nil
}

// SignPayload produces a valid Stripe-Signature header value for payload.
// Used by tests to forge authentic deliveries.
func SignPayload(payload []byte, secret string, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		switch keyValue[0] {
		case "t":
			timestamp = keyValue[1]
		case "v1":
			signatures = append(signatures, keyValue[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, domain.ErrSignatureMismatch
	}
	return timestamp, signatures, nil
}
