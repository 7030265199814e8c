package wechat

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemforge/stemforge/internal/config"
	"github.com/stemforge/stemforge/internal/recharge/domain"
	"go.uber.org/zap"
)

const (
	TradeStateSuccess  = "SUCCESS"
	TradeStateNotPay   = "NOTPAY"
	TradeStateClosed   = "CLOSED"
	TradeStateRefund   = "REFUND"
	TradeStatePayError = "PAYERROR"
)

// Client talks to the mobile-wallet v2 API: XML bodies signed with an MD5
// digest over sorted key=value pairs plus the shared secret.
type Client struct {
	appID     string
	mchID     string
	apiKey    string
	notifyURL string
	baseURL   string
	http      *http.Client
	log       *zap.Logger
}

func NewClient(cfg config.WeChatConfig, log *zap.Logger) *Client {
	return &Client{
		appID:     cfg.AppID,
		mchID:     cfg.MchID,
		apiKey:    cfg.APIKey,
		notifyURL: cfg.NotifyURL,
		baseURL:   cfg.BaseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       log.Named("recharge.wechat"),
	}
}

// WithBaseURL points the client at a different API host. Used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// UnifiedOrderResult is the prepay handle from a native order.
type UnifiedOrderResult struct {
	PrepayID string
	CodeURL  string
}

// UnifiedOrder opens a native QR order. totalFee is in cents (fen).
func (c *Client) UnifiedOrder(ctx context.Context, tradeNo, body string, totalFee int64) (*UnifiedOrderResult, error) {
	params := map[string]string{
		"appid":            c.appID,
		"mch_id":           c.mchID,
		"nonce_str":        strings.ReplaceAll(uuid.NewString(), "-", ""),
		"body":             body,
		"out_trade_no":     tradeNo,
		"total_fee":        fmt.Sprintf("%d", totalFee),
		"spbill_create_ip": "127.0.0.1",
		"notify_url":       c.notifyURL,
		"trade_type":       "NATIVE",
	}
	params["sign"] = Sign(params, c.apiKey)

	fields, err := c.post(ctx, "/pay/unifiedorder", params)
	if err != nil {
		return nil, err
	}
	if fields["return_code"] != "SUCCESS" || fields["result_code"] != "SUCCESS" {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrRailRequest, fields["return_msg"], fields["err_code_des"])
	}
	return &UnifiedOrderResult{
		PrepayID: fields["prepay_id"],
		CodeURL:  fields["code_url"],
	}, nil
}

// OrderQueryResult is the rail's view of an order.
type OrderQueryResult struct {
	TradeState    string
	TransactionID string
	TotalFee      int64
}

// OrderQuery asks the rail for the order state. The polling fallback.
func (c *Client) OrderQuery(ctx context.Context, tradeNo string) (*OrderQueryResult, error) {
	params := map[string]string{
		"appid":        c.appID,
		"mch_id":       c.mchID,
		"nonce_str":    strings.ReplaceAll(uuid.NewString(), "-", ""),
		"out_trade_no": tradeNo,
	}
	params["sign"] = Sign(params, c.apiKey)

	fields, err := c.post(ctx, "/pay/orderquery", params)
	if err != nil {
		return nil, err
	}
	if fields["return_code"] != "SUCCESS" {
		return nil, fmt.Errorf("%w: %s", domain.ErrRailRequest, fields["return_msg"])
	}
	if fields["result_code"] != "SUCCESS" {
		return nil, domain.ErrUnknownOrder
	}

	var totalFee int64
	_, _ = fmt.Sscanf(fields["total_fee"], "%d", &totalFee)
	return &OrderQueryResult{
		TradeState:    fields["trade_state"],
		TransactionID: fields["transaction_id"],
		TotalFee:      totalFee,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, params map[string]string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(MarshalXML(params)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRailRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrRailRequest, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRailRequest, err)
	}
	return ParseXML(body)
}

// Notification is a parsed payment callback.
type Notification struct {
	ReturnCode    string
	ResultCode    string
	OutTradeNo    string
	TransactionID string
	TotalFee      int64
}

// ParseNotification decodes and authenticates a callback payload. The sign
// field must match the MD5 digest computed over every other field.
func (c *Client) ParseNotification(payload []byte) (*Notification, error) {
	fields, err := ParseXML(payload)
	if err != nil {
		return nil, domain.ErrSignatureMismatch
	}

	sign, ok := fields["sign"]
	if !ok || sign == "" {
		return nil, domain.ErrSignatureMismatch
	}
	unsigned := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "sign" {
			continue
		}
		unsigned[k] = v
	}
	if Sign(unsigned, c.apiKey) != sign {
		return nil, domain.ErrSignatureMismatch
	}

	var totalFee int64
	_, _ = fmt.Sscanf(fields["total_fee"], "%d", &totalFee)
	return &Notification{
		ReturnCode:    fields["return_code"],
		ResultCode:    fields["result_code"],
		OutTradeNo:    fields["out_trade_no"],
		TransactionID: fields["transaction_id"],
		TotalFee:      totalFee,
	}, nil
}

// AckSuccess and AckFail are the rail-specific callback responses.
func AckSuccess() string {
	return `<xml><return_code><![CDATA[SUCCESS]]></return_code><return_msg><![CDATA[OK]]></return_msg></xml>`
}

func AckFail(msg string) string {
	return fmt.Sprintf(`<xml><return_code><![CDATA[FAIL]]></return_code><return_msg><![CDATA[%s]]></return_msg></xml>`, msg)
}

// Sign computes the v2 MD5 signature: keys sorted, empty values skipped,
// joined as k=v pairs with the shared secret appended, digest uppercased.
func Sign(params map[string]string, apiKey string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" || k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
		sb.WriteByte('&')
	}
	sb.WriteString("key=")
	sb.WriteString(apiKey)

	digest := md5.Sum([]byte(sb.String()))
	return strings.ToUpper(hex.EncodeToString(digest[:]))
}

// MarshalXML renders params as the flat CDATA-wrapped XML the v2 API expects.
func MarshalXML(params map[string]string) []byte {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString("<xml>")
	for _, k := range keys {
		buf.WriteString("<" + k + "><![CDATA[" + params[k] + "]]></" + k + ">")
	}
	buf.WriteString("</xml>")
	return buf.Bytes()
}

// ParseXML flattens a one-level XML document into a string map.
func ParseXML(payload []byte) (map[string]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	fields := make(map[string]string)

	var current string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local != "xml" {
				current = t.Name.Local
			}
		case xml.CharData:
			if current != "" {
				fields[current] += string(t)
			}
		case xml.EndElement:
			current = ""
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty xml payload")
	}
	for k, v := range fields {
		fields[k] = strings.TrimSpace(v)
	}
	return fields, nil
}
