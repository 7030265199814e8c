package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	invitedomain "github.com/stemforge/stemforge/internal/invite/domain"
	ledgerdomain "github.com/stemforge/stemforge/internal/ledger/domain"
	pipelinedomain "github.com/stemforge/stemforge/internal/pipeline/domain"
	processingrepo "github.com/stemforge/stemforge/internal/processing/repository"
	rechargedomain "github.com/stemforge/stemforge/internal/recharge/domain"
	"github.com/stemforge/stemforge/internal/server"
	"go.uber.org/zap"
	sqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.Exec(`CREATE TABLE processing_history (
		id INTEGER PRIMARY KEY,
		account_id INTEGER NOT NULL,
		record_id INTEGER NOT NULL,
		consumption_id INTEGER,
		service_type TEXT NOT NULL,
		filename TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'processing',
		error_detail TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`).Error; err != nil {
		t.Fatalf("create processing_history: %v", err)
	}
	return db
}

type fakeAccounts struct {
	accounts map[string]accountdomain.Account
}

func (f *fakeAccounts) GetByExternalID(ctx context.Context, externalID string) (accountdomain.Account, error) {
	account, ok := f.accounts[externalID]
	if !ok {
		return accountdomain.Account{}, accountdomain.ErrNotFound
	}
	if account.Status != accountdomain.StatusActive {
		return accountdomain.Account{}, accountdomain.ErrAccountDisabled
	}
	return account, nil
}

func (f *fakeAccounts) GetByID(ctx context.Context, id string) (accountdomain.Account, error) {
	return accountdomain.Account{}, accountdomain.ErrNotFound
}

type fakeSyncer struct {
	accounts *fakeAccounts
	known    map[string]accountdomain.Account
	synced   int
}

func (f *fakeSyncer) SyncAll(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeSyncer) SyncOne(ctx context.Context, externalID string) error {
	account, ok := f.known[externalID]
	if !ok {
		return accountdomain.ErrNotFound
	}
	f.accounts.accounts[externalID] = account
	f.synced++
	return nil
}

type fakePipeline struct {
	lastReq pipelinedomain.Request
	result  *pipelinedomain.Result
	err     error
}

func (f *fakePipeline) Process(ctx context.Context, req pipelinedomain.Request) (*pipelinedomain.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeLedger struct {
	consumed float64
}

func (f *fakeLedger) Charge(ctx context.Context, req ledgerdomain.ChargeRequest) (*ledgerdomain.ConsumptionRecord, error) {
	return nil, ledgerdomain.ErrInvalidCharge
}

func (f *fakeLedger) Quote(ctx context.Context, serviceType, tier string, durationSeconds float64) (float64, error) {
	return 0, nil
}

func (f *fakeLedger) ListByAccount(ctx context.Context, accountID snowflake.ID, limit int) ([]*ledgerdomain.ConsumptionRecord, error) {
	return nil, nil
}

func (f *fakeLedger) TotalConsumed(ctx context.Context, accountID snowflake.ID) (float64, error) {
	return f.consumed, nil
}

type fakeInvite struct {
	useErr error
}

func (f *fakeInvite) Use(ctx context.Context, accountID snowflake.ID, code string) error {
	return f.useErr
}

func (f *fakeInvite) Check(ctx context.Context, accountID snowflake.ID, code string) error {
	return f.useErr
}

func (f *fakeInvite) RevalidateAll(ctx context.Context) (int, error) { return 0, nil }

type fakeRecharge struct {
	ack    string
	ackErr error
}

func (f *fakeRecharge) CreateStripeOrder(ctx context.Context, accountID snowflake.ID, priceID string) (*rechargedomain.StripeOrder, error) {
	if priceID == "price_unknown" {
		return nil, rechargedomain.ErrUnknownPriceID
	}
	return &rechargedomain.StripeOrder{RecordID: "1", CheckoutURL: "https://checkout.test/cs_1", SessionID: "cs_1"}, nil
}

func (f *fakeRecharge) HandleStripeWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if signatureHeader == "" {
		return rechargedomain.ErrSignatureMismatch
	}
	return nil
}

func (f *fakeRecharge) CreateWeChatOrder(ctx context.Context, accountID snowflake.ID, credits float64) (*rechargedomain.WeChatOrder, error) {
	if credits <= 0 {
		return nil, rechargedomain.ErrInvalidAmount
	}
	return &rechargedomain.WeChatOrder{RecordID: "2", CodeURL: "weixin://wxpay/test", TradeNo: "SF2"}, nil
}

func (f *fakeRecharge) HandleWeChatCallback(ctx context.Context, payload []byte) (string, error) {
	return f.ack, f.ackErr
}

func (f *fakeRecharge) ReconcileOrder(ctx context.Context, externalRef string) error { return nil }

func (f *fakeRecharge) ReconcilePending(ctx context.Context) (int, error) { return 0, nil }

func (f *fakeRecharge) ListByAccount(ctx context.Context, accountID snowflake.ID, limit int) ([]*rechargedomain.Record, error) {
	return nil, nil
}

type env struct {
	engine   *gin.Engine
	accounts *fakeAccounts
	syncer   *fakeSyncer
	pipeline *fakePipeline
	invite   *fakeInvite
	recharge *fakeRecharge
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupTestDB(t)
	accounts := &fakeAccounts{accounts: map[string]accountdomain.Account{
		"user-1": {ID: 101, ExternalID: "user-1", Email: "one@example.com", Tier: accountdomain.TierFree, Credits: 10, Status: accountdomain.StatusActive},
	}}
	syncer := &fakeSyncer{accounts: accounts, known: map[string]accountdomain.Account{
		"user-new": {ID: 102, ExternalID: "user-new", Email: "new@example.com", Tier: accountdomain.TierFree, Credits: 10, Status: accountdomain.StatusActive},
	}}
	pipeline := &fakePipeline{result: &pipelinedomain.Result{
		RecordID:        "900",
		Status:          "completed",
		OutputURL:       "https://cdn.test/outputs/x.zip",
		CreditsCharged:  6,
		DurationSeconds: 200,
	}}
	invite := &fakeInvite{}
	recharge := &fakeRecharge{ack: "<xml><return_code><![CDATA[SUCCESS]]></return_code></xml>"}

	engine := server.NewEngine(zap.NewNop())
	server.NewServer(server.Params{
		Engine:      engine,
		DB:          db,
		Log:         zap.NewNop(),
		AccountSvc:  accounts,
		IdentitySvc: syncer,
		PipelineSvc: pipeline,
		LedgerSvc:   &fakeLedger{consumed: 12.5},
		InviteSvc:   invite,
		RechargeSvc: recharge,
		Records:     processingrepo.Provide(),
	})

	return &env{engine: engine, accounts: accounts, syncer: syncer, pipeline: pipeline, invite: invite, recharge: recharge}
}

func (e *env) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestAuthMissingTokenRejected(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/me", "", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthSyncsUnknownIdentityOnDemand(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/me", "user-new", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if e.syncer.synced != 1 {
		t.Fatalf("expected one on-demand sync, got %d", e.syncer.synced)
	}
	var account accountdomain.Account
	if err := json.Unmarshal(rec.Body.Bytes(), &account); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if account.ExternalID != "user-new" {
		t.Fatalf("unexpected account: %+v", account)
	}
}

func TestAuthUnknownEverywhereRejected(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/me", "user-ghost", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSeparatePassesUploadToPipeline(t *testing.T) {
	e := newEnv(t)

	body, contentType := multipartUpload(t, map[string]string{"stems": "4"}, "track.mp3", "fake-audio-bytes")
	rec := e.do(t, http.MethodPost, "/api/v1/separate", "user-1", body, contentType)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req := e.pipeline.lastReq
	if req.ServiceType != "spleeter" || req.Stems != 4 || req.Filename != "track.mp3" {
		t.Fatalf("unexpected pipeline request: %+v", req)
	}
	if req.Account.ID != 101 {
		t.Fatalf("expected account 101, got %d", req.Account.ID)
	}
	spooled, err := os.ReadFile(req.LocalPath)
	if err == nil && string(spooled) != "fake-audio-bytes" {
		t.Fatalf("spooled content mismatch: %q", spooled)
	}

	var result pipelinedomain.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.RecordID != "900" || result.CreditsCharged != 6 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSeparateInFlightResultMapsTo202(t *testing.T) {
	e := newEnv(t)
	e.pipeline.result = &pipelinedomain.Result{
		RecordID:        "900",
		Status:          "processing",
		JobID:           "job-live",
		DurationSeconds: 200,
	}

	body, contentType := multipartUpload(t, nil, "track.mp3", "fake-audio-bytes")
	rec := e.do(t, http.MethodPost, "/api/v1/separate", "user-1", body, contentType)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var result pipelinedomain.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Status != "processing" || result.JobID != "job-live" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.CreditsCharged != 0 {
		t.Fatalf("in-flight response must not report a charge: %+v", result)
	}
}

func TestTranscribeWithoutFileIsValidationError(t *testing.T) {
	e := newEnv(t)

	body, contentType := func() (*bytes.Buffer, string) {
		b := &bytes.Buffer{}
		w := multipart.NewWriter(b)
		_ = w.Close()
		return b, w.FormDataContentType()
	}()
	rec := e.do(t, http.MethodPost, "/api/v1/transcribe/piano", "user-1", body, contentType)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInsufficientCreditsMapsTo402(t *testing.T) {
	e := newEnv(t)
	e.pipeline.err = accountdomain.ErrInsufficientCredits

	body, contentType := multipartUpload(t, nil, "track.mp3", "x")
	rec := e.do(t, http.MethodPost, "/api/v1/transcribe/piano", "user-1", body, contentType)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBusyPipelineMapsTo409(t *testing.T) {
	e := newEnv(t)
	e.pipeline.err = pipelinedomain.ErrBusy

	body, contentType := multipartUpload(t, nil, "track.mp3", "x")
	rec := e.do(t, http.MethodPost, "/api/v1/separate", "user-1", body, contentType)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInviteUseUnknownCodeMapsTo404(t *testing.T) {
	e := newEnv(t)
	e.invite.useErr = invitedomain.ErrCodeNotFound

	body := bytes.NewBufferString(`{"code":"NOPE"}`)
	rec := e.do(t, http.MethodPost, "/api/v1/invite/use", "user-1", body, "application/json")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStatisticsReportsLedgerTotals(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/v1/statistics", "user-1", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var stats struct {
		Credits       float64 `json:"credits"`
		TotalConsumed float64 `json:"total_consumed"`
		Tier          string  `json:"tier"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalConsumed != 12.5 || stats.Tier != "free" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestWeChatNotifyAlwaysAcks(t *testing.T) {
	e := newEnv(t)
	e.recharge.ackErr = rechargedomain.ErrSignatureMismatch
	e.recharge.ack = "<xml><return_code><![CDATA[FAIL]]></return_code></xml>"

	body := bytes.NewBufferString("<xml></xml>")
	rec := e.do(t, http.MethodPost, "/api/v1/recharge/wechat/notify", "", body, "application/xml")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with failure ack, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "FAIL") {
		t.Fatalf("expected failure ack body, got %s", rec.Body.String())
	}
}

func TestStripeWebhookBadSignatureMapsTo400(t *testing.T) {
	e := newEnv(t)

	body := bytes.NewBufferString(`{"type":"checkout.session.completed"}`)
	rec := e.do(t, http.MethodPost, "/api/v1/recharge/stripe/webhook", "", body, "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}
