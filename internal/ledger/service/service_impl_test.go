package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	accountrepo "github.com/stemforge/stemforge/internal/account/repository"
	ledgerdomain "github.com/stemforge/stemforge/internal/ledger/domain"
	ledgerrepo "github.com/stemforge/stemforge/internal/ledger/repository"
	ledgerservice "github.com/stemforge/stemforge/internal/ledger/service"
	pricingdomain "github.com/stemforge/stemforge/internal/pricing/domain"
	pricingrepo "github.com/stemforge/stemforge/internal/pricing/repository"
	pricingservice "github.com/stemforge/stemforge/internal/pricing/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE accounts (
			id BIGINT PRIMARY KEY,
			external_id TEXT NOT NULL,
			email TEXT NOT NULL,
			tier TEXT NOT NULL DEFAULT 'free',
			credits REAL NOT NULL DEFAULT 0,
			total_recharged REAL NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			invite_code TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE consumption_records (
			id BIGINT PRIMARY KEY,
			account_id BIGINT NOT NULL,
			record_id BIGINT NOT NULL,
			service_type TEXT NOT NULL,
			duration_seconds REAL NOT NULL,
			credits_cost REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'completed',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE pricing (
			id BIGINT PRIMARY KEY,
			service_type TEXT NOT NULL,
			tier TEXT NOT NULL,
			price_per_unit REAL NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

func newLedger(t *testing.T, db *gorm.DB, node *snowflake.Node) ledgerdomain.Service {
	t.Helper()
	pricingSvc := pricingservice.New(pricingservice.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: pricingrepo.Provide(),
	})
	return ledgerservice.NewService(ledgerservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        ledgerrepo.Provide(),
		AccountRepo: accountrepo.Provide(),
		PricingSvc:  pricingSvc,
	})
}

func seedAccount(t *testing.T, db *gorm.DB, id snowflake.ID, tier string, credits float64) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO accounts (id, external_id, email, tier, credits, total_recharged, status, invite_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, 'active', NULL, ?, ?)`,
		id, fmt.Sprintf("ext-%d", id), fmt.Sprintf("u%d@test.io", id), tier, credits, now, now,
	).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func accountCredits(t *testing.T, db *gorm.DB, id snowflake.ID) float64 {
	t.Helper()
	var credits float64
	if err := db.Raw(`SELECT credits FROM accounts WHERE id = ?`, id).Scan(&credits).Error; err != nil {
		t.Fatalf("scan credits: %v", err)
	}
	return credits
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d, got %d", expected, count)
	}
}

func TestChargeDeductsExactlyAndRecordsConsumption(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(20)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := newLedger(t, db, node)

	accountID := node.Generate()
	seedAccount(t, db, accountID, accountdomain.TierFree, 10.0)

	record, err := svc.Charge(ctx, ledgerdomain.ChargeRequest{
		AccountID:       accountID,
		Tier:            accountdomain.TierFree,
		RecordID:        node.Generate(),
		ServiceType:     pricingdomain.ServiceSpleeter,
		DurationSeconds: 200,
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}

	// 200s is two billing units at 3.0/unit on free tier.
	if record.CreditsCost != 6.0 {
		t.Fatalf("expected credits_cost 6.0, got %v", record.CreditsCost)
	}
	if got := accountCredits(t, db, accountID); got != 4.0 {
		t.Fatalf("expected balance 4.0, got %v", got)
	}
	assertCount(t, db, "SELECT COUNT(1) FROM consumption_records", 1)
}

func TestChargeInsufficientCreditsMutatesNothing(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(21)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := newLedger(t, db, node)

	accountID := node.Generate()
	seedAccount(t, db, accountID, accountdomain.TierFree, 2.5)

	_, err = svc.Charge(ctx, ledgerdomain.ChargeRequest{
		AccountID:       accountID,
		Tier:            accountdomain.TierFree,
		RecordID:        node.Generate(),
		ServiceType:     pricingdomain.ServiceSpleeter,
		DurationSeconds: 60,
	})
	if !errors.Is(err, accountdomain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if got := accountCredits(t, db, accountID); got != 2.5 {
		t.Fatalf("expected balance untouched at 2.5, got %v", got)
	}
	assertCount(t, db, "SELECT COUNT(1) FROM consumption_records", 0)
}

func TestChargeProTierUsesProPrice(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(22)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := newLedger(t, db, node)

	accountID := node.Generate()
	seedAccount(t, db, accountID, accountdomain.TierPro, 10.0)

	record, err := svc.Charge(ctx, ledgerdomain.ChargeRequest{
		AccountID:       accountID,
		Tier:            accountdomain.TierPro,
		RecordID:        node.Generate(),
		ServiceType:     pricingdomain.ServicePianoTranscription,
		DurationSeconds: 90,
	})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if record.CreditsCost != 1.5 {
		t.Fatalf("expected credits_cost 1.5, got %v", record.CreditsCost)
	}
}

func TestConcurrentChargesAdmitOnlyAffordableSubset(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection keeps sqlite from returning busy errors while the
	// goroutines race on the conditional deduction.
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(24)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := newLedger(t, db, node)

	accountID := node.Generate()
	// Each piano charge on free tier costs 2.0, so 5.0 covers exactly two
	// of the four racing requests.
	seedAccount(t, db, accountID, accountdomain.TierFree, 5.0)

	const workers = 4
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Charge(ctx, ledgerdomain.ChargeRequest{
				AccountID:       accountID,
				Tier:            accountdomain.TierFree,
				RecordID:        node.Generate(),
				ServiceType:     pricingdomain.ServicePianoTranscription,
				DurationSeconds: 90,
			})
		}(i)
	}
	wg.Wait()

	var charged, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			charged++
		case errors.Is(err, accountdomain.ErrInsufficientCredits):
			rejected++
		default:
			t.Fatalf("unexpected charge error: %v", err)
		}
	}
	if charged != 2 || rejected != 2 {
		t.Fatalf("expected 2 charges and 2 rejections, got %d and %d", charged, rejected)
	}
	if got := accountCredits(t, db, accountID); got != 1.0 {
		t.Fatalf("expected balance 1.0, got %v", got)
	}
	assertCount(t, db, "SELECT COUNT(1) FROM consumption_records", 2)
}

func TestTotalConsumedMatchesChargeSum(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(23)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := newLedger(t, db, node)

	accountID := node.Generate()
	seedAccount(t, db, accountID, accountdomain.TierFree, 100.0)

	var want float64
	for i := 0; i < 3; i++ {
		record, err := svc.Charge(ctx, ledgerdomain.ChargeRequest{
			AccountID:       accountID,
			Tier:            accountdomain.TierFree,
			RecordID:        node.Generate(),
			ServiceType:     pricingdomain.ServiceSpleeter,
			DurationSeconds: 120,
		})
		if err != nil {
			t.Fatalf("charge %d: %v", i, err)
		}
		want += record.CreditsCost
	}

	total, err := svc.TotalConsumed(ctx, accountID)
	if err != nil {
		t.Fatalf("total consumed: %v", err)
	}
	if total != want {
		t.Fatalf("expected total %v, got %v", want, total)
	}
	if got := accountCredits(t, db, accountID); got != 100.0-want {
		t.Fatalf("balance reconciliation failed: expected %v, got %v", 100.0-want, got)
	}
}
