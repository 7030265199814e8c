package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/stemforge/stemforge/internal/account/domain"
	accountrepo "github.com/stemforge/stemforge/internal/account/repository"
	"github.com/stemforge/stemforge/internal/clock"
	invitedomain "github.com/stemforge/stemforge/internal/invite/domain"
	inviterepo "github.com/stemforge/stemforge/internal/invite/repository"
	inviteservice "github.com/stemforge/stemforge/internal/invite/service"
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
		`CREATE TABLE invite_codes (
			code TEXT PRIMARY KEY,
			target_tier TEXT NOT NULL,
			max_usage INTEGER NOT NULL DEFAULT 0,
			valid_from DATETIME,
			valid_until DATETIME,
			status TEXT NOT NULL DEFAULT 'active',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE invite_usages (
			id BIGINT PRIMARY KEY,
			code TEXT NOT NULL,
			account_id BIGINT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

type env struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   invitedomain.Service
}

func newEnv(t *testing.T, nodeID int64) *env {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	svc := inviteservice.NewService(inviteservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Repo:        inviterepo.Provide(),
		AccountRepo: accountrepo.Provide(),
	})
	return &env{db: db, node: node, clock: fake, svc: svc}
}

func (e *env) seedAccount(t *testing.T, tier string, code *string) snowflake.ID {
	t.Helper()
	id := e.node.Generate()
	now := e.clock.Now()
	if err := e.db.Exec(
		`INSERT INTO accounts (id, external_id, email, tier, credits, total_recharged, status, invite_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 10, 0, 'active', ?, ?, ?)`,
		id, fmt.Sprintf("ext-%d", id), "u@test.io", tier, code, now, now,
	).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return id
}

func (e *env) seedCode(t *testing.T, code string, maxUsage int, validDays int) {
	t.Helper()
	now := e.clock.Now()
	until := now.AddDate(0, 0, validDays)
	if err := e.db.Exec(
		`INSERT INTO invite_codes (code, target_tier, max_usage, valid_from, valid_until, status, created_at)
		 VALUES (?, 'pro', ?, ?, ?, 'active', ?)`,
		code, maxUsage, now, until, now,
	).Error; err != nil {
		t.Fatalf("seed code: %v", err)
	}
}

func (e *env) account(t *testing.T, id snowflake.ID) (tier string, code *string) {
	t.Helper()
	row := struct {
		Tier       string
		InviteCode *string
	}{}
	if err := e.db.Raw(`SELECT tier, invite_code FROM accounts WHERE id = ?`, id).Scan(&row).Error; err != nil {
		t.Fatalf("scan account: %v", err)
	}
	return row.Tier, row.InviteCode
}

func TestUseUpgradesAndRecordsUsage(t *testing.T) {
	e := newEnv(t, 40)
	e.seedCode(t, "PRO2025", 100, 365)
	id := e.seedAccount(t, accountdomain.TierFree, nil)

	if err := e.svc.Use(context.Background(), id, "PRO2025"); err != nil {
		t.Fatalf("use: %v", err)
	}

	tier, code := e.account(t, id)
	if tier != accountdomain.TierPro {
		t.Fatalf("expected pro, got %q", tier)
	}
	if code == nil || *code != "PRO2025" {
		t.Fatalf("expected applied code PRO2025, got %v", code)
	}

	var usages int64
	if err := e.db.Raw(`SELECT COUNT(1) FROM invite_usages WHERE account_id = ?`, id).Scan(&usages).Error; err != nil {
		t.Fatalf("count usages: %v", err)
	}
	if usages != 1 {
		t.Fatalf("expected one usage row, got %d", usages)
	}
}

func TestUseRejectsStacking(t *testing.T) {
	e := newEnv(t, 41)
	e.seedCode(t, "PRO2025", 100, 365)
	e.seedCode(t, "EARLYBIRD", 50, 30)
	id := e.seedAccount(t, accountdomain.TierFree, nil)

	if err := e.svc.Use(context.Background(), id, "PRO2025"); err != nil {
		t.Fatalf("first use: %v", err)
	}
	err := e.svc.Use(context.Background(), id, "EARLYBIRD")
	if !errors.Is(err, invitedomain.ErrCodeAlreadyApplied) {
		t.Fatalf("expected ErrCodeAlreadyApplied, got %v", err)
	}
}

func TestUseRejectsPermanentPro(t *testing.T) {
	e := newEnv(t, 42)
	e.seedCode(t, "PRO2025", 100, 365)
	id := e.seedAccount(t, accountdomain.TierPro, nil)

	err := e.svc.Use(context.Background(), id, "PRO2025")
	if !errors.Is(err, invitedomain.ErrPermanentTier) {
		t.Fatalf("expected ErrPermanentTier, got %v", err)
	}
}

func TestUseRejectsUnknownAndExpired(t *testing.T) {
	e := newEnv(t, 43)
	e.seedCode(t, "TESTPRO", 10, 7)
	id := e.seedAccount(t, accountdomain.TierFree, nil)

	if err := e.svc.Use(context.Background(), id, "NOPE"); !errors.Is(err, invitedomain.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}

	e.clock.Advance(8 * 24 * time.Hour)
	if err := e.svc.Use(context.Background(), id, "TESTPRO"); !errors.Is(err, invitedomain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}

	tier, _ := e.account(t, id)
	if tier != accountdomain.TierFree {
		t.Fatalf("rejected use must not change tier, got %q", tier)
	}
}

func TestRevalidateAllDowngradesLapsedOnly(t *testing.T) {
	e := newEnv(t, 44)
	e.seedCode(t, "PRO2025", 100, 365)
	e.seedCode(t, "TESTPRO", 10, 7)

	longID := e.seedAccount(t, accountdomain.TierFree, nil)
	shortID := e.seedAccount(t, accountdomain.TierFree, nil)
	permanentID := e.seedAccount(t, accountdomain.TierPro, nil)

	ctx := context.Background()
	if err := e.svc.Use(ctx, longID, "PRO2025"); err != nil {
		t.Fatalf("use long: %v", err)
	}
	if err := e.svc.Use(ctx, shortID, "TESTPRO"); err != nil {
		t.Fatalf("use short: %v", err)
	}

	// Ten days later only the 7-day code has lapsed.
	e.clock.Advance(10 * 24 * time.Hour)

	downgraded, err := e.svc.RevalidateAll(ctx)
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if downgraded != 1 {
		t.Fatalf("expected exactly one downgrade, got %d", downgraded)
	}

	tier, code := e.account(t, shortID)
	if tier != accountdomain.TierFree || code != nil {
		t.Fatalf("lapsed account must be free with code cleared, got %q %v", tier, code)
	}
	tier, _ = e.account(t, longID)
	if tier != accountdomain.TierPro {
		t.Fatalf("valid account must stay pro, got %q", tier)
	}
	tier, _ = e.account(t, permanentID)
	if tier != accountdomain.TierPro {
		t.Fatalf("permanent pro must never be touched, got %q", tier)
	}
}

func TestCheckMatchesUseValidation(t *testing.T) {
	e := newEnv(t, 45)
	e.seedCode(t, "TESTPRO", 10, 7)
	id := e.seedAccount(t, accountdomain.TierFree, nil)

	if err := e.svc.Check(context.Background(), id, "TESTPRO"); err != nil {
		t.Fatalf("check valid code: %v", err)
	}

	e.clock.Advance(8 * 24 * time.Hour)
	if err := e.svc.Check(context.Background(), id, "TESTPRO"); !errors.Is(err, invitedomain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}
