package repository

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"studhub/internal/domain"
	"studhub/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Payment{}, &models.AdminAction{}, &models.Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string, balanceCents int64) *models.User {
	t.Helper()
	u := &models.User{
		Username:      username,
		Email:         username + "@example.com",
		Role:          domain.RoleUser,
		AccountStatus: domain.AccountActive,
		BalanceCents:  balanceCents,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestBalanceCreditDebit(t *testing.T) {
	db := newTestDB(t)
	repo := NewBalanceRepository(db)
	u := seedUser(t, db, "alice", 1000)

	if err := repo.Credit(u.ID, 500); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if err := repo.Debit(u.ID, 300); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	got, err := repo.GetBalance(u.ID)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got != 1200 {
		t.Errorf("balance = %d, want 1200", got)
	}
}

func TestBalanceValidation(t *testing.T) {
	db := newTestDB(t)
	repo := NewBalanceRepository(db)
	u := seedUser(t, db, "alice", 100)

	if err := repo.Credit(u.ID, 0); !errors.Is(err, ErrNonPositiveAmount) {
		t.Errorf("zero credit: err = %v, want ErrNonPositiveAmount", err)
	}
	if err := repo.Debit(u.ID, -5); !errors.Is(err, ErrNonPositiveAmount) {
		t.Errorf("negative debit: err = %v, want ErrNonPositiveAmount", err)
	}
	if err := repo.Credit(999, 100); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user credit: err = %v, want ErrUserNotFound", err)
	}
	if err := repo.Debit(999, 100); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user debit: err = %v, want ErrUserNotFound", err)
	}
}

func TestBalanceDebitFloor(t *testing.T) {
	db := newTestDB(t)
	repo := NewBalanceRepository(db)
	u := seedUser(t, db, "alice", 100)

	if err := repo.Debit(u.ID, 101); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	got, _ := repo.GetBalance(u.ID)
	if got != 100 {
		t.Errorf("balance = %d, want 100 (failed debit is a no-op)", got)
	}
	// Draining to exactly zero is allowed.
	if err := repo.Debit(u.ID, 100); err != nil {
		t.Fatalf("drain to zero: %v", err)
	}
	got, _ = repo.GetBalance(u.ID)
	if got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestBalanceConcurrentCredits(t *testing.T) {
	db := newTestDB(t)
	repo := NewBalanceRepository(db)
	u := seedUser(t, db, "alice", 0)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Credit(u.ID, 10); err != nil {
				t.Errorf("Credit: %v", err)
			}
		}()
	}
	wg.Wait()
	got, _ := repo.GetBalance(u.ID)
	if got != n*10 {
		t.Errorf("balance = %d, want %d (lost update)", got, n*10)
	}
}

func seedPayment(t *testing.T, db *gorm.DB, senderID uint, amount int64) *models.Payment {
	t.Helper()
	p := &models.Payment{
		SenderID:             senderID,
		RequestedAmountCents: amount,
		ReceiptRef:           "ref",
		Status:               domain.PaymentWaiting,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func TestClaimDecisionSingleWinner(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentRepository(db)
	sender := seedUser(t, db, "alice", 0)
	admin := seedUser(t, db, "admin", 0)
	p := seedPayment(t, db, sender.ID, 5000)

	amount := int64(5000)
	const n = 8
	wins := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := repo.ClaimDecision(p.ID, Decision{
				Status:              domain.PaymentApproved,
				ApprovedAmountCents: &amount,
				ProcessedByAdminID:  admin.ID,
				ProcessedAt:         time.Now(),
			})
			if err != nil {
				t.Errorf("ClaimDecision: %v", err)
				return
			}
			wins[i] = won
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, w := range wins {
		if w {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}

	fresh, err := repo.GetByID(p.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fresh.Status != domain.PaymentApproved {
		t.Errorf("status = %s, want APPROVED", fresh.Status)
	}
	if fresh.ProcessedByAdminID == nil || fresh.ProcessedAt == nil {
		t.Error("processed fields not set by winning claim")
	}
}

func TestClaimDecisionOnSettledPayment(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentRepository(db)
	sender := seedUser(t, db, "alice", 0)
	admin := seedUser(t, db, "admin", 0)
	p := seedPayment(t, db, sender.ID, 5000)

	won, err := repo.ClaimDecision(p.ID, Decision{
		Status:             domain.PaymentRejected,
		ProcessedByAdminID: admin.ID,
		ProcessedAt:        time.Now(),
		RejectReason:       "no receipt",
	})
	if err != nil || !won {
		t.Fatalf("first claim: won=%v err=%v", won, err)
	}
	won, err = repo.ClaimDecision(p.ID, Decision{
		Status:             domain.PaymentApproved,
		ProcessedByAdminID: admin.ID,
		ProcessedAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if won {
		t.Error("second claim won on a settled payment")
	}
	fresh, _ := repo.GetByID(p.ID)
	if fresh.Status != domain.PaymentRejected || fresh.RejectReason != "no receipt" {
		t.Error("settled payment mutated by losing claim")
	}
	// Claims against unknown ids lose without erroring.
	won, err = repo.ClaimDecision(9999, Decision{Status: domain.PaymentApproved, ProcessedByAdminID: admin.ID, ProcessedAt: time.Now()})
	if err != nil || won {
		t.Errorf("unknown id: won=%v err=%v, want false/nil", won, err)
	}
}

func TestPaymentStats(t *testing.T) {
	db := newTestDB(t)
	repo := NewPaymentRepository(db)
	sender := seedUser(t, db, "alice", 0)
	admin := seedUser(t, db, "admin", 0)

	seedPayment(t, db, sender.ID, 1000)
	seedPayment(t, db, sender.ID, 2000)
	p := seedPayment(t, db, sender.ID, 3000)
	approved := int64(2500)
	repo.ClaimDecision(p.ID, Decision{
		Status:              domain.PaymentApproved,
		ApprovedAmountCents: &approved,
		ProcessedByAdminID:  admin.ID,
		ProcessedAt:         time.Now(),
	})

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	byStatus := make(map[string]StatusStat)
	for _, s := range stats {
		byStatus[s.Status] = s
	}
	w := byStatus[domain.PaymentWaiting]
	if w.Count != 2 || w.TotalCents != 3000 {
		t.Errorf("waiting = %+v, want count 2 total 3000", w)
	}
	a := byStatus[domain.PaymentApproved]
	if a.Count != 1 || a.TotalCents != 3000 || a.TotalFinalCents != 2500 {
		t.Errorf("approved = %+v, want count 1 requested 3000 final 2500", a)
	}
}

func TestAuditRepositoryFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewAuditRepository(db)
	admin := seedUser(t, db, "admin", 0)
	target := seedUser(t, db, "alice", 0)

	types := []string{domain.ActionBalanceAdd, domain.ActionBalanceAdd, domain.ActionRoleChange}
	for i, at := range types {
		if err := repo.Create(&models.AdminAction{
			AdminID:      admin.ID,
			TargetUserID: target.ID,
			ActionType:   at,
			Description:  fmt.Sprintf("action %d", i),
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	list, total, err := repo.List(domain.ActionBalanceAdd, 1, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Errorf("filtered: total=%d len=%d, want 2/2", total, len(list))
	}
	if _, total, _ = repo.ListByTargetUser(target.ID, "", 1, 10); total != 3 {
		t.Errorf("by target total = %d, want 3", total)
	}
	if recent, _ := repo.Recent(1, ""); len(recent) != 1 {
		t.Errorf("recent len = %d, want 1", len(recent))
	}
}
