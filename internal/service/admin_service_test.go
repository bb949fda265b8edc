package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"studhub/internal/domain"
	"studhub/internal/models"
	"studhub/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newAdminService(db *gorm.DB) *AdminService {
	return NewAdminService(
		db,
		testPaymentConfig(),
		repository.NewUserRepository(db),
		repository.NewBalanceRepository(db),
		repository.NewAuditRepository(db),
		nil,
		zap.NewNop(),
	)
}

func TestChangeRole(t *testing.T) {
	db := newTestDB(t)
	svc := newAdminService(db)
	super := seedUser(t, db, "root", domain.RoleSuperAdmin, 0)
	target := seedUser(t, db, "alice", domain.RoleUser, 0)

	action, err := svc.ChangeRole(context.Background(), target.ID, domain.RoleAdmin, super.ID, "promotion", "10.0.0.1")
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if action.ActionType != domain.ActionRoleChange {
		t.Errorf("action type = %s, want ROLE_CHANGE", action.ActionType)
	}
	if action.PreviousValue == nil || *action.PreviousValue != domain.RoleUser {
		t.Errorf("previous value = %v, want USER", action.PreviousValue)
	}
	if action.NewValue == nil || *action.NewValue != domain.RoleAdmin {
		t.Errorf("new value = %v, want ADMIN", action.NewValue)
	}
	if action.Reason == nil || *action.Reason != "promotion" {
		t.Errorf("reason = %v, want promotion", action.Reason)
	}
	if action.IPAddress == nil || *action.IPAddress != "10.0.0.1" {
		t.Errorf("ip = %v, want 10.0.0.1", action.IPAddress)
	}

	var fresh models.User
	db.First(&fresh, target.ID)
	if fresh.Role != domain.RoleAdmin {
		t.Errorf("role = %s, want ADMIN", fresh.Role)
	}
}

func TestChangeRoleAuthorization(t *testing.T) {
	db := newTestDB(t)
	svc := newAdminService(db)
	admin := seedUser(t, db, "admin", domain.RoleAdmin, 0)
	plain := seedUser(t, db, "bob", domain.RoleUser, 0)
	target := seedUser(t, db, "alice", domain.RoleUser, 0)

	// ADMIN cannot change roles, or it could grant itself SUPERADMIN.
	if _, err := svc.ChangeRole(context.Background(), target.ID, domain.RoleAdmin, admin.ID, "", ""); !errors.Is(err, ErrSuperAdminOnly) {
		t.Errorf("admin actor: err = %v, want ErrSuperAdminOnly", err)
	}
	if _, err := svc.ChangeRole(context.Background(), target.ID, domain.RoleAdmin, plain.ID, "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("plain actor: err = %v, want ErrUnauthorized", err)
	}

	super := seedUser(t, db, "root", domain.RoleSuperAdmin, 0)
	if _, err := svc.ChangeRole(context.Background(), target.ID, "WIZARD", super.ID, "", ""); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("bad role: err = %v, want ErrInvalidRole", err)
	}
	if _, err := svc.ChangeRole(context.Background(), 9999, domain.RoleAdmin, super.ID, "", ""); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("missing target: err = %v, want ErrTargetNotFound", err)
	}

	var count int64
	db.Model(&models.AdminAction{}).Count(&count)
	if count != 0 {
		t.Errorf("audit records after failures = %d, want 0", count)
	}
}

func TestAddAndSubtractBalance(t *testing.T) {
	db := newTestDB(t)
	svc := newAdminService(db)
	admin := seedUser(t, db, "admin", domain.RoleAdmin, 0)
	target := seedUser(t, db, "alice", domain.RoleUser, 0)

	action, err := svc.AddBalance(context.Background(), target.ID, 20000, admin.ID, "scholarship", "")
	if err != nil {
		t.Fatalf("AddBalance: %v", err)
	}
	if action.ActionType != domain.ActionBalanceAdd {
		t.Errorf("action type = %s, want BALANCE_ADD", action.ActionType)
	}
	if action.AmountCents == nil || *action.AmountCents != 20000 {
		t.Errorf("amount = %v, want 20000", action.AmountCents)
	}
	if action.PreviousValue == nil || *action.PreviousValue != "0" {
		t.Errorf("previous value = %v, want 0", action.PreviousValue)
	}
	if action.NewValue == nil || *action.NewValue != "20000" {
		t.Errorf("new value = %v, want 20000", action.NewValue)
	}
	if got := balanceOf(t, db, target.ID); got != 20000 {
		t.Errorf("balance = %d, want 20000", got)
	}

	action, err = svc.SubtractBalance(context.Background(), target.ID, 5000, admin.ID, "correction", "")
	if err != nil {
		t.Fatalf("SubtractBalance: %v", err)
	}
	if action.ActionType != domain.ActionBalanceSubtract {
		t.Errorf("action type = %s, want BALANCE_SUBTRACT", action.ActionType)
	}
	if got := balanceOf(t, db, target.ID); got != 15000 {
		t.Errorf("balance = %d, want 15000", got)
	}

	var count int64
	db.Model(&models.AdminAction{}).Count(&count)
	if count != 2 {
		t.Errorf("audit records = %d, want 2 (one per mutation)", count)
	}
}

func TestBalanceAdjustBounds(t *testing.T) {
	db := newTestDB(t)
	svc := newAdminService(db)
	admin := seedUser(t, db, "admin", domain.RoleAdmin, 0)
	target := seedUser(t, db, "alice", domain.RoleUser, 0)

	if _, err := svc.AddBalance(context.Background(), target.ID, 999, admin.ID, "", ""); !errors.Is(err, ErrAmountOutOfBounds) {
		t.Errorf("below min: err = %v, want ErrAmountOutOfBounds", err)
	}
	if _, err := svc.AddBalance(context.Background(), target.ID, 500001, admin.ID, "", ""); !errors.Is(err, ErrAmountOutOfBounds) {
		t.Errorf("above max: err = %v, want ErrAmountOutOfBounds", err)
	}
	if got := balanceOf(t, db, target.ID); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
}

func TestSubtractBalanceFloor(t *testing.T) {
	db := newTestDB(t)
	svc := newAdminService(db)
	admin := seedUser(t, db, "admin", domain.RoleAdmin, 0)
	target := seedUser(t, db, "alice", domain.RoleUser, 3000)

	_, err := svc.SubtractBalance(context.Background(), target.ID, 5000, admin.ID, "", "")
	if !errors.Is(err, repository.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := balanceOf(t, db, target.ID); got != 3000 {
		t.Errorf("balance = %d, want 3000 (floor enforced, nothing committed)", got)
	}
	var count int64
	db.Model(&models.AdminAction{}).Count(&count)
	if count != 0 {
		t.Errorf("audit records = %d, want 0 (failed debit leaves no record)", count)
	}
}

func TestChangeAccountStatus(t *testing.T) {
	db := newTestDB(t)
	svc := newAdminService(db)
	admin := seedUser(t, db, "admin", domain.RoleAdmin, 0)
	target := seedUser(t, db, "alice", domain.RoleUser, 0)

	action, err := svc.ChangeAccountStatus(context.Background(), target.ID, domain.AccountSuspended, admin.ID, "fraud review", "")
	if err != nil {
		t.Fatalf("ChangeAccountStatus: %v", err)
	}
	if action.ActionType != domain.ActionAccountStatusChange {
		t.Errorf("action type = %s, want ACCOUNT_STATUS_CHANGE", action.ActionType)
	}
	var fresh models.User
	db.First(&fresh, target.ID)
	if !fresh.IsSuspended() {
		t.Error("target not suspended")
	}

	if _, err := svc.ChangeAccountStatus(context.Background(), target.ID, "FROZEN", admin.ID, "", ""); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("bad status: err = %v, want ErrInvalidStatus", err)
	}
}

func TestConcurrentBalanceAdjustments(t *testing.T) {
	db := newTestDB(t)
	svc := newAdminService(db)
	admin := seedUser(t, db, "admin", domain.RoleAdmin, 0)
	target := seedUser(t, db, "alice", domain.RoleUser, 0)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddBalance(context.Background(), target.ID, 1000, admin.ID, "", ""); err != nil {
				t.Errorf("AddBalance: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := balanceOf(t, db, target.ID); got != n*1000 {
		t.Errorf("balance = %d, want %d (no lost updates)", got, n*1000)
	}
	var count int64
	db.Model(&models.AdminAction{}).Count(&count)
	if count != n {
		t.Errorf("audit records = %d, want %d", count, n)
	}
}

func TestAuditQueries(t *testing.T) {
	db := newTestDB(t)
	svc := newAdminService(db)
	super := seedUser(t, db, "root", domain.RoleSuperAdmin, 0)
	admin := seedUser(t, db, "admin", domain.RoleAdmin, 0)
	target := seedUser(t, db, "alice", domain.RoleUser, 0)

	svc.AddBalance(context.Background(), target.ID, 2000, admin.ID, "", "")
	svc.AddBalance(context.Background(), target.ID, 3000, super.ID, "", "")
	svc.ChangeRole(context.Background(), target.ID, domain.RoleAdmin, super.ID, "", "")

	all, total, err := svc.ListActions(context.Background(), "", 1, 10)
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("all actions: total=%d len=%d, want 3/3", total, len(all))
	}

	adds, total, err := svc.ListActions(context.Background(), domain.ActionBalanceAdd, 1, 10)
	if err != nil {
		t.Fatalf("filtered ListActions: %v", err)
	}
	if total != 2 {
		t.Errorf("BALANCE_ADD total = %d, want 2", total)
	}
	for _, a := range adds {
		if a.ActionType != domain.ActionBalanceAdd {
			t.Errorf("filter leak: got %s", a.ActionType)
		}
	}

	byAdmin, total, err := svc.ListActionsByAdmin(context.Background(), admin.ID, "", 1, 10)
	if err != nil {
		t.Fatalf("ListActionsByAdmin: %v", err)
	}
	if total != 1 || byAdmin[0].AdminID != admin.ID {
		t.Errorf("by admin: total=%d, want 1 from admin %d", total, admin.ID)
	}

	byTarget, total, err := svc.ListActionsByTarget(context.Background(), target.ID, "", 1, 10)
	if err != nil {
		t.Fatalf("ListActionsByTarget: %v", err)
	}
	if total != 3 {
		t.Errorf("by target total = %d, want 3", total)
	}
	for _, a := range byTarget {
		if a.TargetUserID != target.ID {
			t.Errorf("target filter leak: got %d", a.TargetUserID)
		}
	}

	recent, err := svc.RecentActions(context.Background(), 2, "")
	if err != nil {
		t.Fatalf("RecentActions: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}
	if recent[0].CreatedAt.Before(recent[1].CreatedAt) {
		t.Error("recent not newest-first")
	}

	got, err := svc.GetAction(context.Background(), all[0].ID)
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got.ID != all[0].ID {
		t.Errorf("GetAction id = %d, want %d", got.ID, all[0].ID)
	}
}

func TestAuditLedgerIsAppendOnly(t *testing.T) {
	db := newTestDB(t)
	svc := newAdminService(db)
	admin := seedUser(t, db, "admin", domain.RoleAdmin, 0)
	target := seedUser(t, db, "alice", domain.RoleUser, 0)

	before, err := svc.AddBalance(context.Background(), target.ID, 2000, admin.ID, "grant", "")
	if err != nil {
		t.Fatalf("AddBalance: %v", err)
	}

	// Later mutations must never rewrite earlier records.
	for i := 0; i < 5; i++ {
		if _, err := svc.AddBalance(context.Background(), target.ID, 1000, admin.ID, fmt.Sprintf("grant %d", i), ""); err != nil {
			t.Fatalf("AddBalance %d: %v", i, err)
		}
	}
	var after models.AdminAction
	if err := db.First(&after, before.ID).Error; err != nil {
		t.Fatalf("reload action: %v", err)
	}
	if after.Description != before.Description || after.AmountCents == nil || *after.AmountCents != 2000 {
		t.Error("earlier audit record changed after later mutations")
	}
}
