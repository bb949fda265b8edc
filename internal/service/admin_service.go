package service

import (
	"context"
	"errors"
	"fmt"

	"studhub/config"
	"studhub/internal/domain"
	"studhub/internal/models"
	"studhub/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized      = errors.New("admin role required")
	ErrSuperAdminOnly    = errors.New("superadmin role required")
	ErrTargetNotFound    = errors.New("target user not found")
	ErrInvalidRole       = errors.New("invalid role")
	ErrInvalidStatus     = errors.New("invalid account status")
	ErrAmountOutOfBounds = errors.New("amount outside allowed range")
)

// AdminService performs the privileged non-payment mutations: role
// changes, manual balance adjustments, account status changes. Each one
// commits together with exactly one AdminAction record.
type AdminService struct {
	db       *gorm.DB
	cfg      *config.PaymentConfig
	users    *repository.UserRepository
	balances *repository.BalanceRepository
	audits   *repository.AuditRepository
	notif    *NotificationService
	log      *zap.Logger
}

func NewAdminService(
	db *gorm.DB,
	cfg *config.PaymentConfig,
	users *repository.UserRepository,
	balances *repository.BalanceRepository,
	audits *repository.AuditRepository,
	notif *NotificationService,
	log *zap.Logger,
) *AdminService {
	return &AdminService{db: db, cfg: cfg, users: users, balances: balances, audits: audits, notif: notif, log: log}
}

// loadActor resolves the acting admin and enforces the staff gate.
func (s *AdminService) loadActor(ctx context.Context, adminID uint) (*models.User, error) {
	admin, err := s.users.WithTx(s.db.WithContext(ctx)).GetByID(adminID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !admin.IsStaff() {
		return nil, ErrUnauthorized
	}
	return admin, nil
}

// ChangeRole moves the target to newRole. Only SUPERADMIN may change
// roles; letting ADMIN grant roles would let it grant itself SUPERADMIN.
func (s *AdminService) ChangeRole(ctx context.Context, targetUserID uint, newRole string, adminID uint, reason, ip string) (*models.AdminAction, error) {
	admin, err := s.loadActor(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if admin.Role != domain.RoleSuperAdmin {
		return nil, ErrSuperAdminOnly
	}
	if !domain.ValidRole(newRole) {
		return nil, ErrInvalidRole
	}
	target, err := s.users.WithTx(s.db.WithContext(ctx)).GetByID(targetUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}

	action := &models.AdminAction{
		AdminID:       adminID,
		TargetUserID:  targetUserID,
		ActionType:    domain.ActionRoleChange,
		Description:   fmt.Sprintf("role changed from %s to %s", target.Role, newRole),
		PreviousValue: strPtr(target.Role),
		NewValue:      strPtr(newRole),
	}
	applyOptional(action, reason, ip)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).UpdateRole(targetUserID, newRole); err != nil {
			return err
		}
		return s.audits.WithTx(tx).Create(action)
	})
	if err != nil {
		return nil, err
	}
	s.notifyAction(action, "ROLE_CHANGED", "Role updated", fmt.Sprintf("Your role is now %s", newRole))
	return action, nil
}

// AddBalance credits the target by amountCents within configured bounds.
func (s *AdminService) AddBalance(ctx context.Context, targetUserID uint, amountCents int64, adminID uint, reason, ip string) (*models.AdminAction, error) {
	return s.adjustBalance(ctx, targetUserID, amountCents, adminID, reason, ip, true)
}

// SubtractBalance debits the target by amountCents within configured
// bounds; the balance floor is enforced by the ledger accessor.
func (s *AdminService) SubtractBalance(ctx context.Context, targetUserID uint, amountCents int64, adminID uint, reason, ip string) (*models.AdminAction, error) {
	return s.adjustBalance(ctx, targetUserID, amountCents, adminID, reason, ip, false)
}

func (s *AdminService) adjustBalance(ctx context.Context, targetUserID uint, amountCents int64, adminID uint, reason, ip string, credit bool) (*models.AdminAction, error) {
	if _, err := s.loadActor(ctx, adminID); err != nil {
		return nil, err
	}
	if amountCents < s.cfg.AdminAdjustMinCents || amountCents > s.cfg.AdminAdjustMaxCents {
		return nil, ErrAmountOutOfBounds
	}
	target, err := s.users.WithTx(s.db.WithContext(ctx)).GetByID(targetUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}

	actionType := domain.ActionBalanceAdd
	verb := "added to"
	if !credit {
		actionType = domain.ActionBalanceSubtract
		verb = "subtracted from"
	}
	action := &models.AdminAction{
		AdminID:       adminID,
		TargetUserID:  targetUserID,
		ActionType:    actionType,
		Description:   fmt.Sprintf("%d cents %s balance of user %d", amountCents, verb, targetUserID),
		PreviousValue: strPtr(fmt.Sprintf("%d", target.BalanceCents)),
		AmountCents:   &amountCents,
	}
	applyOptional(action, reason, ip)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := s.balances.WithTx(tx)
		if credit {
			if err := ledger.Credit(targetUserID, amountCents); err != nil {
				return err
			}
		} else {
			if err := ledger.Debit(targetUserID, amountCents); err != nil {
				return err
			}
		}
		after, err := ledger.GetBalance(targetUserID)
		if err != nil {
			return err
		}
		action.NewValue = strPtr(fmt.Sprintf("%d", after))
		return s.audits.WithTx(tx).Create(action)
	})
	if err != nil {
		return nil, err
	}
	s.notifyAction(action, "BALANCE_CHANGED", "Balance updated", fmt.Sprintf("Your balance is now %s cents", *action.NewValue))
	return action, nil
}

// ChangeAccountStatus activates or suspends the target account.
func (s *AdminService) ChangeAccountStatus(ctx context.Context, targetUserID uint, newStatus string, adminID uint, reason, ip string) (*models.AdminAction, error) {
	if _, err := s.loadActor(ctx, adminID); err != nil {
		return nil, err
	}
	if newStatus != domain.AccountActive && newStatus != domain.AccountSuspended {
		return nil, ErrInvalidStatus
	}
	target, err := s.users.WithTx(s.db.WithContext(ctx)).GetByID(targetUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}

	action := &models.AdminAction{
		AdminID:       adminID,
		TargetUserID:  targetUserID,
		ActionType:    domain.ActionAccountStatusChange,
		Description:   fmt.Sprintf("account status changed from %s to %s", target.AccountStatus, newStatus),
		PreviousValue: strPtr(target.AccountStatus),
		NewValue:      strPtr(newStatus),
	}
	applyOptional(action, reason, ip)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).UpdateAccountStatus(targetUserID, newStatus); err != nil {
			return err
		}
		return s.audits.WithTx(tx).Create(action)
	})
	if err != nil {
		return nil, err
	}
	return action, nil
}

// Audit reads, surfaced through the same orchestrator the admin UI talks to.

func (s *AdminService) GetAction(ctx context.Context, id uint) (*models.AdminAction, error) {
	return s.audits.WithTx(s.db.WithContext(ctx)).GetByID(id)
}

func (s *AdminService) ListActions(ctx context.Context, actionType string, page, limit int) ([]models.AdminAction, int64, error) {
	page, limit = s.clampPage(page, limit)
	return s.audits.WithTx(s.db.WithContext(ctx)).List(actionType, page, limit)
}

func (s *AdminService) ListActionsByAdmin(ctx context.Context, adminID uint, actionType string, page, limit int) ([]models.AdminAction, int64, error) {
	page, limit = s.clampPage(page, limit)
	return s.audits.WithTx(s.db.WithContext(ctx)).ListByAdmin(adminID, actionType, page, limit)
}

func (s *AdminService) ListActionsByTarget(ctx context.Context, targetUserID uint, actionType string, page, limit int) ([]models.AdminAction, int64, error) {
	page, limit = s.clampPage(page, limit)
	return s.audits.WithTx(s.db.WithContext(ctx)).ListByTargetUser(targetUserID, actionType, page, limit)
}

func (s *AdminService) RecentActions(ctx context.Context, n int, actionType string) ([]models.AdminAction, error) {
	if n < 1 {
		n = 10
	}
	if n > s.cfg.MaxPageSize {
		n = s.cfg.MaxPageSize
	}
	return s.audits.WithTx(s.db.WithContext(ctx)).Recent(n, actionType)
}

func (s *AdminService) notifyAction(action *models.AdminAction, notifType, title, body string) {
	if s.notif == nil {
		return
	}
	if err := s.notif.Notify(action.TargetUserID, notifType, title, body, map[string]interface{}{"action_id": action.ID}); err != nil {
		s.log.Warn("admin action notification failed", zap.Uint("action_id", action.ID), zap.Error(err))
		return
	}
	action.NotificationSent = true
	if err := s.audits.MarkNotificationSent(action.ID); err != nil {
		s.log.Warn("mark notification sent failed", zap.Uint("action_id", action.ID), zap.Error(err))
	}
}

func (s *AdminService) clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	return page, limit
}

func applyOptional(a *models.AdminAction, reason, ip string) {
	if reason != "" {
		a.Reason = strPtr(reason)
	}
	if ip != "" {
		a.IPAddress = strPtr(ip)
	}
}
