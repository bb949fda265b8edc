package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studhub/config"
	"studhub/internal/domain"
	"studhub/internal/models"
	"studhub/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProcessCode is the machine-readable outcome of one processing attempt.
type ProcessCode string

const (
	CodeSuccess           ProcessCode = "SUCCESS"
	CodeAlreadySuccess    ProcessCode = "ALREADY_SUCCESS"
	CodeInvalidTransition ProcessCode = "INVALID_TRANSITION"
	CodeValidationError   ProcessCode = "VALIDATION_ERROR"
	CodeUnauthorized      ProcessCode = "UNAUTHORIZED"
	CodeNotFound          ProcessCode = "NOT_FOUND"
)

// ProcessResult is returned for every processing attempt that reached the
// engine. Fields carries field-level messages when Code is
// CodeValidationError; Payment is the post-decision snapshot when Code is
// CodeSuccess or CodeAlreadySuccess.
type ProcessResult struct {
	Code    ProcessCode       `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Payment *models.Payment   `json:"payment,omitempty"`
}

// ProcessCommand carries one admin decision on one payment.
type ProcessCommand struct {
	PaymentID           uint
	Decision            string // APPROVED or REJECTED
	AdminID             uint
	ApprovedAmountCents *int64 // required when approving; ignored on reject
	RejectReason        string // required when rejecting
	AdminNotes          string
	IPAddress           string
}

// ProcessPolicy decides whether a staff admin may process a given payment.
// SUPERADMIN bypasses it; for ADMIN it is consulted after the role check so
// assignment policies can evolve without touching the engine.
type ProcessPolicy interface {
	CanProcess(ctx context.Context, paymentID, adminID uint) (bool, error)
}

// AllowAllStaff permits every admin; the default policy.
type AllowAllStaff struct{}

func (AllowAllStaff) CanProcess(ctx context.Context, paymentID, adminID uint) (bool, error) {
	return true, nil
}

var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrReceiptRequired  = errors.New("receipt reference required")
	ErrAccountSuspended = errors.New("account is suspended")
	ErrSenderNotFound   = errors.New("sender not found")
)

type PaymentService struct {
	db       *gorm.DB
	cfg      *config.PaymentConfig
	payments *repository.PaymentRepository
	users    *repository.UserRepository
	balances *repository.BalanceRepository
	audits   *repository.AuditRepository
	policy   ProcessPolicy
	notif    *NotificationService
	log      *zap.Logger
}

func NewPaymentService(
	db *gorm.DB,
	cfg *config.PaymentConfig,
	payments *repository.PaymentRepository,
	users *repository.UserRepository,
	balances *repository.BalanceRepository,
	audits *repository.AuditRepository,
	policy ProcessPolicy,
	notif *NotificationService,
	log *zap.Logger,
) *PaymentService {
	if policy == nil {
		policy = AllowAllStaff{}
	}
	return &PaymentService{
		db:       db,
		cfg:      cfg,
		payments: payments,
		users:    users,
		balances: balances,
		audits:   audits,
		policy:   policy,
		notif:    notif,
		log:      log,
	}
}

// CreatePayment persists a new WAITING funding request. The receipt is
// already stored by the upload layer; receiptRef is opaque here. Role
// checks (only USER submits) live in the HTTP layer; suspension is a
// business rule and checked here. Submissions are not audited, only
// decisions are.
func (s *PaymentService) CreatePayment(ctx context.Context, senderID uint, amountCents int64, receiptRef, description string) (*models.Payment, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if receiptRef == "" {
		return nil, ErrReceiptRequired
	}
	sender, err := s.users.WithTx(s.db.WithContext(ctx)).GetByID(senderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSenderNotFound
		}
		return nil, err
	}
	if sender.IsSuspended() {
		return nil, ErrAccountSuspended
	}
	p := &models.Payment{
		SenderID:             senderID,
		RequestedAmountCents: amountCents,
		ReceiptRef:           receiptRef,
		Description:          description,
		Status:               domain.PaymentWaiting,
	}
	if err := s.payments.WithTx(s.db.WithContext(ctx)).Create(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ProcessPayment applies one admin decision. Every attempt that reaches
// storage yields exactly one result code; the returned error is reserved
// for dependency failures (storage down, context cancelled) which commit
// nothing.
//
// The WAITING -> terminal transition, the balance credit, and the audit
// record commit as one transaction. The transition itself is a
// compare-and-swap on the WAITING status, so racing processors produce
// exactly one winner; the loser re-reads once and collapses to
// ALREADY_SUCCESS or INVALID_TRANSITION instead of surfacing a conflict.
func (s *PaymentService) ProcessPayment(ctx context.Context, cmd ProcessCommand) (ProcessResult, error) {
	p, err := s.payments.WithTx(s.db.WithContext(ctx)).GetByID(cmd.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProcessResult{Code: CodeNotFound, Message: fmt.Sprintf("payment %d not found", cmd.PaymentID)}, nil
		}
		return ProcessResult{}, err
	}

	// Idempotent retries of an applied decision resolve before auth so a
	// repeated call never flips outcome based on who retried it.
	if !p.CanBeProcessed() {
		return s.settledResult(p, cmd), nil
	}

	admin, err := s.users.WithTx(s.db.WithContext(ctx)).GetByID(cmd.AdminID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProcessResult{Code: CodeUnauthorized, Message: "admin not found"}, nil
		}
		return ProcessResult{}, err
	}
	if !admin.IsStaff() {
		return ProcessResult{Code: CodeUnauthorized, Message: "admin role required"}, nil
	}
	if admin.Role != domain.RoleSuperAdmin {
		ok, err := s.policy.CanProcess(ctx, cmd.PaymentID, cmd.AdminID)
		if err != nil {
			return ProcessResult{}, err
		}
		if !ok {
			return ProcessResult{Code: CodeUnauthorized, Message: "payment not processable by this admin"}, nil
		}
	}

	if fields := s.validate(cmd); len(fields) > 0 {
		return ProcessResult{Code: CodeValidationError, Message: "invalid decision", Fields: fields}, nil
	}

	now := time.Now()
	decision := repository.Decision{
		Status:             cmd.Decision,
		ProcessedByAdminID: cmd.AdminID,
		ProcessedAt:        now,
		AdminNotes:         cmd.AdminNotes,
	}
	var finalCents int64
	if cmd.Decision == domain.PaymentApproved {
		amount := *cmd.ApprovedAmountCents
		decision.ApprovedAmountCents = &amount
		finalCents = amount
	} else {
		decision.RejectReason = cmd.RejectReason
	}

	var (
		won      bool
		actionID uint
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err = s.payments.WithTx(tx).ClaimDecision(cmd.PaymentID, decision)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		if cmd.Decision == domain.PaymentApproved {
			if err := s.balances.WithTx(tx).Credit(p.SenderID, finalCents); err != nil {
				return err
			}
		}
		action := &models.AdminAction{
			AdminID:       cmd.AdminID,
			TargetUserID:  p.SenderID,
			ActionType:    domain.ActionPaymentDecision,
			Description:   fmt.Sprintf("payment %d %s", p.ID, lowerStatus(cmd.Decision)),
			PreviousValue: strPtr(domain.PaymentWaiting),
			NewValue:      strPtr(cmd.Decision),
		}
		if cmd.Decision == domain.PaymentApproved {
			action.AmountCents = &finalCents
		} else if cmd.RejectReason != "" {
			action.Reason = strPtr(cmd.RejectReason)
		}
		if cmd.IPAddress != "" {
			action.IPAddress = strPtr(cmd.IPAddress)
		}
		if err := s.audits.WithTx(tx).Create(action); err != nil {
			return err
		}
		actionID = action.ID
		return nil
	})
	if err != nil {
		return ProcessResult{}, err
	}

	if !won {
		// Lost the race: the re-read must observe a terminal state.
		fresh, err := s.payments.WithTx(s.db.WithContext(ctx)).GetByID(cmd.PaymentID)
		if err != nil {
			return ProcessResult{}, err
		}
		return s.settledResult(fresh, cmd), nil
	}

	fresh, err := s.payments.WithTx(s.db.WithContext(ctx)).GetByID(cmd.PaymentID)
	if err != nil {
		return ProcessResult{}, err
	}
	s.notifyDecision(fresh, actionID)
	return ProcessResult{Code: CodeSuccess, Message: "decision applied", Payment: fresh}, nil
}

// settledResult classifies a retry against an already-decided payment:
// the same semantic outcome is ALREADY_SUCCESS, anything else is
// INVALID_TRANSITION. For approvals "same" means the effective amount
// matches what was credited (an absent amount compares against the
// requested one); a matching reject ignores the reason text.
func (s *PaymentService) settledResult(p *models.Payment, cmd ProcessCommand) ProcessResult {
	switch p.Status {
	case domain.PaymentApproved:
		if cmd.Decision == domain.PaymentApproved {
			want := p.RequestedAmountCents
			if cmd.ApprovedAmountCents != nil {
				want = *cmd.ApprovedAmountCents
			}
			if want == p.FinalAmountCents() {
				return ProcessResult{Code: CodeAlreadySuccess, Message: "payment already approved", Payment: p}
			}
		}
		return ProcessResult{Code: CodeInvalidTransition, Message: "payment already approved", Payment: p}
	case domain.PaymentRejected:
		if cmd.Decision == domain.PaymentRejected {
			return ProcessResult{Code: CodeAlreadySuccess, Message: "payment already rejected", Payment: p}
		}
		return ProcessResult{Code: CodeInvalidTransition, Message: "payment already rejected", Payment: p}
	}
	return ProcessResult{Code: CodeInvalidTransition, Message: "payment in unexpected state " + p.Status, Payment: p}
}

func (s *PaymentService) validate(cmd ProcessCommand) map[string]string {
	fields := make(map[string]string)
	switch cmd.Decision {
	case domain.PaymentApproved:
		if cmd.ApprovedAmountCents == nil {
			fields["approved_amount_cents"] = "required when approving"
		} else if *cmd.ApprovedAmountCents <= 0 {
			fields["approved_amount_cents"] = "must be positive"
		}
	case domain.PaymentRejected:
		if cmd.RejectReason == "" {
			fields["reject_reason"] = "required when rejecting"
		} else if len(cmd.RejectReason) > s.cfg.MaxRejectReasonLen {
			fields["reject_reason"] = fmt.Sprintf("must be at most %d characters", s.cfg.MaxRejectReasonLen)
		}
	default:
		fields["decision"] = "must be APPROVED or REJECTED"
	}
	if len(cmd.AdminNotes) > 500 {
		fields["admin_notes"] = "must be at most 500 characters"
	}
	return fields
}

// notifyDecision informs the sender after commit. Best effort: a failed
// push never unwinds the financial transition, it only leaves
// NotificationSent false on the audit record.
func (s *PaymentService) notifyDecision(p *models.Payment, actionID uint) {
	if s.notif == nil {
		return
	}
	var err error
	if p.Status == domain.PaymentApproved {
		err = s.notif.NotifyPaymentApproved(p.SenderID, p.ID, p.FinalAmountCents())
	} else {
		err = s.notif.NotifyPaymentRejected(p.SenderID, p.ID, p.RejectReason)
	}
	if err != nil {
		s.log.Warn("payment decision notification failed",
			zap.Uint("payment_id", p.ID),
			zap.Uint("sender_id", p.SenderID),
			zap.Error(err))
		return
	}
	if err := s.audits.MarkNotificationSent(actionID); err != nil {
		s.log.Warn("mark notification sent failed", zap.Uint("action_id", actionID), zap.Error(err))
	}
}

// GetPayment is a pure read; returns gorm.ErrRecordNotFound when absent.
func (s *PaymentService) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	return s.payments.WithTx(s.db.WithContext(ctx)).GetByID(id)
}

func (s *PaymentService) ListBySender(ctx context.Context, senderID uint, page, limit int) ([]models.Payment, int64, error) {
	page, limit = s.clampPage(page, limit)
	return s.payments.WithTx(s.db.WithContext(ctx)).ListBySender(senderID, page, limit)
}

func (s *PaymentService) ListByAdmin(ctx context.Context, adminID uint, page, limit int) ([]models.Payment, int64, error) {
	page, limit = s.clampPage(page, limit)
	return s.payments.WithTx(s.db.WithContext(ctx)).ListByAdmin(adminID, page, limit)
}

func (s *PaymentService) ListByStatus(ctx context.Context, status string, page, limit int) ([]models.Payment, int64, error) {
	page, limit = s.clampPage(page, limit)
	return s.payments.WithTx(s.db.WithContext(ctx)).ListByStatus(status, page, limit)
}

func (s *PaymentService) ListPending(ctx context.Context, page, limit int) ([]models.Payment, int64, error) {
	return s.ListByStatus(ctx, domain.PaymentWaiting, page, limit)
}

func (s *PaymentService) Stats(ctx context.Context) ([]repository.StatusStat, error) {
	return s.payments.WithTx(s.db.WithContext(ctx)).Stats()
}

func (s *PaymentService) clampPage(page, limit int) (int, int) {
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

func lowerStatus(status string) string {
	switch status {
	case domain.PaymentApproved:
		return "approved"
	case domain.PaymentRejected:
		return "rejected"
	}
	return status
}

func strPtr(s string) *string { return &s }
