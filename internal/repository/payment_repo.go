package repository

import (
	"time"

	"studhub/internal/domain"
	"studhub/internal/models"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Decision holds the fields written once, at the transition out of WAITING.
type Decision struct {
	Status              string
	ApprovedAmountCents *int64
	ProcessedByAdminID  uint
	ProcessedAt         time.Time
	RejectReason        string
	AdminNotes          string
}

// ClaimDecision applies the WAITING -> terminal transition as a
// compare-and-swap: the UPDATE only matches while the row is still
// WAITING, so exactly one of any set of racing processors wins. Returns
// false when the row was already decided (or does not exist).
func (r *PaymentRepository) ClaimDecision(id uint, d Decision) (bool, error) {
	res := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, domain.PaymentWaiting).
		Updates(map[string]interface{}{
			"status":                d.Status,
			"approved_amount_cents": d.ApprovedAmountCents,
			"processed_by_admin_id": d.ProcessedByAdminID,
			"processed_at":          d.ProcessedAt,
			"reject_reason":         d.RejectReason,
			"admin_notes":           d.AdminNotes,
			"updated_at":            d.ProcessedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListBySender returns a user's payments, newest first.
func (r *PaymentRepository) ListBySender(senderID uint, page, limit int) ([]models.Payment, int64, error) {
	q := r.db.Model(&models.Payment{}).Where("sender_id = ?", senderID)
	var total int64
	q.Count(&total)
	var list []models.Payment
	err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// ListByAdmin returns payments decided by the given admin.
func (r *PaymentRepository) ListByAdmin(adminID uint, page, limit int) ([]models.Payment, int64, error) {
	q := r.db.Model(&models.Payment{}).Where("processed_by_admin_id = ?", adminID)
	var total int64
	q.Count(&total)
	var list []models.Payment
	err := q.Order("processed_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// ListByStatus returns payments with optional status filter. Pending
// queues read oldest first so reviewers drain in submission order.
func (r *PaymentRepository) ListByStatus(status string, page, limit int) ([]models.Payment, int64, error) {
	q := r.db.Model(&models.Payment{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	q.Count(&total)
	order := "created_at DESC"
	if status == domain.PaymentWaiting {
		order = "created_at ASC"
	}
	var list []models.Payment
	err := q.Order(order).Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// StatusStat is one row of the per-status aggregate.
type StatusStat struct {
	Status          string `json:"status"`
	Count           int64  `json:"count"`
	TotalCents      int64  `json:"total_cents"`
	TotalFinalCents int64  `json:"total_final_cents"`
}

// Stats returns counts and totals per status. TotalFinalCents sums the
// credited amount for approved rows (approved amount, falling back to
// requested) and is zero elsewhere.
func (r *PaymentRepository) Stats() ([]StatusStat, error) {
	var stats []StatusStat
	err := r.db.Model(&models.Payment{}).
		Select(`status,
			COUNT(*) as count,
			COALESCE(SUM(requested_amount_cents), 0) as total_cents,
			COALESCE(SUM(CASE WHEN status = ? THEN COALESCE(approved_amount_cents, requested_amount_cents) ELSE 0 END), 0) as total_final_cents`,
			domain.PaymentApproved).
		Group("status").
		Scan(&stats).Error
	return stats, err
}
