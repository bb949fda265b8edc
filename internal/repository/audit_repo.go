package repository

import (
	"studhub/internal/models"

	"gorm.io/gorm"
)

// AuditRepository appends and reads AdminAction records. The ledger is
// append-only: there is deliberately no update or delete method beyond
// MarkNotificationSent, which flips a delivery flag and touches nothing
// the record attests to.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *AuditRepository) WithTx(tx *gorm.DB) *AuditRepository {
	return &AuditRepository{db: tx}
}

func (r *AuditRepository) Create(a *models.AdminAction) error {
	return r.db.Create(a).Error
}

func (r *AuditRepository) GetByID(id uint) (*models.AdminAction, error) {
	var a models.AdminAction
	if err := r.db.First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AuditRepository) ListByAdmin(adminID uint, actionType string, page, limit int) ([]models.AdminAction, int64, error) {
	q := r.db.Model(&models.AdminAction{}).Where("admin_id = ?", adminID)
	if actionType != "" {
		q = q.Where("action_type = ?", actionType)
	}
	var total int64
	q.Count(&total)
	var list []models.AdminAction
	err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

func (r *AuditRepository) ListByTargetUser(targetUserID uint, actionType string, page, limit int) ([]models.AdminAction, int64, error) {
	q := r.db.Model(&models.AdminAction{}).Where("target_user_id = ?", targetUserID)
	if actionType != "" {
		q = q.Where("action_type = ?", actionType)
	}
	var total int64
	q.Count(&total)
	var list []models.AdminAction
	err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

func (r *AuditRepository) List(actionType string, page, limit int) ([]models.AdminAction, int64, error) {
	q := r.db.Model(&models.AdminAction{})
	if actionType != "" {
		q = q.Where("action_type = ?", actionType)
	}
	var total int64
	q.Count(&total)
	var list []models.AdminAction
	err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// Recent returns the latest n actions, optionally filtered by type.
func (r *AuditRepository) Recent(n int, actionType string) ([]models.AdminAction, error) {
	q := r.db.Model(&models.AdminAction{})
	if actionType != "" {
		q = q.Where("action_type = ?", actionType)
	}
	var list []models.AdminAction
	err := q.Order("created_at DESC").Limit(n).Find(&list).Error
	return list, err
}

func (r *AuditRepository) MarkNotificationSent(id uint) error {
	return r.db.Model(&models.AdminAction{}).Where("id = ?", id).Update("notification_sent", true).Error
}
