package models

import (
	"time"

	"studhub/internal/domain"

	"gorm.io/gorm"
)

// Payment is one funding request. Rows are never deleted; a decided
// payment is frozen except for the timestamps gorm maintains.
type Payment struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	SenderID             uint           `gorm:"not null;index" json:"sender_id"`
	RequestedAmountCents int64          `gorm:"not null" json:"requested_amount_cents"`
	ReceiptRef           string         `gorm:"size:512;not null" json:"receipt_ref"` // opaque file-store reference
	Description          string         `gorm:"size:500" json:"description"`
	Status               string         `gorm:"size:20;not null;index;default:'WAITING'" json:"status"` // WAITING, APPROVED, REJECTED
	ApprovedAmountCents  *int64         `json:"approved_amount_cents"`
	ProcessedByAdminID   *uint          `gorm:"index" json:"processed_by_admin_id"`
	ProcessedAt          *time.Time     `json:"processed_at"`
	RejectReason         string         `gorm:"size:500" json:"reject_reason"`
	AdminNotes           string         `gorm:"size:500" json:"admin_notes"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`

	Sender User `gorm:"foreignKey:SenderID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

// FinalAmountCents is the amount actually credited on approval: the
// admin-approved amount when set, otherwise the requested amount.
func (p *Payment) FinalAmountCents() int64 {
	if p.ApprovedAmountCents != nil {
		return *p.ApprovedAmountCents
	}
	return p.RequestedAmountCents
}

func (p *Payment) AmountWasAdjusted() bool {
	return p.ApprovedAmountCents != nil && *p.ApprovedAmountCents != p.RequestedAmountCents
}

func (p *Payment) CanBeProcessed() bool {
	return p.Status == domain.PaymentWaiting
}
