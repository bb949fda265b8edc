package models

import (
	"time"
)

// AdminAction is the permanent record of one privileged mutation: who did
// what to whom, with before/after snapshots. Append-only; no repository
// exposes an update or delete for it.
type AdminAction struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	AdminID          uint      `gorm:"not null;index" json:"admin_id"`
	TargetUserID     uint      `gorm:"not null;index" json:"target_user_id"`
	ActionType       string    `gorm:"size:40;not null;index" json:"action_type"`
	Description      string    `gorm:"size:500;not null" json:"description"`
	PreviousValue    *string   `gorm:"size:255" json:"previous_value"`
	NewValue         *string   `gorm:"size:255" json:"new_value"`
	AmountCents      *int64    `json:"amount_cents"`
	Reason           *string   `gorm:"size:500" json:"reason"`
	IPAddress        *string   `gorm:"size:45" json:"ip_address"`
	NotificationSent bool      `gorm:"not null;default:false" json:"notification_sent"`
	CreatedAt        time.Time `json:"created_at"`

	Admin      User `gorm:"foreignKey:AdminID" json:"-"`
	TargetUser User `gorm:"foreignKey:TargetUserID" json:"-"`
}

func (AdminAction) TableName() string {
	return "admin_actions"
}
