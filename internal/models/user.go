package models

import (
	"time"

	"studhub/internal/domain"

	"gorm.io/gorm"
)

type User struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Username      string         `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email         string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash  string         `gorm:"size:255" json:"-"`
	Role          string         `gorm:"size:20;not null;index;default:'USER'" json:"role"` // USER | ADMIN | SUPERADMIN
	AccountStatus string         `gorm:"size:20;not null;default:'ACTIVE'" json:"account_status"`
	BalanceCents  int64          `gorm:"not null;default:0" json:"balance_cents"`
	FCMToken      string         `gorm:"size:512" json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsStaff() bool     { return domain.IsStaffRole(u.Role) }
func (u *User) IsSuspended() bool { return u.AccountStatus == domain.AccountSuspended }
